package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/veloxpay/dispatch/id"
)

// Service records and queries delivery attempts.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new history service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Begin appends the attempt record before the HTTP call is made.
func (svc *Service) Begin(ctx context.Context, att *Attempt) error {
	return svc.store.CreateAttempt(ctx, att)
}

// Complete records the attempt outcome. On success, deliveredAt is stamped.
func (svc *Service) Complete(ctx context.Context, att *Attempt, statusCode int, response, errMsg string, success bool) error {
	att.StatusCode = statusCode
	att.Response = response
	att.Error = errMsg
	if success {
		now := time.Now().UTC()
		att.DeliveredAt = &now
	}
	return svc.store.CompleteAttempt(ctx, att)
}

// Recent returns the latest attempts for a subscription, newest first.
// A limit of 0 uses DefaultRecentLimit.
func (svc *Service) Recent(ctx context.Context, subID id.ID, limit int) ([]*Attempt, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return svc.store.RecentAttempts(ctx, subID, limit)
}

// ByDelivery returns every attempt of one delivery job, oldest first.
func (svc *Service) ByDelivery(ctx context.Context, delID id.ID) ([]*Attempt, error) {
	return svc.store.ListAttemptsByDelivery(ctx, delID)
}
