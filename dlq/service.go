package dlq

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/veloxpay/dispatch/delivery"
	"github.com/veloxpay/dispatch/event"
	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
	"github.com/veloxpay/dispatch/observability"
	"github.com/veloxpay/dispatch/subscription"
)

// ErrAlreadyReplayed is returned when replaying an entry that was already re-enqueued.
var ErrAlreadyReplayed = errors.New("dispatch: dead letter entry already replayed")

// Service manages the dead letter queue.
type Service struct {
	store   Store
	queue   delivery.Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService creates a DLQ service. The queue is used to re-enqueue
// deliveries on replay.
func NewService(store Store, queue delivery.Store, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, queue: queue, metrics: metrics, logger: logger}
}

// PushFailed parks a delivery that exhausted its retry budget.
func (s *Service) PushFailed(ctx context.Context, d *delivery.Delivery, sub *subscription.Subscription, evt *event.Event, lastError string, lastStatusCode int) error {
	entry := &Entry{
		Entity:         entity.New(),
		ID:             id.NewDLQID(),
		DeliveryID:     d.ID,
		EventID:        evt.ID,
		SubscriptionID: sub.ID,
		EventType:      evt.Type,
		TenantID:       sub.TenantID,
		URL:            sub.URL,
		Error:          lastError,
		AttemptCount:   d.AttemptCount,
		LastStatusCode: lastStatusCode,
		FailedAt:       time.Now().UTC(),
	}
	return s.store.CreateDLQEntry(ctx, entry)
}

// Get returns a DLQ entry by ID.
func (s *Service) Get(ctx context.Context, entryID id.ID) (*Entry, error) {
	return s.store.GetDLQEntry(ctx, entryID)
}

// List returns DLQ entries, newest first.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return s.store.ListDLQEntries(ctx, opts)
}

// Count returns the number of entries in the queue.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.CountDLQEntries(ctx)
}

// Replay re-enqueues a failed delivery as a fresh job with a reset attempt
// budget. The original entry stays in the queue, stamped with the replay time.
func (s *Service) Replay(ctx context.Context, entryID id.ID) (*delivery.Delivery, error) {
	entry, err := s.store.GetDLQEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Replayed() {
		return nil, ErrAlreadyReplayed
	}

	d := &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		EventID:        entry.EventID,
		SubscriptionID: entry.SubscriptionID,
		State:          delivery.StatePending,
		MaxAttempts:    subscription.DefaultMaxRetries,
		NextAttemptAt:  time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, d); err != nil {
		return nil, err
	}
	if err := s.store.MarkReplayed(ctx, entryID); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.DLQSize.Dec()
		s.metrics.PendingDeliveries.Inc()
	}
	s.logger.InfoContext(ctx, "dead letter entry replayed",
		"entry_id", entryID, "delivery_id", d.ID, "subscription_id", entry.SubscriptionID)

	return d, nil
}

// ReplayBulk replays every matching unreplayed entry and returns the new
// delivery IDs. It keeps going past per-entry failures.
func (s *Service) ReplayBulk(ctx context.Context, opts ListOpts) ([]id.ID, error) {
	entries, err := s.store.ListDLQEntries(ctx, opts)
	if err != nil {
		return nil, err
	}

	var replayed []id.ID
	for _, entry := range entries {
		if entry.Replayed() {
			continue
		}
		d, err := s.Replay(ctx, entry.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "bulk replay skipped entry",
				"entry_id", entry.ID, "error", err)
			continue
		}
		replayed = append(replayed, d.ID)
	}
	return replayed, nil
}

// Purge deletes a DLQ entry.
func (s *Service) Purge(ctx context.Context, entryID id.ID) error {
	if err := s.store.DeleteDLQEntry(ctx, entryID); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.DLQSize.Dec()
	}
	return nil
}
