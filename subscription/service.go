package subscription

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
	"github.com/veloxpay/dispatch/signature"
)

// Service provides subscription management operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new subscription service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Register creates a new webhook subscription and returns it together with
// the generated plaintext signing secret. The secret is not retrievable
// through any later read; callers must store it now.
func (svc *Service) Register(ctx context.Context, in Input) (*Subscription, string, error) {
	if err := validateURL(in.URL); err != nil {
		return nil, "", err
	}

	if in.TenantID == "" {
		return nil, "", &ValidationError{Field: "tenant_id", Message: "required"}
	}

	if len(in.EventTypes) == 0 {
		return nil, "", &ValidationError{Field: "event_types", Message: "at least one event type required"}
	}

	maxRetries := in.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	secret := signature.GenerateSecret()

	sub := &Subscription{
		Entity:      entity.New(),
		ID:          id.NewSubscriptionID(),
		TenantID:    in.TenantID,
		URL:         in.URL,
		Description: in.Description,
		Secret:      secret,
		EventTypes:  in.EventTypes,
		Status:      StatusActive,
		MaxRetries:  maxRetries,
		Headers:     in.Headers,
		RateLimit:   in.RateLimit,
		Metadata:    in.Metadata,
	}

	if err := svc.store.CreateSubscription(ctx, sub); err != nil {
		return nil, "", err
	}

	svc.logger.DebugContext(ctx, "subscription registered",
		"subscription_id", sub.ID, "tenant_id", sub.TenantID, "event_types", len(sub.EventTypes))

	return sub.Redacted(), secret, nil
}

// Get returns a subscription by ID with the secret redacted.
func (svc *Service) Get(ctx context.Context, subID id.ID) (*Subscription, error) {
	sub, err := svc.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	return sub.Redacted(), nil
}

// List returns subscriptions for a tenant, secrets redacted.
func (svc *Service) List(ctx context.Context, tenantID string, opts ListOpts) ([]*Subscription, error) {
	subs, err := svc.store.ListSubscriptions(ctx, tenantID, opts)
	if err != nil {
		return nil, err
	}

	redacted := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		redacted = append(redacted, sub.Redacted())
	}
	return redacted, nil
}

// Update applies a partial update of url, event types, status, retry budget
// and ancillary fields.
func (svc *Service) Update(ctx context.Context, subID id.ID, in Input) (*Subscription, error) {
	sub, err := svc.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	if in.URL != "" {
		if err := validateURL(in.URL); err != nil {
			return nil, err
		}
		sub.URL = in.URL
	}
	if in.Description != "" {
		sub.Description = in.Description
	}
	if in.EventTypes != nil {
		if len(in.EventTypes) == 0 {
			return nil, &ValidationError{Field: "event_types", Message: "at least one event type required"}
		}
		sub.EventTypes = in.EventTypes
	}
	if in.Status != "" {
		if !in.Status.Valid() {
			return nil, &ValidationError{Field: "status", Message: "unknown status"}
		}
		sub.Status = in.Status
	}
	if in.MaxRetries > 0 {
		sub.MaxRetries = in.MaxRetries
	}
	if in.Headers != nil {
		sub.Headers = in.Headers
	}
	if in.RateLimit >= 0 {
		sub.RateLimit = in.RateLimit
	}
	if in.Metadata != nil {
		sub.Metadata = in.Metadata
	}

	if err := svc.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return sub.Redacted(), nil
}

// Delete removes a subscription.
func (svc *Service) Delete(ctx context.Context, subID id.ID) error {
	return svc.store.DeleteSubscription(ctx, subID)
}

// SetStatus changes the subscription's lifecycle state. Reactivating a
// failed subscription does not reset its failure counter; the next
// successful delivery does.
func (svc *Service) SetStatus(ctx context.Context, subID id.ID, status Status) error {
	if !status.Valid() {
		return &ValidationError{Field: "status", Message: "unknown status"}
	}
	return svc.store.SetStatus(ctx, subID, status)
}

// RotateSecret generates a fresh signing secret, overwrites the stored one
// and returns the new plaintext exactly once. The failure counter is left
// untouched. A delivery already in flight may still be signed with the old
// secret; that race is accepted.
func (svc *Service) RotateSecret(ctx context.Context, subID id.ID) (string, error) {
	sub, err := svc.store.GetSubscription(ctx, subID)
	if err != nil {
		return "", err
	}

	newSecret := signature.GenerateSecret()

	sub.Secret = newSecret
	if err := svc.store.UpdateSubscription(ctx, sub); err != nil {
		return "", err
	}

	svc.logger.DebugContext(ctx, "subscription secret rotated", "subscription_id", subID)

	return newSecret, nil
}

// validateURL rejects anything that is not a well-formed absolute http(s) URL.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{Field: "url", Message: "must be a valid http(s) URL"}
	}
	return nil
}

// ValidationError indicates invalid input, rejected synchronously before
// anything is enqueued.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "subscription validation: " + e.Field + ": " + e.Message
}
