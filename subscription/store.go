package subscription

import (
	"context"

	"github.com/veloxpay/dispatch/id"
)

// Store defines the persistence contract for webhook subscriptions.
type Store interface {
	// CreateSubscription persists a new subscription.
	CreateSubscription(ctx context.Context, sub *Subscription) error

	// GetSubscription returns a subscription by ID.
	GetSubscription(ctx context.Context, subID id.ID) (*Subscription, error)

	// UpdateSubscription modifies an existing subscription.
	UpdateSubscription(ctx context.Context, sub *Subscription) error

	// DeleteSubscription removes a subscription. Deliveries already queued
	// against it fail terminally when the worker re-reads the target.
	DeleteSubscription(ctx context.Context, subID id.ID) error

	// ListSubscriptions returns subscriptions for a tenant, optionally filtered.
	ListSubscriptions(ctx context.Context, tenantID string, opts ListOpts) ([]*Subscription, error)

	// Resolve finds all active subscriptions whose event type set contains
	// eventType (exact membership). This is the hot path of every trigger.
	Resolve(ctx context.Context, tenantID string, eventType string) ([]*Subscription, error)

	// SetStatus changes the lifecycle state without touching other fields.
	SetStatus(ctx context.Context, subID id.ID, status Status) error

	// RecordFailure atomically increments the consecutive-failure counter.
	// When the new counter reaches the subscription's retry budget while it
	// is still active, the status flips to failed in the same operation and
	// escalated is true — exactly once, even under concurrent deliveries.
	RecordFailure(ctx context.Context, subID id.ID) (newCount int, escalated bool, err error)

	// RecordSuccess atomically resets the consecutive-failure counter to
	// zero and stamps LastTriggeredAt.
	RecordSuccess(ctx context.Context, subID id.ID) error
}
