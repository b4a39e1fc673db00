package history

import (
	"context"

	"github.com/veloxpay/dispatch/id"
)

// Store defines the persistence contract for the delivery attempt trail.
type Store interface {
	// CreateAttempt appends a new attempt record. Called before network I/O.
	CreateAttempt(ctx context.Context, att *Attempt) error

	// CompleteAttempt writes the outcome fields of an existing attempt.
	// Outcome fields are written exactly once per attempt.
	CompleteAttempt(ctx context.Context, att *Attempt) error

	// RecentAttempts returns the most recent attempts for a subscription,
	// newest first.
	RecentAttempts(ctx context.Context, subID id.ID, limit int) ([]*Attempt, error)

	// ListAttemptsByDelivery returns all attempts of one delivery job,
	// oldest first.
	ListAttemptsByDelivery(ctx context.Context, delID id.ID) ([]*Attempt, error)
}
