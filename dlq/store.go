package dlq

import (
	"context"

	"github.com/veloxpay/dispatch/id"
)

// Store defines the persistence contract for the dead letter queue.
type Store interface {
	// CreateDLQEntry parks a terminally failed delivery.
	CreateDLQEntry(ctx context.Context, entry *Entry) error

	// GetDLQEntry returns an entry by ID.
	GetDLQEntry(ctx context.Context, entryID id.ID) (*Entry, error)

	// ListDLQEntries returns entries, newest first.
	ListDLQEntries(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// MarkReplayed stamps an entry as re-enqueued.
	MarkReplayed(ctx context.Context, entryID id.ID) error

	// DeleteDLQEntry removes an entry.
	DeleteDLQEntry(ctx context.Context, entryID id.ID) error

	// CountDLQEntries returns the number of entries, replayed ones included.
	CountDLQEntries(ctx context.Context) (int64, error)
}
