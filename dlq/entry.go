// Package dlq holds deliveries that exhausted their retry budget so they
// can be inspected and replayed.
package dlq

import (
	"time"

	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
)

// Entry is a terminally failed delivery parked for inspection and replay.
type Entry struct {
	entity.Entity

	ID             id.ID  `json:"id"`
	DeliveryID     id.ID  `json:"delivery_id"`
	EventID        id.ID  `json:"event_id"`
	SubscriptionID id.ID  `json:"subscription_id"`
	EventType      string `json:"event_type"`
	TenantID       string `json:"tenant_id,omitempty"`
	URL            string `json:"url"`

	// Payload is the signed request body of the final attempt.
	Payload []byte `json:"payload,omitempty"`

	Error          string     `json:"error"`
	AttemptCount   int        `json:"attempt_count"`
	LastStatusCode int        `json:"last_status_code,omitempty"`
	FailedAt       time.Time  `json:"failed_at"`
	ReplayedAt     *time.Time `json:"replayed_at,omitempty"`
}

// Replayed reports whether the entry has already been re-enqueued.
func (e *Entry) Replayed() bool {
	return e.ReplayedAt != nil
}

// ListOpts controls DLQ listing.
type ListOpts struct {
	SubscriptionID id.ID
	EventType      string
	Limit          int
	Offset         int
}
