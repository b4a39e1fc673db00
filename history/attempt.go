// Package history keeps the append-only audit trail of delivery attempts.
//
// An attempt record is created before the outbound HTTP call is made, so a
// crash mid-call still leaves an observable trace; its outcome fields are
// written exactly once when the call completes. Records are never deleted.
package history

import (
	"time"

	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
)

// DefaultRecentLimit is how many attempts Recent returns when no limit is given.
const DefaultRecentLimit = 10

// Attempt is one physical delivery attempt of one event to one subscription.
type Attempt struct {
	entity.Entity

	// ID is the unique TypeID for this attempt.
	ID id.ID `json:"id"`

	// DeliveryID references the delivery job; shared by all retries of it.
	DeliveryID id.ID `json:"delivery_id"`

	// SubscriptionID references the target subscription.
	SubscriptionID id.ID `json:"subscription_id"`

	// EventID references the event being delivered.
	EventID id.ID `json:"event_id"`

	// EventType is the event type name, for filtering.
	EventType string `json:"event_type"`

	// Attempt is the 1-based attempt number within the delivery job.
	Attempt int `json:"attempt"`

	// Payload is the exact signed request body.
	Payload []byte `json:"payload,omitempty"`

	// Signature is the signature header value sent with this attempt.
	Signature string `json:"signature,omitempty"`

	// StatusCode is the HTTP status of the response, 0 if none was received.
	StatusCode int `json:"status_code"`

	// Response is a snippet of the response body, truncated to 1KB.
	Response string `json:"response,omitempty"`

	// Error is the transport error message, if any.
	Error string `json:"error,omitempty"`

	// DeliveredAt is set only when the attempt succeeded.
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// Completed reports whether the attempt's outcome has been recorded.
func (a *Attempt) Completed() bool {
	return a.DeliveredAt != nil || a.StatusCode != 0 || a.Error != ""
}
