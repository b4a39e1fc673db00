package event

import (
	"time"

	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
)

// TestType is the synthetic event type used by test deliveries.
const TestType = "webhook.test"

// Event represents a domain occurrence submitted for webhook fan-out.
// Events are ephemeral triggers: persisted for audit and replay, but the
// delivery pipeline treats them as immutable input.
type Event struct {
	entity.Entity

	// ID is the unique TypeID for this event.
	ID id.ID `json:"id"`

	// Type is the dot-separated event type name (e.g. "payment.completed").
	Type string `json:"type"`

	// TenantID identifies the tenant that produced this event.
	TenantID string `json:"tenant_id"`

	// Data is the event payload. It becomes the "data" field of the signed
	// webhook request body.
	Data any `json:"data"`

	// IdempotencyKey prevents duplicate event processing.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ListOpts configures filtering and pagination for event listing.
type ListOpts struct {
	Offset int
	Limit  int
	Type   string
	From   *time.Time
	To     *time.Time
}
