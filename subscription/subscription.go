package subscription

import (
	"time"

	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	// StatusActive means the subscription participates in event matching.
	StatusActive Status = "active"

	// StatusInactive means the subscription was paused by an operator.
	StatusInactive Status = "inactive"

	// StatusFailed means the subscription was disabled automatically after
	// exhausting its retry budget. Only an operator can reactivate it.
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusFailed:
		return true
	}
	return false
}

// DefaultMaxRetries is the retry budget applied when none is given at registration.
const DefaultMaxRetries = 3

// Subscription represents a webhook delivery target registered by a tenant.
type Subscription struct {
	entity.Entity

	// ID is the unique TypeID for this subscription.
	ID id.ID `json:"id"`

	// TenantID identifies the tenant that owns this subscription.
	TenantID string `json:"tenant_id"`

	// URL is the webhook delivery URL.
	URL string `json:"url"`

	// Description is a human-readable description of this subscription.
	Description string `json:"description,omitempty"`

	// Secret is the HMAC signing secret. Never serialized; it is returned in
	// plaintext exactly once, from Register or RotateSecret.
	Secret string `json:"-"`

	// EventTypes is the exact set of event type names this subscription
	// receives. Matching is exact string membership, no wildcards.
	EventTypes []string `json:"event_types"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// MaxRetries is the consecutive-failure budget before the subscription
	// is flipped to failed.
	MaxRetries int `json:"max_retries"`

	// FailureCount is the number of consecutive failed deliveries.
	// Reset to zero by any successful delivery.
	FailureCount int `json:"failure_count"`

	// LastTriggeredAt is when the most recent successful delivery completed.
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit,omitempty"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Subscribed reports whether the subscription's event type set contains
// eventType. Exact string membership only.
func (s *Subscription) Subscribed(eventType string) bool {
	for _, et := range s.EventTypes {
		if et == eventType {
			return true
		}
	}
	return false
}

// Redacted returns a copy of the subscription with the secret cleared.
// Read paths hand out redacted copies so plaintext secrets are only ever
// visible in Register and RotateSecret responses.
func (s *Subscription) Redacted() *Subscription {
	cp := *s
	cp.Secret = ""
	return &cp
}

// ListOpts configures filtering and pagination for subscription listing.
type ListOpts struct {
	Offset int
	Limit  int
	Status *Status
}
