package subscription

// Input is the creation/update payload for subscriptions.
type Input struct {
	// TenantID identifies the tenant that owns this subscription.
	TenantID string `json:"tenant_id"`

	// URL is the webhook delivery URL. Must be well-formed http(s).
	URL string `json:"url"`

	// Description is a human-readable description.
	Description string `json:"description,omitempty"`

	// EventTypes is the exact set of event type names to subscribe to.
	EventTypes []string `json:"event_types"`

	// MaxRetries is the consecutive-failure budget. Defaults to
	// DefaultMaxRetries when zero on create.
	MaxRetries int `json:"max_retries,omitempty"`

	// Status allows an operator to change the lifecycle state on update.
	// Ignored on create (new subscriptions are always active).
	Status Status `json:"status,omitempty"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit,omitempty"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}
