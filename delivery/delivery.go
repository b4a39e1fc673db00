// Package delivery implements the webhook delivery worker: the queued job
// model, the HTTP sender, retry/backoff decisions and the worker pool engine.
package delivery

import (
	"time"

	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
)

// State represents the current state of a delivery job.
type State string

const (
	// StatePending indicates the delivery is awaiting an attempt.
	StatePending State = "pending"

	// StateDelivered indicates the delivery was successfully sent.
	StateDelivered State = "delivered"

	// StateFailed indicates the delivery terminally failed: its retry budget
	// was exhausted or its target subscription was revoked.
	StateFailed State = "failed"
)

// Delivery is the queued unit of work: one event bound for one subscription.
// The ID is generated once at enqueue time and reused across every retry of
// the same job, so receiving endpoints can deduplicate on it. Each physical
// attempt is additionally recorded in the delivery history.
type Delivery struct {
	entity.Entity

	// ID is the unique TypeID for this delivery, stable across retries.
	ID id.ID `json:"id"`

	// EventID references the event being delivered.
	EventID id.ID `json:"event_id"`

	// SubscriptionID references the target subscription.
	SubscriptionID id.ID `json:"subscription_id"`

	// State is the current delivery state.
	State State `json:"state"`

	// AttemptCount is the number of delivery attempts made so far.
	AttemptCount int `json:"attempt_count"`

	// MaxAttempts is the attempt budget, taken from the subscription's
	// max-retry setting at enqueue time.
	MaxAttempts int `json:"max_attempts"`

	// NextAttemptAt is when the next delivery attempt should occur.
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// LastError is the error message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// LastStatusCode is the HTTP status code from the most recent attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// LastResponse is the response body from the most recent attempt (capped at 1KB).
	LastResponse string `json:"last_response,omitempty"`

	// LastLatencyMs is the latency in milliseconds of the most recent attempt.
	LastLatencyMs int `json:"last_latency_ms,omitempty"`

	// CompletedAt is when the delivery reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset int
	Limit  int
	State  *State
}
