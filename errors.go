package dispatch

import "errors"

// Sentinel errors returned by dispatch operations.
var (
	// ErrNoStore is returned when a Dispatcher is created without a store.
	ErrNoStore = errors.New("dispatch: store is required")

	// ErrSubscriptionNotFound is returned when a subscription cannot be found.
	ErrSubscriptionNotFound = errors.New("dispatch: subscription not found")

	// ErrEventNotFound is returned when an event cannot be found.
	ErrEventNotFound = errors.New("dispatch: event not found")

	// ErrDeliveryNotFound is returned when a delivery cannot be found.
	ErrDeliveryNotFound = errors.New("dispatch: delivery not found")

	// ErrAttemptNotFound is returned when a delivery attempt cannot be found.
	ErrAttemptNotFound = errors.New("dispatch: delivery attempt not found")

	// ErrDLQNotFound is returned when a dead letter entry cannot be found.
	ErrDLQNotFound = errors.New("dispatch: dead letter entry not found")

	// ErrEventTypeNotFound is returned when an event type is not registered in the catalog.
	ErrEventTypeNotFound = errors.New("dispatch: event type not found")

	// ErrEventTypeDeprecated is returned when triggering an event with a deprecated type.
	ErrEventTypeDeprecated = errors.New("dispatch: event type is deprecated")

	// ErrPayloadValidationFailed is returned when event data fails JSON Schema validation.
	ErrPayloadValidationFailed = errors.New("dispatch: payload validation failed")

	// ErrDuplicateIdempotencyKey is returned when an event with the same idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("dispatch: duplicate idempotency key")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("dispatch: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("dispatch: migration failed")
)
