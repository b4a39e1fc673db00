package dispatch

import (
	"time"

	"github.com/veloxpay/dispatch/delivery"
)

// Config holds the configuration for a Dispatcher instance.
type Config struct {
	// Concurrency is the number of delivery worker goroutines.
	Concurrency int

	// PollInterval is how often the delivery engine checks for pending deliveries.
	PollInterval time.Duration

	// BatchSize is the maximum number of deliveries dequeued per poll cycle.
	BatchSize int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// MaxRetries is the default consecutive-failure budget applied to
	// subscriptions registered without one.
	MaxRetries int

	// Backoff controls the exponential delay between retry attempts.
	Backoff delivery.Backoff

	// CatalogStrict rejects triggers whose event type is not registered in
	// the catalog. When false, unknown types pass through unvalidated and
	// registered types are still schema-checked.
	CatalogStrict bool

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries on shutdown.
	ShutdownTimeout time.Duration

	// CacheTTL is the TTL for the catalog's in-memory event type cache.
	// Set to 0 to disable caching.
	CacheTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		PollInterval:    1 * time.Second,
		BatchSize:       50,
		RequestTimeout:  30 * time.Second,
		MaxRetries:      3,
		Backoff:         delivery.DefaultBackoff(),
		ShutdownTimeout: 30 * time.Second,
		CacheTTL:        30 * time.Second,
	}
}
