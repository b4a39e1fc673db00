package dispatch

import (
	"log/slog"
	"time"

	"github.com/veloxpay/dispatch/catalog"
	"github.com/veloxpay/dispatch/delivery"
	"github.com/veloxpay/dispatch/dlq"
	"github.com/veloxpay/dispatch/history"
	"github.com/veloxpay/dispatch/observability"
	"github.com/veloxpay/dispatch/ratelimit"
	"github.com/veloxpay/dispatch/store"
	"github.com/veloxpay/dispatch/subscription"
)

// Dispatcher is the root webhook delivery engine.
type Dispatcher struct {
	config     Config
	store      store.Store
	catalog    *catalog.Catalog
	validator  *catalog.Validator
	subSvc     *subscription.Service
	historySvc *history.Service
	dlqSvc     *dlq.Service
	engine     *delivery.Engine
	limiter    *ratelimit.Limiter
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	logger     *slog.Logger
}

// Option configures a Dispatcher instance.
type Option func(*Dispatcher) error

// New creates a new Dispatcher with the given options.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.store == nil {
		return nil, ErrNoStore
	}
	d.wireServices()
	return d, nil
}

// WithStore sets the persistence backend for the Dispatcher instance.
func WithStore(s store.Store) Option {
	return func(d *Dispatcher) error {
		d.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Dispatcher instance.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = logger
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) error {
		d.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the delivery engine checks for pending deliveries.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.PollInterval = interval
		return nil
	}
}

// WithBatchSize sets the maximum number of deliveries dequeued per poll cycle.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) error {
		d.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.RequestTimeout = timeout
		return nil
	}
}

// WithMaxRetries sets the default consecutive-failure budget for subscriptions.
func WithMaxRetries(n int) Option {
	return func(d *Dispatcher) error {
		d.config.MaxRetries = n
		return nil
	}
}

// WithBackoff sets the exponential backoff parameters for retries.
func WithBackoff(b delivery.Backoff) Option {
	return func(d *Dispatcher) error {
		d.config.Backoff = b
		return nil
	}
}

// WithMetrics sets the Prometheus instruments for the delivery pipeline.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) error {
		d.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for delivery attempts.
func WithTracer(t *observability.Tracer) Option {
	return func(d *Dispatcher) error {
		d.tracer = t
		return nil
	}
}

// WithCatalogStrict rejects triggers whose event type is not registered.
func WithCatalogStrict(strict bool) Option {
	return func(d *Dispatcher) error {
		d.config.CatalogStrict = strict
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight deliveries on shutdown.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.ShutdownTimeout = timeout
		return nil
	}
}

// WithCacheTTL sets the TTL for the catalog's in-memory event type cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.CacheTTL = ttl
		return nil
	}
}
