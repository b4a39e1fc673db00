package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veloxpay/dispatch/catalog"
	"github.com/veloxpay/dispatch/delivery"
	"github.com/veloxpay/dispatch/dlq"
	"github.com/veloxpay/dispatch/event"
	"github.com/veloxpay/dispatch/history"
	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
	"github.com/veloxpay/dispatch/ratelimit"
	"github.com/veloxpay/dispatch/store"
	"github.com/veloxpay/dispatch/subscription"
)

// wireServices initializes the internal services after options have been applied.
func (d *Dispatcher) wireServices() {
	d.catalog = catalog.NewCatalog(d.store, catalog.Config{
		CacheTTL: d.config.CacheTTL,
	}, d.logger)

	d.validator = catalog.NewValidator()

	d.subSvc = subscription.NewService(d.store, d.logger)

	d.historySvc = history.NewService(d.store, d.logger)

	d.dlqSvc = dlq.NewService(d.store, d.store, d.metrics, d.logger)

	d.limiter = ratelimit.New()

	d.engine = delivery.NewEngine(d.store, d.historySvc, d.dlqSvc, delivery.EngineConfig{
		Concurrency:    d.config.Concurrency,
		PollInterval:   d.config.PollInterval,
		BatchSize:      d.config.BatchSize,
		RequestTimeout: d.config.RequestTimeout,
		Backoff:        d.config.Backoff,
		Metrics:        d.metrics,
		Tracer:         d.tracer,
		Limiter:        d.limiter,
	}, d.logger)
}

// Start begins the delivery engine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.engine.Start(ctx)
}

// Stop gracefully shuts down the delivery engine.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.engine.Stop(ctx)
}

// RegisterEventType registers a webhook event type definition in the catalog.
func (d *Dispatcher) RegisterEventType(ctx context.Context, def catalog.Definition, metadata map[string]string) (*catalog.EventType, error) {
	return d.catalog.RegisterType(ctx, def, metadata)
}

// Trigger validates and persists an event, then fans out one delivery per
// matching subscription. It returns the number of deliveries enqueued.
//
// The critical path:
//  1. Look up the event type in the catalog. Unknown types are rejected in
//     strict mode and pass through unvalidated otherwise.
//  2. Reject deprecated event types.
//  3. Validate the payload against the registered JSON Schema, if any.
//  4. Persist the event. Duplicate idempotency keys are a no-op success.
//  5. Resolve matching active subscriptions (exact type membership).
//  6. Enqueue one delivery per match, attempt budget taken from the
//     subscription at enqueue time.
func (d *Dispatcher) Trigger(ctx context.Context, evt *event.Event) (int, error) {
	et, err := d.catalog.GetType(ctx, evt.Type)
	switch {
	case err == nil:
		if et.IsDeprecated {
			return 0, fmt.Errorf("%w: %s", ErrEventTypeDeprecated, evt.Type)
		}
		if len(et.Definition.Schema) > 0 {
			if validateErr := d.validator.Validate(et.Definition.Schema, evt.Data); validateErr != nil {
				return 0, fmt.Errorf("%w: %s", ErrPayloadValidationFailed, validateErr.Error())
			}
		}
	case errors.Is(err, ErrEventTypeNotFound):
		if d.config.CatalogStrict {
			return 0, fmt.Errorf("%w: %s", ErrEventTypeNotFound, evt.Type)
		}
	default:
		return 0, fmt.Errorf("dispatch: look up event type: %w", err)
	}

	evt.Entity = entity.New()
	evt.ID = id.NewEventID()

	// Persist the event. Idempotency key conflicts return a no-op success.
	if createErr := d.store.CreateEvent(ctx, evt); createErr != nil {
		if errors.Is(createErr, ErrDuplicateIdempotencyKey) {
			return 0, nil // idempotent: already processed
		}
		return 0, fmt.Errorf("dispatch: persist event: %w", createErr)
	}

	subs, err := d.store.Resolve(ctx, evt.TenantID, evt.Type)
	if err != nil {
		return 0, fmt.Errorf("dispatch: resolve subscriptions: %w", err)
	}

	if len(subs) == 0 {
		return 0, nil // no matching subscriptions, nothing to deliver
	}

	now := time.Now().UTC()
	deliveries := make([]*delivery.Delivery, 0, len(subs))
	for _, sub := range subs {
		maxAttempts := sub.MaxRetries
		if maxAttempts <= 0 {
			maxAttempts = d.config.MaxRetries
		}
		del := &delivery.Delivery{
			Entity:         entity.New(),
			ID:             id.NewDeliveryID(),
			EventID:        evt.ID,
			SubscriptionID: sub.ID,
			State:          delivery.StatePending,
			AttemptCount:   0,
			MaxAttempts:    maxAttempts,
			NextAttemptAt:  now,
		}
		deliveries = append(deliveries, del)
	}

	if err := d.store.EnqueueBatch(ctx, deliveries); err != nil {
		return 0, fmt.Errorf("dispatch: enqueue deliveries: %w", err)
	}

	if d.metrics != nil {
		d.metrics.EventsTotal.Inc()
		d.metrics.PendingDeliveries.Add(float64(len(deliveries)))
	}

	d.logger.DebugContext(ctx, "event triggered",
		"event_id", evt.ID,
		"type", evt.Type,
		"subscriptions", len(subs),
	)

	return len(deliveries), nil
}

// TestDelivery synthesizes a webhook.test event and enqueues a single
// delivery to the given subscription, bypassing event type matching. The
// request is signed like any real delivery.
func (d *Dispatcher) TestDelivery(ctx context.Context, subID id.ID) (*delivery.Delivery, error) {
	sub, err := d.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	evt := &event.Event{
		Entity:   entity.New(),
		ID:       id.NewEventID(),
		Type:     event.TestType,
		TenantID: sub.TenantID,
		Data: map[string]any{
			"subscription_id": sub.ID.String(),
			"triggered_at":    time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := d.store.CreateEvent(ctx, evt); err != nil {
		return nil, fmt.Errorf("dispatch: persist test event: %w", err)
	}

	del := &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		EventID:        evt.ID,
		SubscriptionID: sub.ID,
		State:          delivery.StatePending,
		MaxAttempts:    1, // test deliveries are not retried
		NextAttemptAt:  time.Now().UTC(),
	}
	if err := d.store.Enqueue(ctx, del); err != nil {
		return nil, fmt.Errorf("dispatch: enqueue test delivery: %w", err)
	}

	if d.metrics != nil {
		d.metrics.PendingDeliveries.Inc()
	}
	return del, nil
}

// GetWithDeliveries returns a subscription with the secret redacted,
// together with its most recent delivery attempts, newest first. The
// attempt list is capped at history.DefaultRecentLimit.
func (d *Dispatcher) GetWithDeliveries(ctx context.Context, subID id.ID) (*subscription.Subscription, []*history.Attempt, error) {
	sub, err := d.subSvc.Get(ctx, subID)
	if err != nil {
		return nil, nil, err
	}

	attempts, err := d.historySvc.Recent(ctx, subID, 0)
	if err != nil {
		return nil, nil, err
	}
	return sub, attempts, nil
}

// Subscriptions returns the subscription management service.
func (d *Dispatcher) Subscriptions() *subscription.Service {
	return d.subSvc
}

// Catalog returns the event type catalog.
func (d *Dispatcher) Catalog() *catalog.Catalog {
	return d.catalog
}

// History returns the delivery attempt trail service.
func (d *Dispatcher) History() *history.Service {
	return d.historySvc
}

// DLQ returns the dead letter queue service.
func (d *Dispatcher) DLQ() *dlq.Service {
	return d.dlqSvc
}

// Store returns the underlying store.
func (d *Dispatcher) Store() store.Store {
	return d.store
}
