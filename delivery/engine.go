package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/veloxpay/dispatch/event"
	"github.com/veloxpay/dispatch/history"
	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
	"github.com/veloxpay/dispatch/observability"
	"github.com/veloxpay/dispatch/ratelimit"
	"github.com/veloxpay/dispatch/subscription"
)

// EngineStore is the interface the engine needs for delivery operations.
type EngineStore interface {
	Dequeue(ctx context.Context, limit int) ([]*Delivery, error)
	UpdateDelivery(ctx context.Context, d *Delivery) error
	GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error)
	GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error)
	RecordFailure(ctx context.Context, subID id.ID) (int, bool, error)
	RecordSuccess(ctx context.Context, subID id.ID) error
}

// AttemptRecorder appends attempt records to the delivery history trail.
type AttemptRecorder interface {
	Begin(ctx context.Context, att *history.Attempt) error
	Complete(ctx context.Context, att *history.Attempt, statusCode int, response, errMsg string, success bool) error
}

// DLQPusher pushes terminally failed deliveries to the dead letter queue.
type DLQPusher interface {
	PushFailed(ctx context.Context, d *Delivery, sub *subscription.Subscription, evt *event.Event, lastError string, lastStatusCode int) error
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Concurrency    int
	PollInterval   time.Duration
	BatchSize      int
	RequestTimeout time.Duration
	Backoff        Backoff
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
	Limiter        *ratelimit.Limiter
}

// Engine is the delivery worker pool that dequeues and processes deliveries.
//
// The queue guarantees at-least-once execution and per-job mutual exclusion;
// within one job the only blocking operation is the outbound HTTP call,
// bounded by the request timeout. A dequeued job always runs to completion —
// there is no mid-flight cancellation, only forward progress through the
// attempt budget.
type Engine struct {
	store   EngineStore
	sender  *Sender
	retrier *Retrier
	trail   AttemptRecorder
	dlq     DLQPusher
	config  EngineConfig
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a delivery engine.
func NewEngine(store EngineStore, trail AttemptRecorder, dlq DLQPusher, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		sender:  NewSender(cfg.RequestTimeout),
		retrier: NewRetrier(cfg.Backoff),
		trail:   trail,
		dlq:     dlq,
		config:  cfg,
		logger:  logger,
	}
}

// Start begins the delivery workers and poll loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight deliveries to complete.
func (e *Engine) Stop(_ context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// pollLoop periodically dequeues pending deliveries and dispatches them to workers.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.store.Dequeue(ctx, e.config.BatchSize)
			if err != nil {
				e.logger.ErrorContext(ctx, "dequeue failed", "error", err)
				continue
			}

			for _, d := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				e.wg.Add(1)
				go func(del *Delivery) {
					defer e.wg.Done()
					defer func() { <-sem }()
					e.process(ctx, del)
				}(d)
			}
		}
	}
}

// process handles a single delivery attempt: re-read the subscription, sign,
// send, record the attempt, update retry counters and escalate if needed.
func (e *Engine) process(ctx context.Context, d *Delivery) {
	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartDeliverySpan(ctx, d.ID.String(), d.EventID.String(), d.SubscriptionID.String())
	}

	// The subscription is re-read on every dequeue: a target deleted or
	// disabled between enqueue and now fails terminally without any HTTP call.
	sub, err := e.store.GetSubscription(ctx, d.SubscriptionID)
	if err != nil {
		e.terminal(ctx, d, nil, "target revoked: "+err.Error())
		e.endSpan(span, d)
		return
	}
	if sub.Status != subscription.StatusActive {
		e.terminal(ctx, d, nil, "target revoked: subscription is "+string(sub.Status))
		e.endSpan(span, d)
		return
	}

	evt, err := e.store.GetEvent(ctx, d.EventID)
	if err != nil {
		e.terminal(ctx, d, nil, "event unavailable: "+err.Error())
		e.endSpan(span, d)
		return
	}

	req, err := e.sender.Prepare(sub, evt, d)
	if err != nil {
		e.terminal(ctx, d, evt, err.Error())
		e.endSpan(span, d)
		return
	}

	if e.config.Limiter != nil {
		if waitErr := e.config.Limiter.Wait(ctx, sub.ID.String(), sub.RateLimit); waitErr != nil {
			// Shutdown while throttled; hand the claim back so the next
			// poll picks the job up again.
			e.release(context.WithoutCancel(ctx), d)
			e.endSpan(span, d)
			return
		}
	}

	d.AttemptCount++

	// The attempt record exists before the HTTP call so a crash mid-call
	// still leaves an auditable trace.
	att := &history.Attempt{
		Entity:         entity.New(),
		ID:             id.NewAttemptID(),
		DeliveryID:     d.ID,
		SubscriptionID: sub.ID,
		EventID:        evt.ID,
		EventType:      evt.Type,
		Attempt:        d.AttemptCount,
		Payload:        req.Body,
		Signature:      req.Signature,
	}
	if e.trail != nil {
		if trailErr := e.trail.Begin(ctx, att); trailErr != nil {
			e.logger.ErrorContext(ctx, "record attempt failed",
				"delivery_id", d.ID, "error", trailErr)
		}
	}

	result := e.sender.Send(ctx, sub, evt, d, req)

	if e.trail != nil {
		if trailErr := e.trail.Complete(ctx, att, result.StatusCode, result.Response, result.Error, result.Success()); trailErr != nil {
			e.logger.ErrorContext(ctx, "complete attempt failed",
				"delivery_id", d.ID, "error", trailErr)
		}
	}

	d.LastError = result.Error
	d.LastStatusCode = result.StatusCode
	d.LastResponse = result.Response
	d.LastLatencyMs = result.LatencyMs

	latencySeconds := float64(result.LatencyMs) / 1000.0

	switch e.retrier.Decide(result, d) {
	case Delivered:
		now := time.Now().UTC()
		d.State = StateDelivered
		d.CompletedAt = &now
		if successErr := e.store.RecordSuccess(ctx, sub.ID); successErr != nil {
			e.logger.ErrorContext(ctx, "record success failed",
				"subscription_id", sub.ID, "error", successErr)
		}
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("delivered", latencySeconds)
			e.config.Metrics.PendingDeliveries.Dec()
		}
		e.logger.DebugContext(ctx, "delivered",
			"delivery_id", d.ID, "status", result.StatusCode, "latency_ms", result.LatencyMs)

	case Retry:
		e.countFailure(ctx, sub)
		d.NextAttemptAt = e.retrier.NextAttempt(d.AttemptCount)
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("retried", latencySeconds)
		}
		e.logger.DebugContext(ctx, "retry scheduled",
			"delivery_id", d.ID, "attempt", d.AttemptCount, "next_at", d.NextAttemptAt)

	case Exhausted:
		e.countFailure(ctx, sub)
		now := time.Now().UTC()
		d.State = StateFailed
		d.CompletedAt = &now
		if e.dlq != nil {
			if dlqErr := e.dlq.PushFailed(ctx, d, sub, evt, result.Error, result.StatusCode); dlqErr != nil {
				e.logger.ErrorContext(ctx, "push to DLQ failed",
					"delivery_id", d.ID, "error", dlqErr)
			}
		}
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("failed", latencySeconds)
			e.config.Metrics.PendingDeliveries.Dec()
			e.config.Metrics.DLQSize.Inc()
		}
		e.logger.WarnContext(ctx, "delivery failed permanently",
			"delivery_id", d.ID, "status", result.StatusCode, "error", result.Error)
	}

	e.endSpan(span, d)

	if updateErr := e.store.UpdateDelivery(ctx, d); updateErr != nil {
		e.logger.ErrorContext(ctx, "update delivery failed",
			"delivery_id", d.ID, "error", updateErr)
	}
}

// release returns a claimed but unattempted delivery to the pending queue.
func (e *Engine) release(ctx context.Context, d *Delivery) {
	d.State = StatePending
	if err := e.store.UpdateDelivery(ctx, d); err != nil {
		e.logger.ErrorContext(ctx, "release delivery failed",
			"delivery_id", d.ID, "error", err)
	}
}

// countFailure increments the subscription's consecutive-failure counter and
// logs the escalation when the retry budget is exhausted.
func (e *Engine) countFailure(ctx context.Context, sub *subscription.Subscription) {
	count, escalated, err := e.store.RecordFailure(ctx, sub.ID)
	if err != nil {
		e.logger.ErrorContext(ctx, "record failure failed",
			"subscription_id", sub.ID, "error", err)
		return
	}
	if escalated {
		if e.config.Metrics != nil {
			e.config.Metrics.EscalationsTotal.Inc()
		}
		e.logger.WarnContext(ctx, "subscription disabled after repeated failures",
			"subscription_id", sub.ID, "failure_count", count, "max_retries", sub.MaxRetries)
	}
}

// terminal marks a delivery as failed without an HTTP attempt (revoked
// target, missing event, unserializable payload) and records the attempt.
func (e *Engine) terminal(ctx context.Context, d *Delivery, evt *event.Event, reason string) {
	d.AttemptCount++
	now := time.Now().UTC()
	d.State = StateFailed
	d.LastError = reason
	d.CompletedAt = &now

	att := &history.Attempt{
		Entity:         entity.New(),
		ID:             id.NewAttemptID(),
		DeliveryID:     d.ID,
		SubscriptionID: d.SubscriptionID,
		EventID:        d.EventID,
		Attempt:        d.AttemptCount,
	}
	if evt != nil {
		att.EventType = evt.Type
	}
	if e.trail != nil {
		if trailErr := e.trail.Begin(ctx, att); trailErr != nil {
			e.logger.ErrorContext(ctx, "record attempt failed",
				"delivery_id", d.ID, "error", trailErr)
		}
		if trailErr := e.trail.Complete(ctx, att, 0, "", reason, false); trailErr != nil {
			e.logger.ErrorContext(ctx, "complete attempt failed",
				"delivery_id", d.ID, "error", trailErr)
		}
	}

	if e.config.Metrics != nil {
		e.config.Metrics.RecordDelivery("revoked", 0)
		e.config.Metrics.PendingDeliveries.Dec()
	}
	e.logger.WarnContext(ctx, "delivery terminally failed",
		"delivery_id", d.ID, "reason", reason)

	if updateErr := e.store.UpdateDelivery(ctx, d); updateErr != nil {
		e.logger.ErrorContext(ctx, "update delivery failed",
			"delivery_id", d.ID, "error", updateErr)
	}
}

// endSpan closes the delivery tracing span with the final result, if tracing is on.
func (e *Engine) endSpan(span trace.Span, d *Delivery) {
	if span != nil && e.config.Tracer != nil {
		e.config.Tracer.EndDeliverySpan(span, d.LastStatusCode, d.LastLatencyMs, d.LastError)
	}
}
