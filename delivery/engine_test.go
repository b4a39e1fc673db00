package delivery_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veloxpay/dispatch/delivery"
	"github.com/veloxpay/dispatch/dlq"
	"github.com/veloxpay/dispatch/event"
	"github.com/veloxpay/dispatch/history"
	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
	"github.com/veloxpay/dispatch/ratelimit"
	"github.com/veloxpay/dispatch/store/memory"
	"github.com/veloxpay/dispatch/subscription"
)

type fixture struct {
	store   *memory.Store
	engine  *delivery.Engine
	history *history.Service
	dlq     *dlq.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	historySvc := history.NewService(st, nil)
	dlqSvc := dlq.NewService(st, st, nil, nil)
	engine := delivery.NewEngine(st, historySvc, dlqSvc, delivery.EngineConfig{
		Concurrency:    2,
		PollInterval:   10 * time.Millisecond,
		BatchSize:      10,
		RequestTimeout: 5 * time.Second,
		Backoff:        delivery.Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond},
	}, nil)
	return &fixture{store: st, engine: engine, history: historySvc, dlq: dlqSvc}
}

func (f *fixture) addSubscription(t *testing.T, url string, maxRetries int) *subscription.Subscription {
	t.Helper()
	sub := &subscription.Subscription{
		Entity:     entity.New(),
		ID:         id.NewSubscriptionID(),
		TenantID:   "acme",
		URL:        url,
		Secret:     "whsec_engine_test",
		EventTypes: []string{"payment.completed"},
		Status:     subscription.StatusActive,
		MaxRetries: maxRetries,
	}
	if err := f.store.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	return sub
}

func (f *fixture) enqueue(t *testing.T, sub *subscription.Subscription, maxAttempts int) *delivery.Delivery {
	t.Helper()
	evt := &event.Event{
		Entity:   entity.New(),
		ID:       id.NewEventID(),
		Type:     "payment.completed",
		TenantID: "acme",
		Data:     map[string]any{"amount": 4200},
	}
	if err := f.store.CreateEvent(context.Background(), evt); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	d := &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		EventID:        evt.ID,
		SubscriptionID: sub.ID,
		State:          delivery.StatePending,
		MaxAttempts:    maxAttempts,
		NextAttemptAt:  time.Now().UTC(),
	}
	if err := f.store.Enqueue(context.Background(), d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return d
}

func waitForState(t *testing.T, st *memory.Store, delID id.ID, want delivery.State) *delivery.Delivery {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		d, err := st.GetDelivery(context.Background(), delID)
		if err != nil {
			t.Fatalf("GetDelivery: %v", err)
		}
		if d.State == want {
			return d
		}
		time.Sleep(10 * time.Millisecond)
	}
	d, _ := st.GetDelivery(context.Background(), delID)
	t.Fatalf("delivery never reached state %s, stuck at %s (attempts %d)", want, d.State, d.AttemptCount)
	return nil
}

func TestEngineDeliversSigned(t *testing.T) {
	f := newFixture(t)

	var gotSig atomic.Value
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(body)
		gotSig.Store(r.Header.Get("X-Dispatch-Signature"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := f.addSubscription(t, srv.URL, 3)
	d := f.enqueue(t, sub, 3)

	ctx := context.Background()
	f.engine.Start(ctx)
	defer f.engine.Stop(ctx)

	done := waitForState(t, f.store, d.ID, delivery.StateDelivered)
	if done.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", done.AttemptCount)
	}
	if done.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}

	// The receiver-side verification: recompute the HMAC over the raw bytes.
	body := gotBody.Load().([]byte)
	mac := hmac.New(sha256.New, []byte(sub.Secret))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if sig := gotSig.Load().(string); sig != want {
		t.Errorf("signature = %q, want %q", sig, want)
	}

	// Success resets the failure counter.
	stored, err := f.store.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if stored.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0", stored.FailureCount)
	}
	if stored.LastTriggeredAt == nil {
		t.Error("LastTriggeredAt not stamped")
	}
}

func TestEngineRetriesUntilExhaustedThenDLQ(t *testing.T) {
	f := newFixture(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sub := f.addSubscription(t, srv.URL, 3)
	d := f.enqueue(t, sub, 3)

	ctx := context.Background()
	f.engine.Start(ctx)
	defer f.engine.Stop(ctx)

	failed := waitForState(t, f.store, d.ID, delivery.StateFailed)
	if failed.AttemptCount != 3 {
		t.Errorf("AttemptCount = %d, want 3", failed.AttemptCount)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("HTTP calls = %d, want 3", got)
	}

	// The subscription escalated to failed after its budget.
	stored, err := f.store.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if stored.Status != subscription.StatusFailed {
		t.Errorf("subscription status = %s, want failed", stored.Status)
	}

	// The exhausted delivery is parked in the DLQ.
	entries, err := f.dlq.List(ctx, dlq.ListOpts{SubscriptionID: sub.ID})
	if err != nil {
		t.Fatalf("DLQ List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("DLQ entries = %d, want 1", len(entries))
	}
	if entries[0].LastStatusCode != http.StatusInternalServerError {
		t.Errorf("LastStatusCode = %d, want 500", entries[0].LastStatusCode)
	}

	// Every attempt left a trail record.
	attempts, err := f.history.ByDelivery(ctx, d.ID)
	if err != nil {
		t.Fatalf("ByDelivery: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(attempts))
	}
	for i, att := range attempts {
		if att.Attempt != i+1 {
			t.Errorf("attempt %d numbered %d", i, att.Attempt)
		}
		if att.StatusCode != http.StatusInternalServerError {
			t.Errorf("attempt %d status = %d, want 500", i, att.StatusCode)
		}
	}
}

func TestEngineRevokedTargetFailsWithoutHTTP(t *testing.T) {
	f := newFixture(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := f.addSubscription(t, srv.URL, 3)
	d := f.enqueue(t, sub, 3)

	// Revoke between enqueue and dequeue.
	ctx := context.Background()
	if err := f.store.SetStatus(ctx, sub.ID, subscription.StatusInactive); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	f.engine.Start(ctx)
	defer f.engine.Stop(ctx)

	failed := waitForState(t, f.store, d.ID, delivery.StateFailed)
	if calls.Load() != 0 {
		t.Errorf("HTTP calls = %d, want 0 for revoked target", calls.Load())
	}
	if failed.LastError == "" {
		t.Error("LastError empty, want revocation reason")
	}

	// Terminal without budget consumption elsewhere: one synthetic attempt.
	attempts, err := f.history.ByDelivery(ctx, d.ID)
	if err != nil {
		t.Fatalf("ByDelivery: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(attempts))
	}
}

func TestEngineReleasesThrottledClaimOnShutdown(t *testing.T) {
	st := memory.New()
	limiter := ratelimit.New()
	engine := delivery.NewEngine(st, nil, nil, delivery.EngineConfig{
		Concurrency:    1,
		PollInterval:   10 * time.Millisecond,
		BatchSize:      10,
		RequestTimeout: time.Second,
		Backoff:        delivery.Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond},
		Limiter:        limiter,
	}, nil)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := &subscription.Subscription{
		Entity:     entity.New(),
		ID:         id.NewSubscriptionID(),
		TenantID:   "acme",
		URL:        srv.URL,
		Secret:     "whsec_engine_test",
		EventTypes: []string{"payment.completed"},
		Status:     subscription.StatusActive,
		MaxRetries: 3,
		RateLimit:  1,
	}
	ctx := context.Background()
	if err := st.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	evt := &event.Event{
		Entity:   entity.New(),
		ID:       id.NewEventID(),
		Type:     "payment.completed",
		TenantID: "acme",
	}
	if err := st.CreateEvent(ctx, evt); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	d := &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		EventID:        evt.ID,
		SubscriptionID: sub.ID,
		State:          delivery.StatePending,
		MaxAttempts:    3,
		NextAttemptAt:  time.Now().UTC(),
	}
	if err := st.Enqueue(ctx, d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Drain the bucket so the worker blocks in the limiter.
	for limiter.Allow(sub.ID.String(), sub.RateLimit) {
	}

	runCtx, cancel := context.WithCancel(ctx)
	engine.Start(runCtx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	engine.Stop(runCtx)

	if got := calls.Load(); got != 0 {
		t.Fatalf("HTTP calls = %d, want 0 while throttled", got)
	}

	// The aborted job must be claimable again, budget untouched.
	batch, err := st.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(batch) != 1 || batch[0].ID.String() != d.ID.String() {
		t.Fatalf("throttled delivery not reclaimed, got %d jobs", len(batch))
	}
	if batch[0].AttemptCount != 0 {
		t.Errorf("AttemptCount = %d, want 0", batch[0].AttemptCount)
	}
	if batch[0].State != delivery.StatePending {
		t.Errorf("state = %s, want pending", batch[0].State)
	}
}

func TestEngineTestDeliveryBudgetOfOne(t *testing.T) {
	f := newFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sub := f.addSubscription(t, srv.URL, 3)
	d := f.enqueue(t, sub, 1)

	ctx := context.Background()
	f.engine.Start(ctx)
	defer f.engine.Stop(ctx)

	failed := waitForState(t, f.store, d.ID, delivery.StateFailed)
	if failed.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", failed.AttemptCount)
	}
}
