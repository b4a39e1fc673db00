package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	dispatch "github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/catalog"
	"github.com/veloxpay/dispatch/delivery"
	"github.com/veloxpay/dispatch/event"
	"github.com/veloxpay/dispatch/history"
	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
	"github.com/veloxpay/dispatch/signature"
	"github.com/veloxpay/dispatch/store/memory"
	"github.com/veloxpay/dispatch/subscription"
)

func newDispatcher(t *testing.T, opts ...dispatch.Option) (*dispatch.Dispatcher, *memory.Store) {
	t.Helper()
	st := memory.New()
	all := append([]dispatch.Option{
		dispatch.WithStore(st),
		dispatch.WithPollInterval(10 * time.Millisecond),
		dispatch.WithBackoff(delivery.Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond}),
	}, opts...)
	d, err := dispatch.New(all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, st
}

func TestNewRequiresStore(t *testing.T) {
	_, err := dispatch.New()
	if !errors.Is(err, dispatch.ErrNoStore) {
		t.Fatalf("New() = %v, want ErrNoStore", err)
	}
}

func TestTriggerFansOutToExactMatches(t *testing.T) {
	d, st := newDispatcher(t)
	ctx := context.Background()

	svc := d.Subscriptions()
	if _, _, err := svc.Register(ctx, subscription.Input{
		TenantID:   "acme",
		URL:        "https://example.com/a",
		EventTypes: []string{"payment.completed"},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Register(ctx, subscription.Input{
		TenantID:   "acme",
		URL:        "https://example.com/b",
		EventTypes: []string{"payment.completed", "payment.failed"},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Register(ctx, subscription.Input{
		TenantID:   "acme",
		URL:        "https://example.com/c",
		EventTypes: []string{"invoice.created"},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Different tenant, same event type: never matched.
	if _, _, err := svc.Register(ctx, subscription.Input{
		TenantID:   "globex",
		URL:        "https://example.com/d",
		EventTypes: []string{"payment.completed"},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	n, err := d.Trigger(ctx, &event.Event{
		Type:     "payment.completed",
		TenantID: "acme",
		Data:     map[string]any{"amount": 42.0},
	})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if n != 2 {
		t.Errorf("Trigger enqueued %d deliveries, want 2", n)
	}

	pending, err := st.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	if pending != 2 {
		t.Errorf("CountPending = %d, want 2", pending)
	}
}

func TestTriggerIdempotencyKeyDuplicate(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	if _, _, err := d.Subscriptions().Register(ctx, subscription.Input{
		TenantID:   "acme",
		URL:        "https://example.com/hook",
		EventTypes: []string{"payment.completed"},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	evt := func() *event.Event {
		return &event.Event{
			Type:           "payment.completed",
			TenantID:       "acme",
			IdempotencyKey: "pay_777",
		}
	}

	n, err := d.Trigger(ctx, evt())
	if err != nil {
		t.Fatalf("first Trigger: %v", err)
	}
	if n != 1 {
		t.Fatalf("first Trigger = %d deliveries, want 1", n)
	}

	// The duplicate is a no-op success, not an error.
	n, err = d.Trigger(ctx, evt())
	if err != nil {
		t.Fatalf("duplicate Trigger: %v", err)
	}
	if n != 0 {
		t.Errorf("duplicate Trigger = %d deliveries, want 0", n)
	}
}

func TestTriggerStrictModeRejectsUnknownType(t *testing.T) {
	d, _ := newDispatcher(t, dispatch.WithCatalogStrict(true))

	_, err := d.Trigger(context.Background(), &event.Event{
		Type:     "not.registered",
		TenantID: "acme",
	})
	if !errors.Is(err, dispatch.ErrEventTypeNotFound) {
		t.Fatalf("Trigger = %v, want ErrEventTypeNotFound", err)
	}
}

func TestTriggerLenientModeAllowsUnknownType(t *testing.T) {
	d, _ := newDispatcher(t)

	if _, err := d.Trigger(context.Background(), &event.Event{
		Type:     "not.registered",
		TenantID: "acme",
	}); err != nil {
		t.Fatalf("Trigger = %v, want success in lenient mode", err)
	}
}

func TestTriggerRejectsDeprecatedType(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	if _, err := d.RegisterEventType(ctx, catalog.Definition{Name: "legacy.event"}, nil); err != nil {
		t.Fatalf("RegisterEventType: %v", err)
	}
	if err := d.Catalog().DeleteType(ctx, "legacy.event"); err != nil {
		t.Fatalf("DeleteType: %v", err)
	}

	_, err := d.Trigger(ctx, &event.Event{Type: "legacy.event", TenantID: "acme"})
	if !errors.Is(err, dispatch.ErrEventTypeDeprecated) {
		t.Fatalf("Trigger = %v, want ErrEventTypeDeprecated", err)
	}
}

func TestTriggerValidatesPayloadAgainstSchema(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	if _, err := d.RegisterEventType(ctx, catalog.Definition{
		Name: "payment.completed",
		Schema: json.RawMessage(`{
			"type": "object",
			"required": ["amount"],
			"properties": {"amount": {"type": "number"}}
		}`),
	}, nil); err != nil {
		t.Fatalf("RegisterEventType: %v", err)
	}

	_, err := d.Trigger(ctx, &event.Event{
		Type:     "payment.completed",
		TenantID: "acme",
		Data:     map[string]any{"amount": "not a number"},
	})
	if !errors.Is(err, dispatch.ErrPayloadValidationFailed) {
		t.Fatalf("Trigger = %v, want ErrPayloadValidationFailed", err)
	}

	if _, err := d.Trigger(ctx, &event.Event{
		Type:     "payment.completed",
		TenantID: "acme",
		Data:     map[string]any{"amount": 19.99},
	}); err != nil {
		t.Fatalf("Trigger with valid payload: %v", err)
	}
}

// End to end: trigger, deliver, verify the signature receiver-side, then
// break the endpoint until the subscription escalates and goes quiet.
func TestEndToEndDeliveryAndEscalation(t *testing.T) {
	d, st := newDispatcher(t)
	ctx := context.Background()

	var fail atomic.Bool
	var sigOK atomic.Bool
	var secret atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		sigOK.Store(signature.Verify(body, secret.Load().(string), r.Header.Get("X-Dispatch-Signature")))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub, plaintext, err := d.Subscriptions().Register(ctx, subscription.Input{
		TenantID:   "acme",
		URL:        srv.URL,
		EventTypes: []string{"payment.completed"},
		MaxRetries: 3,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	secret.Store(plaintext)

	d.Start(ctx)
	defer d.Stop(ctx)

	trigger := func() int {
		t.Helper()
		n, err := d.Trigger(ctx, &event.Event{
			Type:     "payment.completed",
			TenantID: "acme",
			Data:     map[string]any{"amount": 42.0},
		})
		if err != nil {
			t.Fatalf("Trigger: %v", err)
		}
		return n
	}

	waitDone := func(state delivery.State) {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			ds, err := st.ListBySubscription(ctx, sub.ID, delivery.ListOpts{State: &state})
			if err != nil {
				t.Fatalf("ListBySubscription: %v", err)
			}
			if len(ds) > 0 {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("no delivery reached state %s", state)
	}

	// Happy path.
	if n := trigger(); n != 1 {
		t.Fatalf("Trigger = %d, want 1", n)
	}
	waitDone(delivery.StateDelivered)
	if !sigOK.Load() {
		t.Fatal("receiver-side signature verification failed")
	}

	// Break the endpoint; three failures exhaust the budget and escalate.
	fail.Store(true)
	trigger()
	waitDone(delivery.StateFailed)

	got, err := st.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if got.Status != subscription.StatusFailed {
		t.Fatalf("subscription status = %s, want failed", got.Status)
	}

	// A failed subscription no longer matches.
	if n := trigger(); n != 0 {
		t.Errorf("Trigger after escalation = %d deliveries, want 0", n)
	}
}

func TestTestDelivery(t *testing.T) {
	d, st := newDispatcher(t)
	ctx := context.Background()

	sub, _, err := d.Subscriptions().Register(ctx, subscription.Input{
		TenantID:   "acme",
		URL:        "https://example.com/hook",
		EventTypes: []string{"payment.completed"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	del, err := d.TestDelivery(ctx, sub.ID)
	if err != nil {
		t.Fatalf("TestDelivery: %v", err)
	}
	if del.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", del.MaxAttempts)
	}

	evt, err := st.GetEvent(ctx, del.EventID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if evt.Type != event.TestType {
		t.Errorf("event type = %q, want %q", evt.Type, event.TestType)
	}
}

func TestGetWithDeliveries(t *testing.T) {
	d, st := newDispatcher(t)
	ctx := context.Background()

	sub, _, err := d.Subscriptions().Register(ctx, subscription.Input{
		TenantID:   "acme",
		URL:        "https://example.com/hook",
		EventTypes: []string{"payment.completed"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// More attempts than the detail view returns.
	for i := 0; i < 12; i++ {
		att := &history.Attempt{
			Entity:         entity.New(),
			ID:             id.NewAttemptID(),
			DeliveryID:     id.NewDeliveryID(),
			SubscriptionID: sub.ID,
			EventID:        id.NewEventID(),
			EventType:      "payment.completed",
			Attempt:        1,
			StatusCode:     200,
		}
		if err := st.CreateAttempt(ctx, att); err != nil {
			t.Fatalf("CreateAttempt: %v", err)
		}
	}

	got, attempts, err := d.GetWithDeliveries(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetWithDeliveries: %v", err)
	}
	if got.Secret != "" {
		t.Error("detail view leaks the secret")
	}
	if len(attempts) != history.DefaultRecentLimit {
		t.Errorf("attempts = %d, want %d", len(attempts), history.DefaultRecentLimit)
	}
}

func TestRecentAttemptsDefaultLimit(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	sub, _, err := d.Subscriptions().Register(ctx, subscription.Input{
		TenantID:   "acme",
		URL:        "https://example.com/hook",
		EventTypes: []string{"payment.completed"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	attempts, err := d.History().Recent(ctx, sub.ID, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("Recent on fresh subscription = %d, want 0", len(attempts))
	}
}
