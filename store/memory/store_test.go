package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/delivery"
	"github.com/veloxpay/dispatch/event"
	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
	"github.com/veloxpay/dispatch/subscription"
)

func newTestSubscription(t *testing.T, s *Store, maxRetries int) *subscription.Subscription {
	t.Helper()
	sub := &subscription.Subscription{
		Entity:     entity.New(),
		ID:         id.NewSubscriptionID(),
		TenantID:   "acme",
		URL:        "https://example.com/hook",
		Secret:     "whsec_test",
		EventTypes: []string{"payment.completed"},
		Status:     subscription.StatusActive,
		MaxRetries: maxRetries,
	}
	if err := s.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	return sub
}

func TestRecordFailureEscalatesExactlyOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	sub := newTestSubscription(t, s, 3)

	for i := 1; i <= 2; i++ {
		count, escalated, err := s.RecordFailure(ctx, sub.ID)
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if count != i || escalated {
			t.Fatalf("failure %d: count=%d escalated=%v", i, count, escalated)
		}
	}

	count, escalated, err := s.RecordFailure(ctx, sub.ID)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if count != 3 || !escalated {
		t.Fatalf("third failure: count=%d escalated=%v, want 3/true", count, escalated)
	}

	// The subscription is now failed; further failures must not escalate again.
	count, escalated, err = s.RecordFailure(ctx, sub.ID)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if count != 4 || escalated {
		t.Fatalf("fourth failure: count=%d escalated=%v, want 4/false", count, escalated)
	}

	got, err := s.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if got.Status != subscription.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestRecordFailureConcurrentSingleEscalation(t *testing.T) {
	s := New()
	ctx := context.Background()
	sub := newTestSubscription(t, s, 3)

	var wg sync.WaitGroup
	escalations := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, escalated, err := s.RecordFailure(ctx, sub.ID)
			if err != nil {
				t.Errorf("RecordFailure: %v", err)
				return
			}
			escalations <- escalated
		}()
	}
	wg.Wait()
	close(escalations)

	total := 0
	for escalated := range escalations {
		if escalated {
			total++
		}
	}
	if total != 1 {
		t.Errorf("escalations = %d, want exactly 1", total)
	}
}

func TestRecordSuccessResetsCounter(t *testing.T) {
	s := New()
	ctx := context.Background()
	sub := newTestSubscription(t, s, 5)

	s.RecordFailure(ctx, sub.ID)
	s.RecordFailure(ctx, sub.ID)

	if err := s.RecordSuccess(ctx, sub.ID); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}

	got, err := s.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if got.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0", got.FailureCount)
	}
	if got.LastTriggeredAt == nil {
		t.Error("LastTriggeredAt not stamped")
	}
	if got.Status != subscription.StatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
}

func TestResolveExactMatching(t *testing.T) {
	s := New()
	ctx := context.Background()

	sub := newTestSubscription(t, s, 3)

	other := newTestSubscription(t, s, 3)
	other.EventTypes = []string{"invoice.created"}
	if err := s.UpdateSubscription(ctx, other); err != nil {
		t.Fatalf("UpdateSubscription: %v", err)
	}

	matches, err := s.Resolve(ctx, "acme", "payment.completed")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(matches) != 1 || matches[0].ID.String() != sub.ID.String() {
		t.Fatalf("Resolve returned %d matches, want the payment.completed subscriber", len(matches))
	}

	// No prefix or wildcard semantics.
	matches, err = s.Resolve(ctx, "acme", "payment")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Resolve(%q) = %d matches, want 0", "payment", len(matches))
	}

	// Inactive subscriptions never match.
	if err := s.SetStatus(ctx, sub.ID, subscription.StatusInactive); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	matches, err = s.Resolve(ctx, "acme", "payment.completed")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Resolve with inactive sub = %d matches, want 0", len(matches))
	}
}

func TestDequeueLocksUntilUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()

	d := &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		EventID:        id.NewEventID(),
		SubscriptionID: id.NewSubscriptionID(),
		State:          delivery.StatePending,
		MaxAttempts:    3,
		NextAttemptAt:  time.Now().Add(-time.Second),
	}
	if err := s.Enqueue(ctx, d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	first, err := s.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first Dequeue = %d jobs, want 1", len(first))
	}

	second, err := s.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second Dequeue = %d jobs, want 0 while locked", len(second))
	}

	// Still pending after the update: eligible again.
	first[0].AttemptCount = 1
	first[0].NextAttemptAt = time.Now().Add(-time.Millisecond)
	if err := s.UpdateDelivery(ctx, first[0]); err != nil {
		t.Fatalf("UpdateDelivery: %v", err)
	}

	third, err := s.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(third) != 1 {
		t.Fatalf("third Dequeue = %d jobs, want 1 after release", len(third))
	}
}

func TestDequeueSkipsFutureAndTerminal(t *testing.T) {
	s := New()
	ctx := context.Background()

	future := &delivery.Delivery{
		Entity:        entity.New(),
		ID:            id.NewDeliveryID(),
		State:         delivery.StatePending,
		NextAttemptAt: time.Now().Add(time.Hour),
	}
	done := &delivery.Delivery{
		Entity:        entity.New(),
		ID:            id.NewDeliveryID(),
		State:         delivery.StateDelivered,
		NextAttemptAt: time.Now().Add(-time.Hour),
	}
	if err := s.EnqueueBatch(ctx, []*delivery.Delivery{future, done}); err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}

	batch, err := s.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(batch) != 0 {
		t.Errorf("Dequeue = %d jobs, want 0", len(batch))
	}
}

func TestCreateEventDuplicateIdempotencyKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	evt := &event.Event{
		Entity:         entity.New(),
		ID:             id.NewEventID(),
		Type:           "payment.completed",
		TenantID:       "acme",
		IdempotencyKey: "pay_123",
	}
	if err := s.CreateEvent(ctx, evt); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	dup := &event.Event{
		Entity:         entity.New(),
		ID:             id.NewEventID(),
		Type:           "payment.completed",
		TenantID:       "acme",
		IdempotencyKey: "pay_123",
	}
	err := s.CreateEvent(ctx, dup)
	if !errors.Is(err, dispatch.ErrDuplicateIdempotencyKey) {
		t.Fatalf("CreateEvent dup = %v, want ErrDuplicateIdempotencyKey", err)
	}
}

func TestGetSubscriptionNotFound(t *testing.T) {
	s := New()
	_, err := s.GetSubscription(context.Background(), id.NewSubscriptionID())
	if !errors.Is(err, dispatch.ErrSubscriptionNotFound) {
		t.Fatalf("err = %v, want ErrSubscriptionNotFound", err)
	}
}
