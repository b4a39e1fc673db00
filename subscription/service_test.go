package subscription_test

import (
	"context"
	"errors"
	"testing"

	dispatch "github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/store/memory"
	"github.com/veloxpay/dispatch/subscription"
)

func validInput() subscription.Input {
	return subscription.Input{
		TenantID:   "acme",
		URL:        "https://example.com/hook",
		EventTypes: []string{"payment.completed", "payment.failed"},
	}
}

func TestRegister(t *testing.T) {
	svc := subscription.NewService(memory.New(), nil)
	ctx := context.Background()

	sub, secret, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if len(secret) != 64 {
		t.Errorf("secret length = %d, want 64 hex chars", len(secret))
	}
	if sub.Secret != "" {
		t.Errorf("returned subscription carries plaintext secret %q", sub.Secret)
	}
	if sub.Status != subscription.StatusActive {
		t.Errorf("status = %s, want active", sub.Status)
	}
	if sub.MaxRetries != subscription.DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want default %d", sub.MaxRetries, subscription.DefaultMaxRetries)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := subscription.NewService(memory.New(), nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*subscription.Input)
	}{
		{"missing tenant", func(in *subscription.Input) { in.TenantID = "" }},
		{"missing url", func(in *subscription.Input) { in.URL = "" }},
		{"relative url", func(in *subscription.Input) { in.URL = "/hook" }},
		{"non-http scheme", func(in *subscription.Input) { in.URL = "ftp://example.com/hook" }},
		{"no event types", func(in *subscription.Input) { in.EventTypes = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, _, err := svc.Register(ctx, in)
			var validationErr *subscription.ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("Register = %v, want ValidationError", err)
			}
		})
	}
}

func TestGetRedactsSecret(t *testing.T) {
	st := memory.New()
	svc := subscription.NewService(st, nil)
	ctx := context.Background()

	created, _, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Secret != "" {
		t.Errorf("Get leaked secret %q", got.Secret)
	}

	// The store still holds the real secret for signing.
	raw, err := st.GetSubscription(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if raw.Secret == "" {
		t.Error("stored secret is empty")
	}
}

func TestRotateSecret(t *testing.T) {
	st := memory.New()
	svc := subscription.NewService(st, nil)
	ctx := context.Background()

	created, oldSecret, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	newSecret, err := svc.RotateSecret(ctx, created.ID)
	if err != nil {
		t.Fatalf("RotateSecret: %v", err)
	}
	if newSecret == oldSecret {
		t.Error("rotation returned the old secret")
	}
	if len(newSecret) != 64 {
		t.Errorf("new secret length = %d, want 64 hex chars", len(newSecret))
	}

	raw, err := st.GetSubscription(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if raw.Secret != newSecret {
		t.Error("store does not hold the rotated secret")
	}
}

func TestUpdatePartial(t *testing.T) {
	svc := subscription.NewService(memory.New(), nil)
	ctx := context.Background()

	created, _, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	updated, err := svc.Update(ctx, created.ID, subscription.Input{
		EventTypes: []string{"invoice.created"},
		MaxRetries: 5,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.EventTypes) != 1 || updated.EventTypes[0] != "invoice.created" {
		t.Errorf("EventTypes = %v, want [invoice.created]", updated.EventTypes)
	}
	if updated.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", updated.MaxRetries)
	}
	// Untouched fields survive.
	if updated.URL != "https://example.com/hook" {
		t.Errorf("URL changed to %q", updated.URL)
	}
}

func TestUpdateRejectsEmptyEventTypes(t *testing.T) {
	svc := subscription.NewService(memory.New(), nil)
	ctx := context.Background()

	created, _, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err = svc.Update(ctx, created.ID, subscription.Input{EventTypes: []string{}})
	var validationErr *subscription.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Update = %v, want ValidationError", err)
	}
}

func TestDelete(t *testing.T) {
	svc := subscription.NewService(memory.New(), nil)
	ctx := context.Background()

	created, _, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err = svc.Get(ctx, created.ID)
	if !errors.Is(err, dispatch.ErrSubscriptionNotFound) {
		t.Fatalf("Get after delete = %v, want ErrSubscriptionNotFound", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	svc := subscription.NewService(memory.New(), nil)
	ctx := context.Background()

	first, _, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Register(ctx, validInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.SetStatus(ctx, first.ID, subscription.StatusInactive); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	active := subscription.StatusActive
	subs, err := svc.List(ctx, "acme", subscription.ListOpts{Status: &active})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("List active = %d, want 1", len(subs))
	}
}
