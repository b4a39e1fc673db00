package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	dispatch "github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/catalog"
	"github.com/veloxpay/dispatch/store/memory"
)

// countingStore counts GetType reads so tests can observe cache behavior.
type countingStore struct {
	*memory.Store
	getCalls atomic.Int32
}

func (s *countingStore) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	s.getCalls.Add(1)
	return s.Store.GetType(ctx, name)
}

func newCatalog(t *testing.T) (*catalog.Catalog, *memory.Store) {
	t.Helper()
	st := memory.New()
	return catalog.NewCatalog(st, catalog.Config{}, nil), st
}

func TestRegisterTypeUpsertByName(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	first, err := c.RegisterType(ctx, catalog.Definition{
		Name:        "payment.completed",
		Description: "A payment settled",
		Version:     "2026-01-01",
	}, nil)
	if err != nil {
		t.Fatalf("RegisterType: %v", err)
	}

	second, err := c.RegisterType(ctx, catalog.Definition{
		Name:        "payment.completed",
		Description: "A payment settled successfully",
		Version:     "2026-02-01",
	}, nil)
	if err != nil {
		t.Fatalf("RegisterType update: %v", err)
	}

	// Same name keeps the same identity.
	if first.ID.String() != second.ID.String() {
		t.Errorf("re-register changed ID: %s -> %s", first.ID, second.ID)
	}

	got, err := c.GetType(ctx, "payment.completed")
	if err != nil {
		t.Fatalf("GetType: %v", err)
	}
	if got.Definition.Version != "2026-02-01" {
		t.Errorf("Version = %q, want updated", got.Definition.Version)
	}
}

func TestGetTypeUnknown(t *testing.T) {
	c, _ := newCatalog(t)

	_, err := c.GetType(context.Background(), "no.such.type")
	if !errors.Is(err, dispatch.ErrEventTypeNotFound) {
		t.Fatalf("GetType = %v, want ErrEventTypeNotFound", err)
	}
}

func TestDeleteTypeDeprecates(t *testing.T) {
	c, st := newCatalog(t)
	ctx := context.Background()

	if _, err := c.RegisterType(ctx, catalog.Definition{Name: "invoice.created"}, nil); err != nil {
		t.Fatalf("RegisterType: %v", err)
	}
	if err := c.DeleteType(ctx, "invoice.created"); err != nil {
		t.Fatalf("DeleteType: %v", err)
	}

	// Soft delete: still readable, flagged deprecated.
	et, err := st.GetType(ctx, "invoice.created")
	if err != nil {
		t.Fatalf("GetType after delete: %v", err)
	}
	if !et.IsDeprecated || et.DeprecatedAt == nil {
		t.Error("type not marked deprecated")
	}

	types, err := c.ListTypes(ctx, catalog.ListOpts{})
	if err != nil {
		t.Fatalf("ListTypes: %v", err)
	}
	if len(types) != 0 {
		t.Errorf("ListTypes = %d entries, want deprecated hidden", len(types))
	}

	types, err = c.ListTypes(ctx, catalog.ListOpts{IncludeDeprecated: true})
	if err != nil {
		t.Fatalf("ListTypes: %v", err)
	}
	if len(types) != 1 {
		t.Errorf("ListTypes(IncludeDeprecated) = %d entries, want 1", len(types))
	}
}

func TestWarmCache(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	seed := catalog.NewCatalog(st, catalog.Config{}, nil)
	if _, err := seed.RegisterType(ctx, catalog.Definition{Name: "payment.completed"}, nil); err != nil {
		t.Fatalf("RegisterType: %v", err)
	}
	if _, err := seed.RegisterType(ctx, catalog.Definition{Name: "invoice.created"}, nil); err != nil {
		t.Fatalf("RegisterType: %v", err)
	}

	// A fresh instance over the same store sees everything after warming.
	c := catalog.NewCatalog(st, catalog.Config{}, nil)
	if err := c.WarmCache(ctx); err != nil {
		t.Fatalf("WarmCache: %v", err)
	}
	for _, name := range []string{"payment.completed", "invoice.created"} {
		if _, err := c.GetType(ctx, name); err != nil {
			t.Errorf("GetType(%q) after warm = %v", name, err)
		}
	}
}

func TestCacheServesFreshEntries(t *testing.T) {
	st := &countingStore{Store: memory.New()}
	c := catalog.NewCatalog(st, catalog.Config{CacheTTL: time.Hour}, nil)
	ctx := context.Background()

	// Registration primes the cache.
	if _, err := c.RegisterType(ctx, catalog.Definition{Name: "payment.completed"}, nil); err != nil {
		t.Fatalf("RegisterType: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := c.GetType(ctx, "payment.completed"); err != nil {
			t.Fatalf("GetType: %v", err)
		}
	}
	if got := st.getCalls.Load(); got != 0 {
		t.Errorf("store reads = %d, want 0 within TTL", got)
	}
}

func TestCacheTTLZeroDisablesCaching(t *testing.T) {
	st := &countingStore{Store: memory.New()}
	c := catalog.NewCatalog(st, catalog.Config{}, nil)
	ctx := context.Background()

	if _, err := c.RegisterType(ctx, catalog.Definition{Name: "payment.completed"}, nil); err != nil {
		t.Fatalf("RegisterType: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := c.GetType(ctx, "payment.completed"); err != nil {
			t.Fatalf("GetType: %v", err)
		}
	}
	if got := st.getCalls.Load(); got != 3 {
		t.Errorf("store reads = %d, want 3 with caching disabled", got)
	}
}

func TestCacheExpiredEntryReadsThrough(t *testing.T) {
	st := &countingStore{Store: memory.New()}
	c := catalog.NewCatalog(st, catalog.Config{CacheTTL: 10 * time.Millisecond}, nil)
	ctx := context.Background()

	if _, err := c.RegisterType(ctx, catalog.Definition{Name: "payment.completed"}, nil); err != nil {
		t.Fatalf("RegisterType: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if _, err := c.GetType(ctx, "payment.completed"); err != nil {
		t.Fatalf("GetType: %v", err)
	}
	if got := st.getCalls.Load(); got != 1 {
		t.Errorf("store reads = %d, want 1 after expiry", got)
	}
}

func TestValidatorAcceptsMatchingPayload(t *testing.T) {
	v := catalog.NewValidator()
	schema := json.RawMessage(`{
		"type": "object",
		"required": ["amount", "currency"],
		"properties": {
			"amount": {"type": "number"},
			"currency": {"type": "string"}
		}
	}`)

	data := map[string]any{"amount": 42.0, "currency": "EUR"}
	if err := v.Validate(schema, data); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidatorRejectsBadPayload(t *testing.T) {
	v := catalog.NewValidator()
	schema := json.RawMessage(`{
		"type": "object",
		"required": ["amount"],
		"properties": {"amount": {"type": "number"}}
	}`)

	if err := v.Validate(schema, map[string]any{"amount": "a lot"}); err == nil {
		t.Fatal("Validate accepted a string amount")
	}
	if err := v.Validate(schema, map[string]any{"currency": "EUR"}); err == nil {
		t.Fatal("Validate accepted a payload missing a required field")
	}
}

func TestValidatorNilSchemaSkips(t *testing.T) {
	v := catalog.NewValidator()
	if err := v.Validate(nil, map[string]any{"anything": true}); err != nil {
		t.Fatalf("Validate(nil schema) = %v, want nil", err)
	}
}
