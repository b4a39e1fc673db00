// Package dispatch provides a composable webhook delivery subsystem for Go.
//
// Dispatch is a library, not a service. Import it into your application to
// get tenant-scoped webhook subscriptions, signed at-least-once delivery
// with exponential backoff retries, an append-only attempt trail and a
// replayable dead letter queue.
//
// Key features:
//   - Subscription registry with exact event type matching (no wildcards)
//   - HMAC-SHA256 payload signatures on every delivery
//   - Automatic escalation: subscriptions that keep failing are disabled
//   - Optional event type catalog with JSON Schema payload validation
//   - Composable store pattern with multiple backends (Postgres, SQLite, Redis, Memory)
//   - Per-subscription rate limiting
//
// Quick start:
//
//	d, err := dispatch.New(
//	    dispatch.WithStore(memoryStore),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	d.Start(ctx)
//
//	sub, secret, err := d.Subscriptions().Register(ctx, subscription.Input{
//	    TenantID:   "tenant_123",
//	    URL:        "https://example.com/hooks",
//	    EventTypes: []string{"payment.completed"},
//	})
//
//	d.Trigger(ctx, &event.Event{
//	    Type:     "payment.completed",
//	    TenantID: "tenant_123",
//	    Data:     map[string]any{"payment_id": "pay_01h..."},
//	})
package dispatch
