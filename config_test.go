package dispatch

import (
	"testing"

	"github.com/veloxpay/dispatch/delivery"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backoff != delivery.DefaultBackoff() {
		t.Errorf("Backoff = %+v, want %+v", cfg.Backoff, delivery.DefaultBackoff())
	}
	if cfg.Backoff.Base <= 0 || cfg.Backoff.Max < cfg.Backoff.Base {
		t.Errorf("Backoff window invalid: %+v", cfg.Backoff)
	}
	if cfg.Concurrency <= 0 {
		t.Errorf("Concurrency = %d, want > 0", cfg.Concurrency)
	}
	if cfg.BatchSize <= 0 {
		t.Errorf("BatchSize = %d, want > 0", cfg.BatchSize)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.PollInterval <= 0 || cfg.RequestTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		t.Errorf("zero duration in defaults: %+v", cfg)
	}
}
