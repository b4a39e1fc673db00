package delivery

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Max: 2 * time.Hour}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{10, 1024 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second}

	if got := b.Delay(4); got != 8*time.Second {
		t.Errorf("Delay(4) = %v, want 8s", got)
	}
	if got := b.Delay(5); got != 10*time.Second {
		t.Errorf("Delay(5) = %v, want cap 10s", got)
	}
	if got := b.Delay(50); got != 10*time.Second {
		t.Errorf("Delay(50) = %v, want cap 10s", got)
	}
}

func TestBackoffDelayFloorsAttempt(t *testing.T) {
	b := Backoff{Base: 3 * time.Second}

	if got := b.Delay(0); got != 3*time.Second {
		t.Errorf("Delay(0) = %v, want base", got)
	}
	if got := b.Delay(-5); got != 3*time.Second {
		t.Errorf("Delay(-5) = %v, want base", got)
	}
}

func TestBackoffDelayNoCap(t *testing.T) {
	b := Backoff{Base: time.Second}

	if got := b.Delay(6); got != 32*time.Second {
		t.Errorf("Delay(6) = %v, want 32s", got)
	}
}

func TestBackoffDelayOverflow(t *testing.T) {
	b := Backoff{Base: time.Duration(1) << 62}

	// Doubling would overflow; the delay must stay positive.
	if got := b.Delay(5); got <= 0 {
		t.Errorf("Delay(5) = %v, want positive", got)
	}
}

func TestDefaultBackoff(t *testing.T) {
	b := DefaultBackoff()
	if b.Base != 2*time.Second {
		t.Errorf("Base = %v, want 2s", b.Base)
	}
	if b.Max != 2*time.Hour {
		t.Errorf("Max = %v, want 2h", b.Max)
	}
}
