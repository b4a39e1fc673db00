package delivery

import "time"

// Backoff computes the wait before retry attempt k as Base * 2^(k-1),
// capped at Max. It is a pure function of the attempt number so tests can
// assert scheduling without waiting in real time.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Max caps the computed delay. Zero means no cap.
	Max time.Duration
}

// DefaultBackoff returns the standard schedule: 2s base, doubling per
// attempt, capped at 2 hours.
func DefaultBackoff() Backoff {
	return Backoff{
		Base: 2 * time.Second,
		Max:  2 * time.Hour,
	}
}

// Delay returns the wait before the given attempt number (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := b.Base
	for i := 1; i < attempt; i++ {
		prev := d
		d *= 2
		if d <= prev { // overflow
			d = prev
			break
		}
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}

	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}
