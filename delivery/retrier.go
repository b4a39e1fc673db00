package delivery

import "time"

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Delivered means the delivery was successful (2xx).
	Delivered Decision = iota

	// Retry means the delivery should be attempted again later.
	Retry

	// Exhausted means the attempt budget is spent and the delivery is
	// terminally failed.
	Exhausted
)

// Result holds the outcome of a single delivery attempt.
type Result struct {
	StatusCode int
	Error      string
	Response   string
	LatencyMs  int
}

// Success reports whether the attempt got a 2xx response.
func (r Result) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Retrier decides what to do after a delivery attempt and schedules retries.
type Retrier struct {
	backoff Backoff
}

// NewRetrier creates a retrier with the given backoff policy.
func NewRetrier(backoff Backoff) *Retrier {
	return &Retrier{backoff: backoff}
}

// Decide determines what to do with a delivery after an attempt.
//
// Any 2xx is success. Every other outcome — 4xx, 5xx, timeout, connection
// error (status 0) — counts identically against the attempt budget.
// Deliberately no 4xx/5xx distinction: the budget is small and uniform
// handling keeps retry behavior predictable for receivers.
func (r *Retrier) Decide(res Result, d *Delivery) Decision {
	if res.Success() {
		return Delivered
	}

	if d.AttemptCount < d.MaxAttempts {
		return Retry
	}
	return Exhausted
}

// NextAttempt returns the time at which the next attempt should be made,
// given the number of attempts already performed.
func (r *Retrier) NextAttempt(attemptCount int) time.Time {
	return time.Now().UTC().Add(r.backoff.Delay(attemptCount))
}
