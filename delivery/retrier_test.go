package delivery

import (
	"testing"
	"time"
)

func TestRetrierDecide(t *testing.T) {
	r := NewRetrier(DefaultBackoff())

	tests := []struct {
		name     string
		status   int
		attempts int
		budget   int
		want     Decision
	}{
		{"200 ok", 200, 1, 3, Delivered},
		{"204 no content", 204, 3, 3, Delivered},
		{"500 with budget left", 500, 1, 3, Retry},
		{"404 with budget left", 404, 2, 3, Retry},
		{"timeout with budget left", 0, 1, 3, Retry},
		{"500 exhausted", 500, 3, 3, Exhausted},
		{"404 exhausted", 404, 3, 3, Exhausted},
		{"timeout exhausted", 0, 3, 3, Exhausted},
		{"single attempt budget", 500, 1, 1, Exhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Delivery{AttemptCount: tt.attempts, MaxAttempts: tt.budget}
			res := Result{StatusCode: tt.status}
			if got := r.Decide(res, d); got != tt.want {
				t.Errorf("Decide(status=%d, attempts=%d/%d) = %v, want %v",
					tt.status, tt.attempts, tt.budget, got, tt.want)
			}
		})
	}
}

// Client errors and server errors count identically against the budget.
func TestRetrierDecideUniformFailureHandling(t *testing.T) {
	r := NewRetrier(DefaultBackoff())

	for _, status := range []int{400, 401, 403, 404, 429, 500, 502, 503} {
		d := &Delivery{AttemptCount: 1, MaxAttempts: 3}
		if got := r.Decide(Result{StatusCode: status}, d); got != Retry {
			t.Errorf("Decide(status=%d) = %v, want Retry", status, got)
		}
	}
}

func TestRetrierNextAttempt(t *testing.T) {
	r := NewRetrier(Backoff{Base: 10 * time.Second, Max: time.Hour})

	before := time.Now().UTC()
	next := r.NextAttempt(1)

	if next.Before(before.Add(9 * time.Second)) {
		t.Errorf("NextAttempt(1) = %v, want at least 10s after now", next)
	}
	if next.After(before.Add(11 * time.Second)) {
		t.Errorf("NextAttempt(1) = %v, want about 10s after now", next)
	}
}

func TestResultSuccess(t *testing.T) {
	for _, status := range []int{200, 201, 204, 299} {
		if !(Result{StatusCode: status}).Success() {
			t.Errorf("Success() = false for %d", status)
		}
	}
	for _, status := range []int{0, 199, 300, 400, 500} {
		if (Result{StatusCode: status}).Success() {
			t.Errorf("Success() = true for %d", status)
		}
	}
}
