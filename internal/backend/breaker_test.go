package backend

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(failures, successes int, timeout time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := NewBreaker(failures, successes, timeout)
	b.now = clock.now
	return b, clock
}

func TestBreaker_starts_closed(t *testing.T) {
	b, _ := newTestBreaker(3, 2, time.Second)
	if s := b.State(); s != BreakerClosed {
		t.Errorf("initial state = %v, want closed", s)
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() error = %v, want nil", err)
	}
}

func TestBreaker_opens_after_threshold(t *testing.T) {
	b, _ := newTestBreaker(3, 2, time.Second)

	b.RecordFailure()
	b.RecordFailure()
	if s := b.State(); s != BreakerClosed {
		t.Errorf("state after 2 failures = %v, want closed", s)
	}

	b.RecordFailure()
	if s := b.State(); s != BreakerOpen {
		t.Errorf("state after 3 failures = %v, want open", s)
	}
	if err := b.Allow(); err != ErrBreakerOpen {
		t.Errorf("Allow() = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_success_resets_failures(t *testing.T) {
	b, _ := newTestBreaker(3, 2, time.Second)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if s := b.State(); s != BreakerClosed {
		t.Errorf("state = %v, want closed", s)
	}
}

func TestBreaker_half_open_after_timeout(t *testing.T) {
	b, clock := newTestBreaker(1, 2, time.Second)

	b.RecordFailure()
	clock.advance(500 * time.Millisecond)
	if s := b.State(); s != BreakerOpen {
		t.Fatalf("state = %v, want open", s)
	}

	clock.advance(time.Second)
	if s := b.State(); s != BreakerHalfOpen {
		t.Errorf("state after timeout = %v, want half-open", s)
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() in half-open = %v, want nil", err)
	}
}

func TestBreaker_half_open_closes_on_successes(t *testing.T) {
	b, clock := newTestBreaker(1, 2, time.Second)
	b.RecordFailure()
	clock.advance(2 * time.Second)
	_ = b.Allow()

	b.RecordSuccess()
	if s := b.State(); s != BreakerHalfOpen {
		t.Errorf("state after 1 success = %v, want half-open", s)
	}
	b.RecordSuccess()
	if s := b.State(); s != BreakerClosed {
		t.Errorf("state after 2 successes = %v, want closed", s)
	}
}

func TestBreaker_half_open_failure_reopens(t *testing.T) {
	b, clock := newTestBreaker(1, 2, time.Second)
	b.RecordFailure()
	clock.advance(2 * time.Second)
	_ = b.Allow()

	b.RecordFailure()
	if s := b.State(); s != BreakerOpen {
		t.Errorf("state = %v, want open", s)
	}
}

func TestBreaker_reports_transitions(t *testing.T) {
	b, clock := newTestBreaker(1, 1, time.Second)
	var seen []BreakerState
	b.OnStateChange(func(s BreakerState) { seen = append(seen, s) })

	b.RecordFailure()
	clock.advance(2 * time.Second)
	_ = b.Allow()
	b.RecordSuccess()

	want := []BreakerState{BreakerOpen, BreakerHalfOpen, BreakerClosed}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestBreakerState_String(t *testing.T) {
	tests := []struct {
		s    BreakerState
		want string
	}{
		{BreakerClosed, "closed"},
		{BreakerOpen, "open"},
		{BreakerHalfOpen, "half-open"},
		{BreakerState(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
