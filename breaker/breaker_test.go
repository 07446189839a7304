package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowtidehq/flowtide/breaker"
)

var errBoom = errors.New("boom")

// fakeClock lets tests step through the open→half-open timeout.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func fail(_ context.Context) error    { return errBoom }
func succeed(_ context.Context) error { return nil }

func newTestBreaker(clock *fakeClock) *breaker.Breaker {
	return breaker.New("tracker", breaker.Settings{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		VolumeThreshold:  5,
		Timeout:          30 * time.Second,
	}, breaker.WithClock(clock.Now))
}

func tripBreaker(t *testing.T, b *breaker.Breaker) {
	t.Helper()
	ctx := context.Background()
	// Two successes + three failures = 5 calls (volume) with 3 failures.
	for range 2 {
		if err := b.Execute(ctx, succeed); err != nil {
			t.Fatalf("unexpected success-path error: %v", err)
		}
	}
	for range 3 {
		if err := b.Execute(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("expected handler error, got %v", err)
		}
	}
	if got := b.State(); got != breaker.StateOpen {
		t.Fatalf("state after trip = %v, want open", got)
	}
}

func TestBreaker_OpensAtThresholds(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	// Failures below the volume threshold must not trip the circuit.
	for range 3 {
		_ = b.Execute(ctx, fail)
	}
	if got := b.State(); got != breaker.StateClosed {
		t.Fatalf("state below volume threshold = %v, want closed", got)
	}

	// Two more calls reach the volume threshold; failure count already
	// exceeds the failure threshold, so the circuit opens.
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	if got := b.State(); got != breaker.StateOpen {
		t.Fatalf("state at thresholds = %v, want open", got)
	}
}

func TestBreaker_ShedsCallsWhileOpen(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	tripBreaker(t, b)

	called := false
	err := b.Execute(context.Background(), func(_ context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("guarded function must not run while the circuit is open")
	}
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	tripBreaker(t, b)

	clock.Advance(31 * time.Second)

	var stateDuringProbe breaker.State
	err := b.Execute(context.Background(), func(_ context.Context) error {
		stateDuringProbe = b.State()
		return nil
	})
	if err != nil {
		t.Fatalf("probe error: %v", err)
	}
	// The transition to half-open happens before the probe executes.
	if stateDuringProbe != breaker.StateHalfOpen {
		t.Errorf("state during probe = %v, want half_open", stateDuringProbe)
	}
}

func TestBreaker_ClosesAfterConsecutiveSuccesses(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	tripBreaker(t, b)
	clock.Advance(31 * time.Second)

	ctx := context.Background()
	for range 2 {
		if err := b.Execute(ctx, succeed); err != nil {
			t.Fatalf("probe error: %v", err)
		}
	}
	if got := b.State(); got != breaker.StateClosed {
		t.Fatalf("state after %d successes = %v, want closed", 2, got)
	}

	// Closing resets all counters.
	counts := b.Snapshot()
	if counts.Failures != 0 || counts.TotalCalls != 0 || counts.ConsecutiveSuccesses != 0 {
		t.Errorf("counters not reset on close: %+v", counts)
	}
}

func TestBreaker_ReopensOnHalfOpenFailure(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	tripBreaker(t, b)
	clock.Advance(31 * time.Second)

	ctx := context.Background()
	if err := b.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe error: %v", err)
	}
	// One failure in half-open reopens immediately.
	_ = b.Execute(ctx, fail)
	if got := b.State(); got != breaker.StateOpen {
		t.Fatalf("state after half-open failure = %v, want open", got)
	}

	// And the circuit sheds again without waiting.
	if err := b.Execute(ctx, succeed); !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("expected ErrOpen after reopen, got %v", err)
	}
}

func TestBreaker_OpenCountersCarryForObservability(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	tripBreaker(t, b)

	counts := b.Snapshot()
	if counts.Failures == 0 {
		t.Error("failure count should carry into the open state")
	}
	if counts.TotalCalls == 0 {
		t.Error("total calls should carry into the open state")
	}
}

func TestExecuteWithFallback_SwallowsErrOpen(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	tripBreaker(t, b)

	fallbackRan := false
	err := b.ExecuteWithFallback(context.Background(), succeed,
		func(_ context.Context, cause error) error {
			if !errors.Is(cause, breaker.ErrOpen) {
				t.Errorf("fallback cause = %v, want ErrOpen", cause)
			}
			fallbackRan = true
			return nil
		})
	if err != nil {
		t.Fatalf("fallback path returned error: %v", err)
	}
	if !fallbackRan {
		t.Error("fallback did not run")
	}
}

func TestExecuteWithFallback_PassesThroughHandlerErrors(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	err := b.ExecuteWithFallback(context.Background(), fail,
		func(_ context.Context, _ error) error {
			t.Error("fallback must not run for ordinary handler errors")
			return nil
		})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestDoWithFallback_ReturnsFallbackResult(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	tripBreaker(t, b)

	got, err := breaker.DoWithFallback(context.Background(), b,
		func(_ context.Context) (string, error) { return "live", nil },
		func(_ context.Context, _ error) (string, error) { return "cached", nil },
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "cached" {
		t.Errorf("result = %q, want %q", got, "cached")
	}
}

func TestRegistry_DistinctSettingsPerDependency(t *testing.T) {
	r := breaker.NewRegistry()

	for _, name := range []string{breaker.DepTracker, breaker.DepCodeHost, breaker.DepLLM, breaker.DepChat} {
		if r.Get(name) == nil {
			t.Errorf("registry missing breaker for %q", name)
		}
	}
	if r.Get("unknown") != nil {
		t.Error("registry returned a breaker for an unknown dependency")
	}
	if got := len(r.All()); got != 4 {
		t.Errorf("All() returned %d breakers, want 4", got)
	}
}

func TestRegistry_StateChangeCallback(t *testing.T) {
	var transitions []string
	r := breaker.NewRegistry(
		breaker.WithRegistryStateChange(func(name string, from, to breaker.State) {
			transitions = append(transitions, name+":"+string(from)+"->"+string(to))
		}),
		breaker.WithSettings(breaker.DepTracker, breaker.Settings{
			FailureThreshold: 1,
			SuccessThreshold: 1,
			VolumeThreshold:  1,
			Timeout:          time.Minute,
		}),
	)

	_ = r.Get(breaker.DepTracker).Execute(context.Background(), fail)
	if len(transitions) != 1 || transitions[0] != "tracker:closed->open" {
		t.Errorf("transitions = %v, want [tracker:closed->open]", transitions)
	}
}
