// Package breaker implements a per-dependency circuit breaker guarding
// outbound calls to unreliable external services (issue trackers, code
// hosts, LLM and chat APIs).
//
// Breaker state is process-local by design: it is a stability valve,
// not a distributed consensus mechanism. Under correlated failure every
// worker process converges to the same behavior independently.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by Execute when the circuit is open and the reset
// timeout has not elapsed. The guarded function is not called. Test with
// errors.Is.
var ErrOpen = errors.New("breaker: circuit open")

// State is the circuit breaker state.
type State string

const (
	// StateClosed means calls flow through normally.
	StateClosed State = "closed"
	// StateOpen means calls are shed without invoking the dependency.
	StateOpen State = "open"
	// StateHalfOpen means recovery probes are allowed through.
	StateHalfOpen State = "half_open"
)

// Settings tunes a Breaker. Each external dependency gets its own
// thresholds: an LLM API tolerates fewer failures but needs a longer
// recovery timeout than a plain REST API.
type Settings struct {
	// FailureThreshold is the failure count that trips the circuit
	// (once VolumeThreshold calls have been observed).
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in
	// half-open state required to close the circuit.
	SuccessThreshold int

	// VolumeThreshold is the minimum number of calls before the
	// failure threshold applies. Prevents tripping on the first
	// failure of a cold breaker.
	VolumeThreshold int

	// Timeout is how long the circuit stays open before the next call
	// is allowed through as a half-open probe.
	Timeout time.Duration
}

// DefaultSettings returns settings suitable for a conventional REST API.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		VolumeThreshold:  10,
		Timeout:          30 * time.Second,
	}
}

// StateChangeFunc is notified on every state transition.
type StateChangeFunc func(name string, from, to State)

// Counts is a read-only snapshot of breaker counters for health and
// metrics surfaces.
type Counts struct {
	State                State
	Failures             int
	Successes            int
	ConsecutiveSuccesses int
	TotalCalls           int
	LastFailureTime      time.Time
}

// Breaker is a failure/success state machine guarding one external
// dependency. Mutated only through Execute; state transitions are the
// sole source of truth for whether a call is attempted.
type Breaker struct {
	name     string
	settings Settings
	logger   *slog.Logger
	onChange StateChangeFunc
	now      func() time.Time

	mu                   sync.Mutex
	state                State
	failures             int
	successes            int
	consecutiveSuccesses int
	totalCalls           int
	lastFailureTime      time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Breaker) { b.logger = l }
}

// WithClock overrides the time source. Tests use this to step through
// the open→half-open timeout without sleeping.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithStateChange registers a callback invoked on every transition.
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// New creates a Breaker for the named dependency.
func New(name string, settings Settings, opts ...Option) *Breaker {
	b := &Breaker{
		name:     name,
		settings: settings,
		logger:   slog.Default(),
		now:      time.Now,
		state:    StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the current counters.
func (b *Breaker) Snapshot() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{
		State:                b.state,
		Failures:             b.failures,
		Successes:            b.successes,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		TotalCalls:           b.totalCalls,
		LastFailureTime:      b.lastFailureTime,
	}
}

// Execute runs fn through the breaker. When the circuit is open and the
// reset timeout has not elapsed, fn is not called and ErrOpen is
// returned (wrapped with the dependency name). The open→half-open
// transition happens before fn executes, so the first call after the
// timeout is the recovery probe.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err == nil)
	return err
}

// ExecuteWithFallback is like Execute but never surfaces ErrOpen: when
// the circuit sheds the call, fallback runs instead and its error (or
// nil) is returned.
func (b *Breaker) ExecuteWithFallback(
	ctx context.Context,
	fn func(context.Context) error,
	fallback func(context.Context, error) error,
) error {
	err := b.Execute(ctx, fn)
	if errors.Is(err, ErrOpen) {
		return fallback(ctx, err)
	}
	return err
}

// allow decides whether a call may proceed, transitioning open→half-open
// when the reset timeout has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	if b.now().Sub(b.lastFailureTime) >= b.settings.Timeout {
		b.transition(StateHalfOpen)
		return nil
	}

	return fmt.Errorf("%s: %w", b.name, ErrOpen)
}

// record updates counters after a call and applies the transition law.
func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++

	if success {
		b.successes++
		b.consecutiveSuccesses++

		if b.state == StateHalfOpen && b.consecutiveSuccesses >= b.settings.SuccessThreshold {
			// Closing resets all counters.
			b.failures = 0
			b.successes = 0
			b.consecutiveSuccesses = 0
			b.totalCalls = 0
			b.lastFailureTime = time.Time{}
			b.transition(StateClosed)
		}
		return
	}

	b.failures++
	b.consecutiveSuccesses = 0
	b.lastFailureTime = b.now()

	switch b.state {
	case StateHalfOpen:
		// A single failed probe reopens immediately. Counters carry
		// into the open state for observability.
		b.transition(StateOpen)
	case StateClosed:
		if b.totalCalls >= b.settings.VolumeThreshold && b.failures >= b.settings.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateOpen:
		// Already open; nothing to do.
	}
}

// transition changes state and fires the callback. Caller holds b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	b.logger.Warn("circuit breaker state change",
		slog.String("dependency", b.name),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.Int("failures", b.failures),
		slog.Int("total_calls", b.totalCalls),
	)

	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

// Do runs a result-returning function through the breaker. This is a
// package-level generic because Go does not allow generic methods on
// non-generic receiver types.
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

// DoWithFallback runs fn through the breaker, substituting the
// fallback's result when the circuit sheds the call. ErrOpen never
// escapes this function.
func DoWithFallback[T any](
	ctx context.Context,
	b *Breaker,
	fn func(context.Context) (T, error),
	fallback func(context.Context, error) (T, error),
) (T, error) {
	result, err := Do(ctx, b, fn)
	if errors.Is(err, ErrOpen) {
		return fallback(ctx, err)
	}
	return result, err
}
