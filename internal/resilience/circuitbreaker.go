// Package resilience keeps captions flowing when a translation backend
// misbehaves. A [CircuitBreaker] guards each backend with the classic
// closed → open → half-open cycle, and [FallbackTranslator] routes requests
// around tripped backends so a dying primary degrades to its fallbacks
// instead of eating the retry budget of every caption.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/overcast-online/lingograph/internal/observe"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls: the backend tripped it and the reset timeout has not
// elapsed, or the half-open probe budget is spent.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is one phase of a [CircuitBreaker]'s cycle.
type State uint8

const (
	// StateClosed forwards every call and counts consecutive failures.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has elapsed since the breaker tripped.
	StateOpen

	// StateHalfOpen admits a limited number of probe calls. Enough
	// successes close the breaker; a single failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig tunes one [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the guarded backend in logs and metric attributes.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker.
	// Default: 5.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker rejects calls before
	// letting probes through. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is how many successful probe calls close the breaker
	// again. Default: 3.
	HalfOpenMax int

	// Metrics receives state transition counts. Optional.
	Metrics *observe.Metrics
}

// CircuitBreaker guards one translation backend. The zero counters live
// behind mu; every state change funnels through shift so transitions are
// logged and counted exactly once.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int       // consecutive failures while closed
	trippedAt time.Time // when the breaker last opened
	probes    int       // calls admitted while half-open
	probeWins int       // successful probes
}

// NewCircuitBreaker creates a closed [CircuitBreaker] with the supplied
// configuration. Zero-value fields fall back to the defaults above.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn when the breaker admits the call and folds the result
// into the breaker's state. While the breaker is open it returns
// [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.admit(ctx); err != nil {
		return err
	}
	err := fn()
	cb.settle(ctx, err)
	return err
}

// admit decides whether a call may proceed, performing the open → half-open
// transition once the reset timeout has elapsed.
func (cb *CircuitBreaker) admit(ctx context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.trippedAt) < cb.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		cb.shift(ctx, StateHalfOpen)
		cb.probes = 1
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMax {
			return ErrCircuitOpen
		}
		cb.probes++
	}
	return nil
}

// settle folds one call result into the state machine.
func (cb *CircuitBreaker) settle(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err == nil && cb.state == StateHalfOpen:
		cb.probeWins++
		if cb.probeWins >= cb.cfg.HalfOpenMax {
			cb.shift(ctx, StateClosed)
		}
	case err == nil:
		cb.failures = 0
	case cb.state == StateHalfOpen:
		// One failed probe is enough evidence the backend is still down.
		cb.trippedAt = cb.now()
		cb.shift(ctx, StateOpen)
	case cb.state == StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			cb.trippedAt = cb.now()
			cb.shift(ctx, StateOpen)
		}
	}
}

// shift moves the breaker to a new state, clearing the counters of the one
// it leaves. Must be called with cb.mu held.
func (cb *CircuitBreaker) shift(ctx context.Context, to State) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.probes = 0
	cb.probeWins = 0
	if from == to {
		return
	}

	cb.cfg.Metrics.RecordBreakerTransition(ctx, cb.cfg.Name, from.String(), to.String())
	if to == StateClosed {
		slog.Info("translation backend recovered",
			"backend", cb.cfg.Name, "from", from.String())
	} else {
		slog.Warn("circuit breaker state changed",
			"backend", cb.cfg.Name, "from", from.String(), "to", to.String())
	}
}

// State reports the breaker's effective state. An open breaker whose reset
// timeout has elapsed reports half-open; the transition itself happens on
// the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.trippedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears every counter.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.shift(context.Background(), StateClosed)
}
