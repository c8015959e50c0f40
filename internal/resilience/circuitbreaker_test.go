package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/overcast-online/lingograph/internal/observe"
)

var errTest = errors.New("test error")

// fakeClock drives a breaker's notion of time without sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	cb := NewCircuitBreaker(cfg)
	clk := &fakeClock{now: time.Date(2026, 8, 25, 20, 0, 0, 0, time.UTC)}
	cb.now = clk.Now
	return cb, clk
}

// trip fails the breaker until it opens.
func trip(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	for i := 0; cb.State() != StateOpen; i++ {
		if i > 100 {
			t.Fatal("breaker did not open after 100 failures")
		}
		_ = cb.Execute(context.Background(), func() error { return errTest })
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "azure"})
	if cb.cfg.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", cb.cfg.MaxFailures)
	}
	if cb.cfg.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", cb.cfg.ResetTimeout)
	}
	if cb.cfg.HalfOpenMax != 3 {
		t.Errorf("HalfOpenMax = %d, want 3", cb.cfg.HalfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_ClosedForwardsCalls(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{Name: "azure", MaxFailures: 3})

	called := false
	err := cb.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("fn was not called in the closed state")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{Name: "azure", MaxFailures: 3})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func() error { return errTest })
	}
	_ = cb.Execute(ctx, func() error { return nil })
	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func() error { return errTest })
	}

	if got := cb.State(); got != StateClosed {
		t.Errorf("state = %v, want closed (failures are not consecutive)", got)
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{
		Name: "azure", MaxFailures: 2, ResetTimeout: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, func() error { return errTest }); !errors.Is(err, errTest) {
			t.Fatalf("attempt %d: err = %v, want errTest", i, err)
		}
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	called := false
	err := cb.Execute(ctx, func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn was called while the breaker is open")
	}
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	cb, clk := newTestBreaker(CircuitBreakerConfig{
		Name: "azure", MaxFailures: 1, ResetTimeout: time.Minute,
	})
	trip(t, cb)

	clk.advance(59 * time.Second)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state before timeout = %v, want open", got)
	}

	clk.advance(2 * time.Second)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("state after timeout = %v, want half-open", got)
	}

	called := false
	if err := cb.Execute(context.Background(), func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("probe: unexpected error: %v", err)
	}
	if !called {
		t.Error("probe call was not admitted after the reset timeout")
	}
}

func TestCircuitBreaker_ClosesAfterSuccessfulProbes(t *testing.T) {
	cb, clk := newTestBreaker(CircuitBreakerConfig{
		Name: "azure", MaxFailures: 1, ResetTimeout: time.Minute, HalfOpenMax: 2,
	})
	trip(t, cb)
	clk.advance(2 * time.Minute)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
			t.Fatalf("probe %d: unexpected error: %v", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("state = %v, want closed after 2 successful probes", got)
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, clk := newTestBreaker(CircuitBreakerConfig{
		Name: "azure", MaxFailures: 1, ResetTimeout: time.Minute,
	})
	trip(t, cb)
	clk.advance(2 * time.Minute)

	if err := cb.Execute(context.Background(), func() error { return errTest }); !errors.Is(err, errTest) {
		t.Fatalf("probe: err = %v, want errTest", err)
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open after a failed probe", got)
	}

	// The reset timeout restarts from the failed probe.
	if err := cb.Execute(context.Background(), func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen right after re-opening", err)
	}
}

func TestCircuitBreaker_HalfOpenProbeBudget(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{
		Name: "azure", MaxFailures: 1, ResetTimeout: time.Minute, HalfOpenMax: 2,
	})

	// In-flight probes occupy the budget before any of them settles.
	cb.mu.Lock()
	cb.state = StateHalfOpen
	cb.probes = 2
	cb.mu.Unlock()

	if err := cb.Execute(context.Background(), func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen once the probe budget is spent", err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{
		Name: "azure", MaxFailures: 1, ResetTimeout: time.Hour,
	})
	trip(t, cb)

	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state after reset = %v, want closed", got)
	}
	if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("unexpected error after reset: %v", err)
	}
}

func TestCircuitBreaker_RecordsTransitions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("create metrics: %v", err)
	}

	cb, clk := newTestBreaker(CircuitBreakerConfig{
		Name: "azure", MaxFailures: 1, ResetTimeout: time.Minute, HalfOpenMax: 1, Metrics: m,
	})
	trip(t, cb) // closed → open
	clk.advance(2 * time.Minute)
	if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("probe: unexpected error: %v", err)
	} // open → half-open → closed

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, metr := range scope.Metrics {
			if metr.Name != "lingograph.breaker.transitions" {
				continue
			}
			sum, ok := metr.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", metr.Data)
			}
			for _, dp := range sum.DataPoints {
				if backend, _ := dp.Attributes.Value("backend"); backend.AsString() != "azure" {
					t.Errorf("backend attribute = %q, want azure", backend.AsString())
				}
				total += dp.Value
			}
		}
	}
	if total != 3 {
		t.Errorf("recorded %d transitions, want 3 (open, half-open, closed)", total)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
