package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/overcast-online/lingograph/pkg/provider/translate"
)

// ErrAllFailed is returned when every backend in a [FallbackTranslator]
// fails or sits behind an open circuit breaker.
var ErrAllFailed = errors.New("resilience: all translation backends failed")

// FallbackConfig configures the circuit breaker created for each backend of
// a [FallbackTranslator]. The breaker's Name is taken from the backend.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// chainEntry pairs one backend with its dedicated circuit breaker.
type chainEntry struct {
	name    string
	backend translate.Translator
	breaker *CircuitBreaker
}

// FallbackTranslator implements [translate.Translator] with automatic
// failover across multiple translation backends. When the primary fails or
// its breaker is open, the next healthy fallback is tried in registration
// order.
//
// Errors from the last attempted backend keep their transient/permanent
// classification, so the dispatcher's retry policy applies to the chain as
// a whole. The chain must be fully assembled before the first Translate
// call; Translate itself is safe for concurrent use.
type FallbackTranslator struct {
	cfg     FallbackConfig
	entries []chainEntry
}

// Compile-time interface assertion.
var _ translate.Translator = (*FallbackTranslator)(nil)

// NewFallbackTranslator creates a [FallbackTranslator] with primary as the
// preferred backend. Register alternatives with
// [FallbackTranslator.AddFallback].
func NewFallbackTranslator(primary translate.Translator, cfg FallbackConfig) *FallbackTranslator {
	ft := &FallbackTranslator{cfg: cfg}
	ft.add(primary)
	return ft
}

// AddFallback registers an additional backend, tried after the primary and
// any previously added fallbacks.
func (f *FallbackTranslator) AddFallback(t translate.Translator) {
	f.add(t)
}

func (f *FallbackTranslator) add(t translate.Translator) {
	cbCfg := f.cfg.CircuitBreaker
	cbCfg.Name = t.Name()
	f.entries = append(f.entries, chainEntry{
		name:    t.Name(),
		backend: t,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Name lists the chained backend names, primary first.
func (f *FallbackTranslator) Name() string {
	names := make([]string, len(f.entries))
	for i := range f.entries {
		names[i] = f.entries[i].name
	}
	return strings.Join(names, ",")
}

// Translate sends the request to the first healthy backend and returns its
// result. A cancelled context stops the walk immediately instead of burning
// through the remaining fallbacks.
func (f *FallbackTranslator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	var lastErr error
	for i := range f.entries {
		entry := &f.entries[i]
		if err := ctx.Err(); err != nil {
			return translate.Result{}, err
		}

		var res translate.Result
		err := entry.breaker.Execute(ctx, func() error {
			var callErr error
			res, callErr = entry.backend.Translate(ctx, req)
			return callErr
		})
		if err == nil {
			return res, nil
		}
		lastErr = err

		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping translation backend (circuit open)", "backend", entry.name)
		} else {
			slog.Warn("translation backend failed, trying next",
				"backend", entry.name, "error", err)
		}
	}
	return translate.Result{}, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
