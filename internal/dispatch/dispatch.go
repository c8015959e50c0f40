// Package dispatch coordinates the translation of recognized utterances.
//
// A bounded worker pool pulls utterances from an intake queue and calls the
// configured [translate.Translator] with a per-attempt timeout. Transient
// failures are retried a bounded number of times; terminal failures are
// resolved by the configured fallback mode so that every accepted utterance
// produces exactly one [types.TranslationOutcome]. Although the upstream
// calls run concurrently and may finish out of order, outcomes are released
// on [Dispatcher.Outcomes] in exactly the order Submit accepted them — a
// fast short sentence never visually overtakes a slow long one.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/overcast-online/lingograph/internal/observe"
	"github.com/overcast-online/lingograph/pkg/provider/translate"
	"github.com/overcast-online/lingograph/pkg/types"
)

// Submission errors. Overload and closure are ordinary backpressure and
// lifecycle signals; a non-monotonic sequence means the feed is broken.
var (
	// ErrOverloaded is returned by Submit when the intake queue is full. The
	// utterance was not accepted; the caller decides whether to drop or pause.
	ErrOverloaded = errors.New("dispatch: intake queue full")

	// ErrClosed is returned by Submit after Close has been called.
	ErrClosed = errors.New("dispatch: dispatcher closed")

	// ErrNonMonotonicSequence is returned by Submit when an utterance arrives
	// with a sequence number at or below the last accepted one.
	ErrNonMonotonicSequence = errors.New("dispatch: sequence number not increasing")
)

// FallbackMode selects what to show for an utterance whose translation
// failed terminally.
type FallbackMode string

const (
	// FallbackShowOriginal passes the untranslated source text through.
	FallbackShowOriginal FallbackMode = "show_original"

	// FallbackShowError shows a fixed error marker.
	FallbackShowError FallbackMode = "show_error"

	// FallbackShowPlaceholder shows the configured placeholder text.
	FallbackShowPlaceholder FallbackMode = "show_placeholder"
)

// IsValid reports whether m is a recognised fallback mode.
func (m FallbackMode) IsValid() bool {
	switch m {
	case FallbackShowOriginal, FallbackShowError, FallbackShowPlaceholder:
		return true
	}
	return false
}

const (
	defaultWorkers     = 3
	defaultQueueSize   = 32
	defaultMaxRetries  = 2
	defaultRetryDelay  = time.Second
	defaultTimeout     = 5 * time.Second
	defaultPlaceholder = "[NEEDS TRANSLATION]"

	// errorMarker is the fixed text shown in show_error mode.
	errorMarker = "[Translation Error]"
)

// Config configures a [Dispatcher]. Zero values fall back to the defaults
// noted per field; negative values are rejected by [New].
type Config struct {
	// FromLanguage is the source language code (e.g., "fr"). Required.
	FromLanguage string

	// ToLanguage is the target language code (e.g., "en"). Required.
	ToLanguage string

	// Workers caps the number of concurrent translation calls. Default: 3.
	Workers int

	// QueueSize bounds the intake queue. Submit fails with [ErrOverloaded]
	// once it is full. Default: 32.
	QueueSize int

	// MaxRetries is how many times a transiently-failed call is retried
	// before falling back, so an utterance makes at most MaxRetries+1
	// attempts. Default: 2.
	MaxRetries int

	// RetryDelay is the pause between attempts. Default: 1s.
	RetryDelay time.Duration

	// Timeout bounds each individual translation attempt. Default: 5s.
	Timeout time.Duration

	// Fallback selects the substitute text for terminal failures.
	// Default: show_original.
	Fallback FallbackMode

	// PlaceholderText is shown in show_placeholder mode.
	// Default: "[NEEDS TRANSLATION]".
	PlaceholderText string
}

// Option is a functional option for configuring a [Dispatcher].
type Option func(*Dispatcher)

// WithClock overrides the time source used to stamp outcomes. Intended for
// tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithMetrics attaches metric instruments. When nil (the default), nothing
// is recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Dispatcher owns the translation pipeline between the utterance feed and
// the display buffer: intake queue, worker pool, retry/fallback policy, and
// the sequencing barrier.
//
// Submit and Close are safe for concurrent use. Run must be called exactly
// once; the caller must drain [Dispatcher.Outcomes] to prevent the release
// stage from stalling.
type Dispatcher struct {
	translator translate.Translator
	cfg        Config
	metrics    *observe.Metrics
	now        func() time.Time

	queue    chan types.Utterance
	barrier  *barrier
	outcomes chan types.TranslationOutcome

	mu      sync.Mutex
	closed  bool
	lastSeq uint64
	hasLast bool
}

// New creates a [Dispatcher] translating with translator under cfg. The
// translator must be safe for concurrent use.
func New(translator translate.Translator, cfg Config, opts ...Option) (*Dispatcher, error) {
	if translator == nil {
		return nil, errors.New("dispatch: translator must not be nil")
	}
	if cfg.FromLanguage == "" || cfg.ToLanguage == "" {
		return nil, errors.New("dispatch: from and to languages are required")
	}
	if cfg.Workers < 0 || cfg.QueueSize < 0 || cfg.MaxRetries < 0 || cfg.RetryDelay < 0 || cfg.Timeout < 0 {
		return nil, errors.New("dispatch: negative limits are not allowed")
	}
	if cfg.Workers == 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Fallback == "" {
		cfg.Fallback = FallbackShowOriginal
	}
	if !cfg.Fallback.IsValid() {
		return nil, fmt.Errorf("dispatch: fallback mode %q is invalid; valid values: show_original, show_error, show_placeholder", cfg.Fallback)
	}
	if cfg.PlaceholderText == "" {
		cfg.PlaceholderText = defaultPlaceholder
	}

	return &Dispatcher{
		translator: translator,
		cfg:        cfg,
		now:        time.Now,
		queue:      make(chan types.Utterance, cfg.QueueSize),
		barrier:    newBarrier(),
		outcomes:   make(chan types.TranslationOutcome, cfg.QueueSize),
	}, nil
}

// Outcomes returns the ordered outcome stream. It carries exactly one
// outcome per accepted utterance, in submission order, and is closed when
// Run returns.
func (d *Dispatcher) Outcomes() <-chan types.TranslationOutcome {
	return d.outcomes
}

// Pending returns the number of accepted utterances whose outcome has not
// been released yet.
func (d *Dispatcher) Pending() int {
	return d.barrier.pending()
}

// Submit offers an utterance for translation without blocking. On success
// the utterance is registered with the sequencing barrier and queued for the
// worker pool; its outcome will eventually appear on [Dispatcher.Outcomes].
//
// Returns [ErrOverloaded] when the intake queue is full, [ErrClosed] after
// Close, and [ErrNonMonotonicSequence] when the sequence number does not
// advance past the last accepted one.
func (d *Dispatcher) Submit(u types.Utterance) error {
	ctx := context.Background()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.metrics.RecordSubmission(ctx, "closed")
		return ErrClosed
	}
	if d.hasLast && u.Sequence <= d.lastSeq {
		last := d.lastSeq
		d.mu.Unlock()
		d.metrics.RecordSubmission(ctx, "invalid")
		return fmt.Errorf("%w: got %d after %d", ErrNonMonotonicSequence, u.Sequence, last)
	}

	// Register before enqueueing so a worker can never complete a sequence
	// the barrier has not seen. The registration is rolled back when the
	// queue turns out to be full.
	d.barrier.expect(u.Sequence)
	select {
	case d.queue <- u:
		d.lastSeq = u.Sequence
		d.hasLast = true
		d.mu.Unlock()
		d.metrics.RecordSubmission(ctx, "accepted")
		d.metrics.AddBarrierPending(ctx, 1)
		return nil
	default:
		d.barrier.retract(u.Sequence)
		d.mu.Unlock()
		d.metrics.RecordSubmission(ctx, "overloaded")
		return ErrOverloaded
	}
}

// Close stops intake. Utterances already queued still drain through the
// workers; Run returns once their outcomes have been released. Safe to call
// multiple times.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

// Run operates the worker pool and the release stage until the dispatcher is
// closed and drained. Cancelling ctx closes intake and makes in-flight and
// queued work resolve through the fallback path, so no accepted utterance is
// ever left without an outcome. The outcome channel is closed before Run
// returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, d.Close)
	defer stop()

	var g errgroup.Group
	for range d.cfg.Workers {
		g.Go(func() error {
			for u := range d.queue {
				d.barrier.complete(d.process(ctx, u))
			}
			return nil
		})
	}

	// Release stage: drain the barrier in submission order.
	released := make(chan struct{})
	go func() {
		defer close(released)
		for {
			o, ok := d.barrier.next()
			if !ok {
				return
			}
			d.metrics.AddBarrierPending(ctx, -1)
			d.metrics.RecordOutcome(ctx, o.Status.String())
			d.outcomes <- o
		}
	}()

	err := g.Wait()
	d.barrier.seal()
	<-released
	close(d.outcomes)
	return err
}

// process resolves one utterance to its terminal outcome: a translation when
// an attempt succeeds within the retry budget, the configured fallback
// otherwise.
func (d *Dispatcher) process(ctx context.Context, u types.Utterance) types.TranslationOutcome {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			d.metrics.RecordTranslateRetry(ctx, d.translator.Name())
			select {
			case <-time.After(d.cfg.RetryDelay):
			case <-ctx.Done():
				return d.fallback(u, attempts, context.Cause(ctx))
			}
		}

		attempts++
		res, err := d.translateOnce(ctx, u)
		if err == nil {
			return types.TranslationOutcome{
				Sequence:    u.Sequence,
				SourceText:  u.Text,
				Text:        res.Text,
				Status:      types.StatusTranslated,
				Attempts:    attempts,
				CompletedAt: d.now(),
			}
		}
		lastErr = err

		if ctx.Err() != nil {
			// The run context ended; whatever the error looks like, there is
			// no point in another attempt.
			break
		}
		if translate.IsPermanent(err) {
			d.metrics.RecordTranslateError(ctx, d.translator.Name(), "permanent")
			break
		}
		d.metrics.RecordTranslateError(ctx, d.translator.Name(), "transient")
	}

	return d.fallback(u, attempts, lastErr)
}

// translateOnce performs a single upstream attempt under the per-attempt
// timeout, wrapped in a span so slow backends show up per caption.
func (d *Dispatcher) translateOnce(ctx context.Context, u types.Utterance) (translate.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	callCtx, span := observe.StartSpan(callCtx, "dispatch.translate",
		trace.WithAttributes(
			attribute.Int64("caption.sequence", int64(u.Sequence)),
			attribute.String("translate.backend", d.translator.Name()),
		))
	defer span.End()

	d.metrics.AddInFlight(ctx, 1)
	start := time.Now()
	res, err := d.translator.Translate(callCtx, translate.Request{
		Text: u.Text,
		From: d.cfg.FromLanguage,
		To:   d.cfg.ToLanguage,
	})
	elapsed := time.Since(start)
	d.metrics.AddInFlight(ctx, -1)
	if err != nil {
		span.RecordError(err)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	d.metrics.RecordTranslateAttempt(ctx, d.translator.Name(), status, elapsed.Seconds())
	return res, err
}

// fallback builds the substitute outcome for a terminally-failed utterance
// according to the configured mode.
func (d *Dispatcher) fallback(u types.Utterance, attempts int, cause error) types.TranslationOutcome {
	o := types.TranslationOutcome{
		Sequence:    u.Sequence,
		SourceText:  u.Text,
		Attempts:    attempts,
		Err:         cause,
		CompletedAt: d.now(),
	}
	switch d.cfg.Fallback {
	case FallbackShowError:
		o.Status = types.StatusFailed
		o.Text = errorMarker
	case FallbackShowPlaceholder:
		o.Status = types.StatusFallbackPlaceholder
		o.Text = d.cfg.PlaceholderText
	default:
		o.Status = types.StatusFallbackOriginal
		o.Text = u.Text
	}
	return o
}
