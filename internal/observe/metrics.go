// Package observe provides application-wide observability primitives for
// Lingograph: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Lingograph metrics.
const meterName = "github.com/overcast-online/lingograph"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
//
// The Record* and Add* convenience methods tolerate a nil receiver and record
// nothing, so pipeline components can be wired without metrics in tests.
type Metrics struct {
	// --- Latency histograms ---

	// TranslateDuration tracks the latency of a single upstream translation
	// attempt. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	TranslateDuration metric.Float64Histogram

	// --- Counters ---

	// Submissions counts utterances offered to the dispatcher. Use with
	// attribute: attribute.String("result", "accepted"|"overloaded"|"closed"|"invalid").
	Submissions metric.Int64Counter

	// TranslateRequests counts upstream translation attempts. Use with
	// attributes: attribute.String("provider", ...), attribute.String("status", ...)
	TranslateRequests metric.Int64Counter

	// TranslateRetries counts retry attempts after transient failures. Use
	// with attribute: attribute.String("provider", ...)
	TranslateRetries metric.Int64Counter

	// Outcomes counts delivered translation outcomes. Use with attribute:
	//   attribute.String("status", ...) — one of the types.OutcomeStatus strings.
	Outcomes metric.Int64Counter

	// OverlayExpirations counts overlay lines removed because their TTL ran out.
	OverlayExpirations metric.Int64Counter

	// RenderWrites counts frames pushed to display sinks.
	RenderWrites metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes in the
	// provider failover chain. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("from", ...),
	//   attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- Error counters ---

	// TranslateErrors counts failed translation attempts. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", "transient"|"permanent")
	TranslateErrors metric.Int64Counter

	// --- Gauges ---

	// InFlight tracks translation attempts currently running.
	InFlight metric.Int64UpDownCounter

	// BarrierPending tracks accepted utterances whose outcome has not been
	// released in submission order yet.
	BarrierPending metric.Int64UpDownCounter

	// OverlayLines tracks the number of lines currently on screen.
	OverlayLines metric.Int64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// machine-translation and LLM call latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranslateDuration, err = m.Float64Histogram("lingograph.translate.duration",
		metric.WithDescription("Latency of a single upstream translation attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Submissions, err = m.Int64Counter("lingograph.submissions",
		metric.WithDescription("Total utterances offered to the dispatcher by result."),
	); err != nil {
		return nil, err
	}
	if met.TranslateRequests, err = m.Int64Counter("lingograph.translate.requests",
		metric.WithDescription("Total upstream translation attempts by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.TranslateRetries, err = m.Int64Counter("lingograph.translate.retries",
		metric.WithDescription("Total retry attempts after transient failures by provider."),
	); err != nil {
		return nil, err
	}
	if met.Outcomes, err = m.Int64Counter("lingograph.outcomes",
		metric.WithDescription("Total delivered translation outcomes by status."),
	); err != nil {
		return nil, err
	}
	if met.OverlayExpirations, err = m.Int64Counter("lingograph.overlay.expirations",
		metric.WithDescription("Total overlay lines removed because their TTL ran out."),
	); err != nil {
		return nil, err
	}
	if met.RenderWrites, err = m.Int64Counter("lingograph.render.writes",
		metric.WithDescription("Total frames pushed to display sinks."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("lingograph.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by backend."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.TranslateErrors, err = m.Int64Counter("lingograph.translate.errors",
		metric.WithDescription("Total failed translation attempts by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.InFlight, err = m.Int64UpDownCounter("lingograph.translate.in_flight",
		metric.WithDescription("Translation attempts currently running."),
	); err != nil {
		return nil, err
	}
	if met.BarrierPending, err = m.Int64UpDownCounter("lingograph.barrier.pending",
		metric.WithDescription("Accepted utterances not yet released in submission order."),
	); err != nil {
		return nil, err
	}
	if met.OverlayLines, err = m.Int64Gauge("lingograph.overlay.lines",
		metric.WithDescription("Lines currently on screen."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("lingograph.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSubmission records one dispatcher submission with its result.
func (m *Metrics) RecordSubmission(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.Submissions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}

// RecordTranslateAttempt records one upstream translation attempt: its
// latency and a request counter increment with the standard attribute set.
func (m *Metrics) RecordTranslateAttempt(ctx context.Context, provider, status string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	)
	m.TranslateDuration.Record(ctx, seconds, attrs)
	m.TranslateRequests.Add(ctx, 1, attrs)
}

// RecordTranslateError records a failed translation attempt by error kind.
func (m *Metrics) RecordTranslateError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.TranslateErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTranslateRetry records a retry attempt after a transient failure.
func (m *Metrics) RecordTranslateRetry(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.TranslateRetries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordOutcome records one delivered translation outcome by status.
func (m *Metrics) RecordOutcome(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.Outcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordOverlayExpirations records swept overlay lines.
func (m *Metrics) RecordOverlayExpirations(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OverlayExpirations.Add(ctx, int64(n))
}

// RecordOverlayLines records the current on-screen line count.
func (m *Metrics) RecordOverlayLines(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.OverlayLines.Record(ctx, int64(n))
}

// RecordRenderWrite records one frame pushed to the display sinks.
func (m *Metrics) RecordRenderWrite(ctx context.Context) {
	if m == nil {
		return
	}
	m.RenderWrites.Add(ctx, 1)
}

// RecordBreakerTransition records one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, backend, from, to string) {
	if m == nil {
		return
	}
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// AddInFlight adjusts the running-attempts gauge by delta.
func (m *Metrics) AddInFlight(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.InFlight.Add(ctx, delta)
}

// AddBarrierPending adjusts the held-for-ordering gauge by delta.
func (m *Metrics) AddBarrierPending(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.BarrierPending.Add(ctx, delta)
}
