// Package observe provides the appliance's observability primitives:
// OpenTelemetry metrics, tracing, trace-aware logging, and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider], so they can be scraped from /metrics. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/echochamber"

// Turn outcomes recorded by [Metrics.RecordTurn].
const (
	OutcomeSpoken        = "spoken"
	OutcomeCaptureFailed = "capture_failed"
	OutcomeGenFailed     = "generation_failed"
	OutcomeCancelled     = "cancelled"
)

// Metrics holds all OpenTelemetry metric instruments for the appliance.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks reply generation latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// CaptureDuration tracks the length of captured utterances.
	CaptureDuration metric.Float64Histogram

	// TurnDuration tracks the wall time of a whole interactive turn.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider calls. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// Turns counts finished turns. Attribute: outcome.
	Turns metric.Int64Counter

	// VADTriggers counts voice detections that started a turn.
	VADTriggers metric.Int64Counter

	// ClipsPlayed counts fully played background clips. Attribute: kind.
	ClipsPlayed metric.Int64Counter

	// ClipFailures counts clips that could not be loaded or played.
	ClipFailures metric.Int64Counter

	// ModeSignals counts actuator signals. Attributes: mode, status.
	ModeSignals metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// provider, kind, state.
	BreakerTransitions metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks probe request time. Attributes: method,
	// route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// service calls and capture lengths.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "echochamber.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "echochamber.llm.duration", "Latency of reply generation."},
		{&met.TTSDuration, "echochamber.tts.duration", "Latency of text-to-speech synthesis."},
		{&met.CaptureDuration, "echochamber.capture.duration", "Length of captured utterances."},
		{&met.TurnDuration, "echochamber.turn.duration", "Wall time of an interactive turn."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "echochamber.provider.requests", "Provider requests by provider, kind, and status."},
		{&met.ProviderErrors, "echochamber.provider.errors", "Provider errors by provider and kind."},
		{&met.Turns, "echochamber.turns", "Finished turns by outcome."},
		{&met.VADTriggers, "echochamber.vad.triggers", "Voice detections that started a turn."},
		{&met.ClipsPlayed, "echochamber.clips.played", "Fully played background clips by kind."},
		{&met.ClipFailures, "echochamber.clips.failures", "Clips that failed to load or play."},
		{&met.ModeSignals, "echochamber.mode.signals", "Actuator mode signals by mode and status."},
		{&met.BreakerTransitions, "echochamber.breaker.transitions", "Circuit breaker state changes by provider and new state."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("echochamber.http.request.duration",
		metric.WithDescription("Probe request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// RecordProviderRequest records one provider call and its latency in the
// histogram for kind ("stt", "llm" or "tts"). A non-nil err also increments
// the error counter.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, kind)
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
	var h metric.Float64Histogram
	switch kind {
	case "stt":
		h = m.STTDuration
	case "llm":
		h = m.LLMDuration
	case "tts":
		h = m.TTSDuration
	default:
		return
	}
	h.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string, d time.Duration) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.TurnDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCapture records the length of a captured utterance.
func (m *Metrics) RecordCapture(ctx context.Context, d time.Duration) {
	m.CaptureDuration.Record(ctx, d.Seconds())
}

// RecordVADTrigger increments the VAD trigger counter.
func (m *Metrics) RecordVADTrigger(ctx context.Context) {
	m.VADTriggers.Add(ctx, 1)
}

// RecordClip counts a fully played clip of the given kind ("ambient", "ack").
func (m *Metrics) RecordClip(ctx context.Context, kind string) {
	m.ClipsPlayed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordClipFailure counts a clip that could not be played.
func (m *Metrics) RecordClipFailure(ctx context.Context) {
	m.ClipFailures.Add(ctx, 1)
}

// RecordModeSignal counts an actuator signal.
func (m *Metrics) RecordModeSignal(ctx context.Context, mode string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ModeSignals.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	))
}

// RecordBreakerTransition counts a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, kind, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("state", state),
	))
}
