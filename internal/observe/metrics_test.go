package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the counter value of the first data point carrying
// key=value, or -1 if none does.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"echochamber.stt.duration", m.STTDuration},
		{"echochamber.llm.duration", m.LLMDuration},
		{"echochamber.tts.duration", m.TTSDuration},
		{"echochamber.capture.duration", m.CaptureDuration},
		{"echochamber.turn.duration", m.TurnDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "openai", "llm", 200*time.Millisecond, nil)
	m.RecordProviderRequest(ctx, "openai", "llm", 300*time.Millisecond, nil)
	m.RecordProviderRequest(ctx, "openai", "llm", time.Second, errors.New("boom"))

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "echochamber.provider.requests", "status", "ok"); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "echochamber.provider.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "echochamber.provider.errors", "kind", "llm"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}

	met := findMetric(rm, "echochamber.llm.duration")
	if met == nil {
		t.Fatal("llm duration not recorded")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if got := hist.DataPoints[0].Count; got != 3 {
		t.Errorf("llm duration count = %d, want 3", got)
	}
}

func TestRecordTurn(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTurn(ctx, OutcomeSpoken, 3*time.Second)
	m.RecordTurn(ctx, OutcomeSpoken, 4*time.Second)
	m.RecordTurn(ctx, OutcomeGenFailed, time.Second)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "echochamber.turns", "outcome", OutcomeSpoken); got != 2 {
		t.Errorf("spoken turns = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "echochamber.turns", "outcome", OutcomeGenFailed); got != 1 {
		t.Errorf("failed turns = %d, want 1", got)
	}
}

func TestClipAndSignalCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordClip(ctx, "ambient")
	m.RecordClip(ctx, "ambient")
	m.RecordClip(ctx, "ack")
	m.RecordClipFailure(ctx)
	m.RecordVADTrigger(ctx)
	m.RecordModeSignal(ctx, "interactive", nil)
	m.RecordModeSignal(ctx, "ambient", errors.New("port gone"))
	m.RecordBreakerTransition(ctx, "deepgram", "stt", "open")

	rm := collect(t, reader)

	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"echochamber.clips.played", "kind", "ambient", 2},
		{"echochamber.clips.played", "kind", "ack", 1},
		{"echochamber.clips.failures", "", "", 1},
		{"echochamber.vad.triggers", "", "", 1},
		{"echochamber.mode.signals", "status", "error", 1},
		{"echochamber.mode.signals", "mode", "interactive", 1},
		{"echochamber.breaker.transitions", "state", "open", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name+"/"+tc.value, func(t *testing.T) {
			if got := sumWhere(t, rm, tc.name, tc.key, tc.value); got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("route", "GET /healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "echochamber.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
