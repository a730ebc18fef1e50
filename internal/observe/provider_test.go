package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

// withGlobals restores the global OTel providers after the test.
func withGlobals(t *testing.T) {
	t.Helper()
	mp, tp := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
	})
}

func TestInitProvider_ScrapedFromRegistry(t *testing.T) {
	withGlobals(t)
	reg := prometheus.NewRegistry()

	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		InstanceID:     "appliance-1",
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordVADTrigger(context.Background())

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{"echochamber_vad_triggers", "appliance-1"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestInitProvider_TracesWithoutExporter(t *testing.T) {
	withGlobals(t)

	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		InstanceID: "appliance-2",
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	ctx, span := StartStageSpan(context.Background(), "llm", "openai")
	defer span.End()
	if CorrelationID(ctx) == "" {
		t.Error("stage span has no trace ID")
	}
}

func TestInitProvider_RejectsSampleRatio(t *testing.T) {
	withGlobals(t)
	for _, r := range []float64{-0.1, 1.5} {
		if _, err := InitProvider(context.Background(), ProviderConfig{SampleRatio: r}); err == nil {
			t.Errorf("SampleRatio %v: want error", r)
		}
	}
}
