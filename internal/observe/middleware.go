package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests no mux pattern matched.
const unmatchedRoute = "unmatched"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments the probe server. Requests are labelled by the
// matched [http.ServeMux] pattern, not the raw path, so scanners hitting
// random URLs cannot inflate metric cardinality. Metric scrapes are counted
// but get no span.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			ctx := r.Context()
			var span trace.Span
			if r.URL.Path != "/metrics" {
				ctx, span = StartSpan(ctx, "probe "+r.URL.Path,
					trace.WithSpanKind(trace.SpanKindServer),
					trace.WithAttributes(semconv.HTTPRequestMethodKey.String(r.Method)),
				)
				defer span.End()
				r = r.WithContext(ctx)
			}

			next.ServeHTTP(rec, r)

			// Pattern is filled in by ServeMux during routing.
			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			elapsed := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("route", route),
					attribute.String("status", strconv.Itoa(rec.status)),
				),
			)
			if span != nil {
				span.SetAttributes(
					semconv.HTTPRoute(route),
					semconv.HTTPResponseStatusCode(rec.status),
				)
			}

			Logger(ctx).LogAttrs(ctx, slog.LevelDebug, "observe: probe request",
				slog.String("route", route),
				slog.Int("status", rec.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
