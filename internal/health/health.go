// Package health serves the appliance's HTTP probes:
//
//   - GET /healthz: liveness; 200 while the process can serve HTTP.
//   - GET /readyz: readiness; 200 only when every [Checker] passes.
//   - GET /metrics: Prometheus scrape endpoint.
//
// Probe responses are JSON objects with a "status" field ("ok" or "fail") and,
// for /readyz, a "checks" map with one entry per checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 2 * time.Second

// Checker is a named readiness check. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
	metrics  http.Handler
	started  time.Time
}

// Option configures a [Handler].
type Option func(*Handler)

// WithMetricsHandler replaces the default promhttp handler on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(hd *Handler) { hd.metrics = h }
}

// New creates a [Handler] evaluating checkers, in order, on each /readyz.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{
		checkers: append([]Checker(nil), checkers...),
		metrics:  promhttp.Handler(),
		started:  time.Now(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz always reports ok along with the process uptime.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{
		Status: "ok",
		Uptime: time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Readyz runs every checker with a deadline derived from the request.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, res)
}

// Register adds the probe and metrics routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.Handle("GET /metrics", h.metrics)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ─── Appliance checks ───────────────────────────────────────────────────────

// ErrNotRunning is reported by [PlayerRunning] when the player is stopped.
var ErrNotRunning = errors.New("health: player not running")

// PlayerRunning fails while the background player is stopped. state should
// return the player's state name ("playing", "paused" or "stopped").
func PlayerRunning(state func() string) Checker {
	return Checker{
		Name: "player",
		Check: func(context.Context) error {
			if s := state(); s == "stopped" {
				return ErrNotRunning
			}
			return nil
		},
	}
}

// LibraryNonEmpty fails when count reports no statement clips.
func LibraryNonEmpty(count func() int) Checker {
	return Checker{
		Name: "library",
		Check: func(context.Context) error {
			if n := count(); n <= 0 {
				return fmt.Errorf("health: %d statement clips", n)
			}
			return nil
		},
	}
}

// Pinger is satisfied by the turn journal.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Journal checks database reachability.
func Journal(p Pinger) Checker {
	return Checker{Name: "journal", Check: p.Ping}
}
