package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serve(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec := serve(t, New(nil), "/healthz")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decode(t, rec)
	if body.Status != "ok" || body.Uptime == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{},
		},
		{
			name: "all pass",
			checkers: []Checker{
				PlayerRunning(func() string { return "playing" }),
				LibraryNonEmpty(func() int { return 6 }),
			},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"player": "ok", "library": "ok"},
		},
		{
			name: "paused player is ready",
			checkers: []Checker{
				PlayerRunning(func() string { return "paused" }),
			},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"player": "ok"},
		},
		{
			name: "stopped player",
			checkers: []Checker{
				PlayerRunning(func() string { return "stopped" }),
				{Name: "other", Check: ok},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"player": "fail: " + ErrNotRunning.Error(), "other": "ok"},
		},
		{
			name:       "empty library",
			checkers:   []Checker{LibraryNonEmpty(func() int { return 0 })},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"library": "fail: health: 0 statement clips"},
		},
		{
			name:       "journal down",
			checkers:   []Checker{Journal(pingFunc(func(context.Context) error { return errors.New("connection refused") }))},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"journal": "fail: connection refused"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(t, New(tc.checkers), "/readyz")
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			body := decode(t, rec)
			wantBody := "ok"
			if tc.wantStatus != http.StatusOK {
				wantBody = "fail"
			}
			if body.Status != wantBody {
				t.Errorf("body status = %q, want %q", body.Status, wantBody)
			}
			for name, want := range tc.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New([]Checker{{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()
	fake := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("echochamber_turns_total 3\n"))
	})
	rec := serve(t, New(nil, WithMetricsHandler(fake)), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "echochamber_turns_total") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestMetricsRoute_DefaultHandler(t *testing.T) {
	t.Parallel()
	rec := serve(t, New(nil), "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
