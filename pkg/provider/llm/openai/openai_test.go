package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/echochamber/pkg/provider/llm"
)

// chatRequest is the subset of the request body the tests inspect.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	User        string   `json:"user"`
}

func newServer(t *testing.T, status int, body string, got *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		if got != nil {
			_ = json.Unmarshal(raw, got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okBody = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-3.5-turbo",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  Absolut! Ich sehe das genauso. "}}]}`

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-3.5-turbo"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("sk", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p, err := New("sk", "gpt-3.5-turbo")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params := p.buildParams("persona", "hallo")
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil || params.Messages[1].OfUser == nil {
		t.Error("expected system then user message")
	}
	if !params.Temperature.Valid() || params.Temperature.Value != llm.DefaultTemperature {
		t.Errorf("temperature = %+v, want %v", params.Temperature, llm.DefaultTemperature)
	}

	params = p.buildParams("", "hallo")
	if len(params.Messages) != 1 || params.Messages[0].OfUser == nil {
		t.Error("empty persona should send only the user message")
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	var got chatRequest
	srv := newServer(t, http.StatusOK, okBody, &got)

	p, err := New("sk-test", "gpt-3.5-turbo",
		WithBaseURL(srv.URL+"/"),
		WithParams(llm.Params{Temperature: 0.5, MaxTokens: 42}),
		WithUser("appliance-1"),
		WithMaxRetries(0),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	reply, err := p.Generate(context.Background(), "Du bist nett.", "Kunst ist toll")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "Absolut! Ich sehe das genauso." {
		t.Errorf("reply = %q", reply)
	}

	if got.Model != "gpt-3.5-turbo" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Kunst ist toll" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.Temperature == nil || *got.Temperature != 0.5 {
		t.Errorf("temperature = %v, want 0.5", got.Temperature)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 42 {
		t.Errorf("max_tokens = %v, want 42", got.MaxTokens)
	}
	if got.User != "appliance-1" {
		t.Errorf("user = %q, want appliance-1", got.User)
	}
	if p.Model() != "gpt-3.5-turbo" {
		t.Errorf("Model() = %q", p.Model())
	}
}

func TestGenerate_TruncatedReplyIsKept(t *testing.T) {
	t.Parallel()
	body := `{"id":"x","object":"chat.completion","created":1,"model":"m",
"choices":[{"index":0,"finish_reason":"length","message":{"role":"assistant","content":"Genial, wirklich"}}]}`
	srv := newServer(t, http.StatusOK, body, nil)
	p, _ := New("sk", "m", WithBaseURL(srv.URL+"/"))
	reply, err := p.Generate(context.Background(), "", "x")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "Genial, wirklich" {
		t.Errorf("reply = %q", reply)
	}
}

func TestGenerate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
		empty  bool
	}{
		{"bad request", http.StatusBadRequest, `{"error":{"message":"nope","type":"invalid_request_error"}}`, false},
		{"no choices", http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, true},
		{"empty reply", http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  "}}]}`, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := newServer(t, tc.status, tc.body, nil)
			p, _ := New("sk", "m", WithBaseURL(srv.URL+"/"), WithMaxRetries(0))
			_, err := p.Generate(context.Background(), "", "x")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrEmptyReply); got != tc.empty {
				t.Errorf("errors.Is(err, ErrEmptyReply) = %v, want %v (err: %v)", got, tc.empty, err)
			}
		})
	}
}
