package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/echochamber/pkg/audio"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := New("k", WithSpeed(5)); err == nil {
		t.Error("expected error for speed out of range")
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(audio.SamplesToBytes([]int16{100, -100, 50}))
	}))
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL), WithVoice("nova"), WithInstructions("fröhlich"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := p.Synthesize(context.Background(), "Da stimme ich dir voll zu.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.SampleRate != 24000 {
		t.Errorf("rate = %d, want 24000", clip.SampleRate)
	}
	if len(clip.Samples) != 3 || clip.Samples[1] != -100 {
		t.Errorf("samples = %v", clip.Samples)
	}

	tests := map[string]any{
		"input":           "Da stimme ich dir voll zu.",
		"model":           "tts-1",
		"voice":           "nova",
		"response_format": "pcm",
		"speed":           1.25,
		"instructions":    "fröhlich",
	}
	for k, want := range tests {
		if body[k] != want {
			t.Errorf("body[%q] = %v, want %v", k, body[k], want)
		}
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad voice","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", WithBaseURL(srv.URL))
	if _, err := p.Synthesize(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}
