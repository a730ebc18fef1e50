package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/coder/websocket"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, key, voice string
		opts             []Option
	}{
		{"empty key", "", "v", nil},
		{"empty voice", "k", "", nil},
		{"mp3 format", "k", "v", []Option{WithOutputFormat("mp3_44100_128")}},
		{"bad rate", "k", "v", []Option{WithOutputFormat("pcm_fast")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tc.key, tc.voice, tc.opts...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuildURL(t *testing.T) {
	t.Parallel()
	p, err := New("k", "voice 1", WithModel("eleven_flash_v2_5"), WithOutputFormat("pcm_24000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	u, err := url.Parse(p.buildURL())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Scheme != "wss" || u.Host != "api.elevenlabs.io" {
		t.Errorf("host = %s://%s", u.Scheme, u.Host)
	}
	if !strings.HasSuffix(u.Path, "/stream-input") || !strings.Contains(u.Path, "voice 1") {
		t.Errorf("path = %q", u.Path)
	}
	if got := u.Query().Get("model_id"); got != "eleven_flash_v2_5" {
		t.Errorf("model_id = %q", got)
	}
	if got := u.Query().Get("output_format"); got != "pcm_24000" {
		t.Errorf("output_format = %q", got)
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()
	pcm := audio.SamplesToBytes([]int16{1, 2, 3, 4, 5, 6})

	var (
		mu   sync.Mutex
		sent []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m map[string]any
			_ = json.Unmarshal(msg, &m)
			mu.Lock()
			sent = append(sent, m)
			mu.Unlock()
			if m["text"] == "" {
				break
			}
		}
		for i, part := range [][]byte{pcm[:6], pcm[6:]} {
			resp, _ := json.Marshal(map[string]any{
				"audio":   base64.StdEncoding.EncodeToString(part),
				"isFinal": i == 1,
			})
			if err := conn.Write(ctx, websocket.MessageText, resp); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	p, err := New("xi-key", "voice", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")), WithSpeed(1.1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clip, err := p.Synthesize(ctx, "Absolut!")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.SampleRate != 16000 {
		t.Errorf("rate = %d, want 16000", clip.SampleRate)
	}
	want := []int16{1, 2, 3, 4, 5, 6}
	if len(clip.Samples) != len(want) {
		t.Fatalf("samples = %v, want %v", clip.Samples, want)
	}
	for i := range want {
		if clip.Samples[i] != want[i] {
			t.Fatalf("samples = %v, want %v", clip.Samples, want)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 3 {
		t.Fatalf("server got %d messages, want 3", len(sent))
	}
	if sent[0]["xi_api_key"] != "xi-key" {
		t.Errorf("BOI missing api key: %v", sent[0])
	}
	if vs, _ := sent[0]["voice_settings"].(map[string]any); vs["speed"] != 1.1 {
		t.Errorf("voice_settings = %v, want speed 1.1", sent[0]["voice_settings"])
	}
	if sent[1]["text"] != "Absolut! " {
		t.Errorf("text message = %v", sent[1])
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()
	p, _ := New("k", "v")
	if _, err := p.Synthesize(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty text")
	}
}
