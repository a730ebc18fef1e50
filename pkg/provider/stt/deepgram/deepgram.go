// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// live WebSocket API. The utterance is streamed in short binary messages,
// followed by a CloseStream request; the final results Deepgram sends before
// closing the socket are joined into the transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/MrWong99/echochamber/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"

	// sendChunk is the amount of audio per binary message.
	sendChunk = 100 * time.Millisecond
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the WebSocket endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: stt.DefaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams the utterance to Deepgram and returns the joined final
// transcripts.
func (p *Provider) Transcribe(ctx context.Context, utt audio.Utterance) (string, error) {
	samples := utt.Samples()
	if len(samples) == 0 {
		return "", nil
	}
	rate := utt.SampleRate()

	wsURL, err := p.buildURL(rate)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	// Read concurrently so the server is never blocked on a full socket while
	// we are still sending.
	type result struct {
		text string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		text, err := readFinals(ctx, conn)
		resCh <- result{text, err}
	}()

	step := max(audio.SamplesFor(sendChunk, rate), 1)
	for off := 0; off < len(samples); off += step {
		end := min(off+step, len(samples))
		if err := conn.Write(ctx, websocket.MessageBinary, audio.SamplesToBytes(samples[off:end])); err != nil {
			return "", fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return "", fmt.Errorf("deepgram: close stream: %w", err)
	}

	select {
	case r := <-resCh:
		if r.err != nil {
			return "", r.err
		}
		conn.Close(websocket.StatusNormalClosure, "done")
		return r.text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// buildURL constructs the Deepgram streaming endpoint URL.
func (p *Provider) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// readFinals collects final results until Deepgram closes the socket.
func readFinals(ctx context.Context, conn *websocket.Conn) (string, error) {
	var parts []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return strings.Join(parts, " "), nil
			}
			return "", fmt.Errorf("deepgram: read: %w", err)
		}
		if text, ok := parseFinal(msg); ok {
			parts = append(parts, text)
		}
	}
}

// parseFinal extracts the transcript of a final, non-empty Results message.
func parseFinal(data []byte) (string, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false
	}
	if resp.Type != "Results" || !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
		return "", false
	}
	text := strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
	return text, text != ""
}
