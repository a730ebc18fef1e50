// Package openai provides a TTS provider backed by the OpenAI speech
// endpoint. Audio is requested as raw PCM (24 kHz, 16-bit, mono).
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/MrWong99/echochamber/pkg/provider/tts"
)

// pcmSampleRate is the fixed rate of the "pcm" response format.
const pcmSampleRate = 24000

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI speech API.
type Provider struct {
	client       oai.Client
	model        string
	voice        string
	speed        float64
	instructions string
}

type config struct {
	baseURL      string
	model        string
	voice        string
	speed        float64
	instructions string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the speech model. Defaults to tts-1.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithVoice sets the voice name (e.g. "alloy", "nova"). Defaults to alloy.
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithSpeed sets the speaking rate (0.25 to 4.0).
func WithSpeed(speed float64) Option {
	return func(c *config) { c.speed = speed }
}

// WithInstructions sets style instructions. Ignored by tts-1 and tts-1-hd.
func WithInstructions(s string) Option {
	return func(c *config) { c.instructions = s }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	cfg := &config{
		model: string(oai.SpeechModelTTS1),
		voice: string(oai.AudioSpeechNewParamsVoiceAlloy),
		speed: tts.DefaultSpeed,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.speed < 0.25 || cfg.speed > 4 {
		return nil, fmt.Errorf("openai: speed %.2f out of range [0.25, 4]", cfg.speed)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        cfg.model,
		voice:        cfg.voice,
		speed:        cfg.speed,
		instructions: cfg.instructions,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, errors.New("openai: empty text")
	}
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(p.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
		Speed:          oai.Float(p.speed),
	}
	if p.instructions != "" {
		params.Instructions = oai.String(p.instructions)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("openai: speech: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("openai: read speech body: %w", err)
	}
	if len(pcm) < 2 {
		return audio.Clip{}, errors.New("openai: empty speech response")
	}
	return audio.Clip{Samples: audio.BytesToSamples(pcm), SampleRate: pcmSampleRate}, nil
}
