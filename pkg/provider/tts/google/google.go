// Package google provides a TTS provider backed by Google Cloud
// Text-to-Speech. Audio is requested as LINEAR16, which the API wraps in a
// WAV header.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	tts "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/MrWong99/echochamber/pkg/audio"
	ttsprovider "github.com/MrWong99/echochamber/pkg/provider/tts"
)

var _ ttsprovider.Provider = (*Provider)(nil)

// synthesizeFunc is the subset of the Text-to-Speech client the provider needs.
type synthesizeFunc func(ctx context.Context, req *tts.SynthesizeSpeechRequest) (*tts.SynthesizeSpeechResponse, error)

// Provider implements tts.Provider using Google Cloud Text-to-Speech.
type Provider struct {
	synthesize synthesizeFunc
	close      func() error
	voice      *tts.VoiceSelectionParams
	config     *tts.AudioConfig
}

type config struct {
	credentialsFile string
	language        string
	voice           string
	gender          tts.SsmlVoiceGender
	speed           float64
	sampleRate      int
}

// Option configures a Provider.
type Option func(*config)

// WithCredentialsFile sets the service-account JSON file. When empty,
// Application Default Credentials are used.
func WithCredentialsFile(path string) Option {
	return func(c *config) { c.credentialsFile = path }
}

// WithLanguage sets the BCP-47 voice language. Defaults to de-DE.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithVoice selects a named voice (e.g. "de-DE-Neural2-B").
func WithVoice(name string) Option {
	return func(c *config) { c.voice = name }
}

// WithGender sets the SSML gender: "male", "female" or "neutral".
func WithGender(g string) Option {
	return func(c *config) {
		switch strings.ToLower(g) {
		case "male":
			c.gender = tts.SsmlVoiceGender_MALE
		case "female":
			c.gender = tts.SsmlVoiceGender_FEMALE
		case "neutral":
			c.gender = tts.SsmlVoiceGender_NEUTRAL
		}
	}
}

// WithSpeed sets the speaking rate (0.25 to 4.0).
func WithSpeed(speed float64) Option {
	return func(c *config) { c.speed = speed }
}

// WithSampleRate requests a specific output rate. Zero uses the voice's
// natural rate.
func WithSampleRate(hz int) Option {
	return func(c *config) { c.sampleRate = hz }
}

// New dials the Text-to-Speech API.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	var clientOpts []option.ClientOption
	if cfg.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.credentialsFile))
	}
	client, err := texttospeech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google: create text-to-speech client: %w", err)
	}
	p := newProvider(func(ctx context.Context, req *tts.SynthesizeSpeechRequest) (*tts.SynthesizeSpeechResponse, error) {
		return client.SynthesizeSpeech(ctx, req)
	}, cfg)
	p.close = client.Close
	return p, nil
}

func defaultConfig() *config {
	return &config{
		language: ttsprovider.DefaultLanguage,
		speed:    ttsprovider.DefaultSpeed,
	}
}

func newProvider(fn synthesizeFunc, cfg *config) *Provider {
	return &Provider{
		synthesize: fn,
		close:      func() error { return nil },
		voice: &tts.VoiceSelectionParams{
			LanguageCode: cfg.language,
			Name:         cfg.voice,
			SsmlGender:   cfg.gender,
		},
		config: &tts.AudioConfig{
			AudioEncoding:   tts.AudioEncoding_LINEAR16,
			SpeakingRate:    cfg.speed,
			SampleRateHertz: int32(cfg.sampleRate),
		},
	}
}

// Close releases the underlying gRPC connection.
func (p *Provider) Close() error {
	return p.close()
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, errors.New("google: empty text")
	}
	req := &tts.SynthesizeSpeechRequest{
		Input:       &tts.SynthesisInput{InputSource: &tts.SynthesisInput_Text{Text: text}},
		Voice:       p.voice,
		AudioConfig: p.config,
	}
	resp, err := p.synthesize(ctx, req)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("google: synthesize: %w", err)
	}
	clip, err := audio.DecodeWAVBytes(resp.GetAudioContent())
	if err != nil {
		return audio.Clip{}, fmt.Errorf("google: %w", err)
	}
	return clip, nil
}
