// Package google provides an STT provider backed by Google Cloud
// Speech-to-Text (synchronous Recognize, LINEAR16).
package google

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/MrWong99/echochamber/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// recognizeFunc is the subset of the Speech client the provider needs.
type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Provider implements stt.Provider using Google Cloud Speech-to-Text.
type Provider struct {
	recognize recognizeFunc
	close     func() error
	language  string
	model     string
}

type config struct {
	credentialsFile string
	language        string
	model           string
}

// Option configures a Provider.
type Option func(*config)

// WithCredentialsFile sets the service-account JSON file. When empty,
// Application Default Credentials are used.
func WithCredentialsFile(path string) Option {
	return func(c *config) { c.credentialsFile = path }
}

// WithLanguage sets the BCP-47 recognition language. Defaults to de-DE.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithModel selects a recognition model (e.g. "latest_short").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// New dials the Speech API.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	cfg := &config{language: stt.DefaultLanguage}
	for _, o := range opts {
		o(cfg)
	}
	var clientOpts []option.ClientOption
	if cfg.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.credentialsFile))
	}
	client, err := speech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google: create speech client: %w", err)
	}
	p := newProvider(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return client.Recognize(ctx, req)
	}, cfg)
	p.close = client.Close
	return p, nil
}

func newProvider(fn recognizeFunc, cfg *config) *Provider {
	return &Provider{
		recognize: fn,
		close:     func() error { return nil },
		language:  cfg.language,
		model:     cfg.model,
	}
}

// Close releases the underlying gRPC connection.
func (p *Provider) Close() error {
	return p.close()
}

// Transcribe sends the utterance as LINEAR16 audio. The top alternative of
// every result is joined; no results yields "".
func (p *Provider) Transcribe(ctx context.Context, utt audio.Utterance) (string, error) {
	samples := utt.Samples()
	if len(samples) == 0 {
		return "", nil
	}
	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(utt.SampleRate()),
			LanguageCode:    p.language,
			Model:           p.model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.SamplesToBytes(samples)},
		},
	}
	resp, err := p.recognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("google: recognize: %w", err)
	}

	var parts []string
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}
