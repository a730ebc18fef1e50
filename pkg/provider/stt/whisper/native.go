package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/MrWong99/echochamber/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider by running whisper.cpp in-process
// through its CGO bindings. No server is required, only a GGML model file.
//
// The model is shared; each Transcribe creates its own inference context.
// Inference is serialised because a single model saturates the CPU anyway.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	threads  uint
	prompt   string

	mu sync.Mutex
}

// NativeOption configures a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the recognition language (BCP-47 tags are reduced
// to their primary subtag). Defaults to "de".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = stt.BaseLanguage(lang) }
}

// WithNativeThreads sets the number of inference threads. Zero keeps the
// library default.
func WithNativeThreads(n int) NativeOption {
	return func(p *NativeProvider) {
		if n > 0 {
			p.threads = uint(n)
		}
	}
}

// WithNativePrompt primes decoding with text, typically words the speakers
// are likely to use.
func WithNativePrompt(prompt string) NativeOption {
	return func(p *NativeProvider) { p.prompt = prompt }
}

// NewNative loads the GGML model at modelPath.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{
		model:    model,
		language: stt.BaseLanguage(stt.DefaultLanguage),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs whisper inference over the utterance.
func (p *NativeProvider) Transcribe(ctx context.Context, utt audio.Utterance) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	samples := utt.Samples()
	if len(samples) == 0 {
		return "", nil
	}
	pcm := audio.ToFloat32(audio.Resample(samples, utt.SampleRate(), modelSampleRate))

	p.mu.Lock()
	defer p.mu.Unlock()

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "err", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
	if p.prompt != "" {
		wctx.SetInitialPrompt(p.prompt)
	}
	start := time.Now()
	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}
	slog.Debug("whisper: inference done", "audio", utt.Duration(), "took", time.Since(start))

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
