// Package mock provides a test double for [tts.Provider].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/MrWong99/echochamber/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by every successful Synthesize call. When its
	// Samples are nil, a 100 ms silent clip at 16 kHz is returned.
	Clip audio.Clip

	// Err, if non-nil, is returned instead of Clip.
	Err error

	texts []string
}

// Synthesize records text and returns Clip or Err.
func (p *Provider) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	p.mu.Lock()
	p.texts = append(p.texts, text)
	clip, err := p.Clip, p.Err
	p.mu.Unlock()

	if err != nil {
		return audio.Clip{}, err
	}
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, err
	}
	if clip.Samples == nil {
		clip = audio.Clip{Samples: make([]int16, 1600), SampleRate: 16000}
	}
	return clip, nil
}

// Texts returns every text passed to Synthesize.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}
