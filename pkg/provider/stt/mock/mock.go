// Package mock provides a test double for [stt.Provider].
//
// Example:
//
//	p := &mock.Provider{Text: "hallo"}
//	text, _ := p.Transcribe(ctx, utt)
//	calls := p.Calls()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/MrWong99/echochamber/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	Utterance audio.Utterance
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by every successful Transcribe call.
	Text string

	// Err, if non-nil, is returned instead of Text.
	Err error

	// Block makes Transcribe wait for ctx cancellation before returning.
	Block bool

	calls []TranscribeCall
}

// Transcribe records the call and returns Text or Err.
func (p *Provider) Transcribe(ctx context.Context, utt audio.Utterance) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, TranscribeCall{Utterance: utt})
	text, err, block := p.Text, p.Err, p.Block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Reset clears the recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}
