// Package mock provides a test double for [llm.Provider].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/echochamber/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// GenerateCall records a single invocation of Provider.Generate.
type GenerateCall struct {
	Persona  string
	UserText string
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Reply is returned by every successful Generate call.
	Reply string

	// Err, if non-nil, is returned instead of Reply.
	Err error

	// Block makes Generate wait for ctx cancellation.
	Block bool

	calls []GenerateCall
}

// Generate records the call and returns Reply or Err.
func (p *Provider) Generate(ctx context.Context, persona, userText string) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, GenerateCall{Persona: persona, UserText: userText})
	reply, err, block := p.Reply, p.Err, p.Block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []GenerateCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]GenerateCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Reset clears the recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}
