// Package anyllm provides a multi-vendor LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified interface over OpenAI,
// Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, llama.cpp and
// llamafile.
//
// Usage:
//
//	p, err := anyllm.New("ollama", "llama3", llm.DefaultParams())
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", llm.DefaultParams(), anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/echochamber/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	vendor  string
	model   string
	params  llm.Params
}

// New creates a Provider for the given vendor.
//
// vendor is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// opts are any-llm-go options (anyllmlib.WithAPIKey, anyllmlib.WithBaseURL).
// Without an API key option the vendor's usual environment variable is read
// (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
func New(vendor, model string, params llm.Params, opts ...anyllmlib.Option) (*Provider, error) {
	if vendor == "" {
		return nil, errors.New("anyllm: vendor must not be empty")
	}
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	backend, err := createBackend(vendor, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", vendor, err)
	}
	return &Provider{backend: backend, vendor: strings.ToLower(vendor), model: model, params: params}, nil
}

// createBackend creates the underlying any-llm-go provider for the given vendor.
func createBackend(vendor string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(vendor) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported vendor %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", vendor)
	}
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, persona, userText string) (string, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(persona, userText))
	if err != nil {
		return "", fmt.Errorf("anyllm: %s completion: %w", p.vendor, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("anyllm: empty choices in response")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if reply == "" {
		return "", errors.New("anyllm: empty reply")
	}
	return reply, nil
}

// buildParams assembles the system + user completion request.
func (p *Provider) buildParams(persona, userText string) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if persona != "" {
		messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: persona})
	}
	messages = append(messages, anyllmlib.Message{Role: "user", Content: userText})

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if p.params.Temperature != 0 {
		t := p.params.Temperature
		params.Temperature = &t
	}
	if p.params.MaxTokens > 0 {
		mt := p.params.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}
