// Package openai generates replies with the OpenAI chat completions API.
// Compatible servers (vLLM, LM Studio, LocalAI) work through WithBaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/echochamber/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// ErrEmptyReply is returned when the model answered with no text.
var ErrEmptyReply = errors.New("openai: empty reply")

// Provider is an [llm.Provider] for one chat model.
type Provider struct {
	client oai.Client
	model  string
	params llm.Params
	user   string
}

// Option configures a [Provider].
type Option func(*settings)

type settings struct {
	req    []option.RequestOption
	params llm.Params
	user   string
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.req = append(s.req, option.WithBaseURL(url)) }
}

// WithOrganization sends the organization header.
func WithOrganization(org string) Option {
	return func(s *settings) { s.req = append(s.req, option.WithOrganization(org)) }
}

// WithTimeout bounds each HTTP request, retries included.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.req = append(s.req, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// WithMaxRetries sets how often the client retries 429 and 5xx answers.
// The fallback chain handles longer outages, so small values are sensible.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.req = append(s.req, option.WithMaxRetries(n)) }
}

// WithParams overrides [llm.DefaultParams].
func WithParams(p llm.Params) Option {
	return func(s *settings) { s.params = p }
}

// WithUser tags requests with an end-user identifier for abuse monitoring.
func WithUser(id string) Option {
	return func(s *settings) { s.user = id }
}

// New returns a Provider for model.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	s := settings{
		req:    []option.RequestOption{option.WithAPIKey(apiKey)},
		params: llm.DefaultParams(),
	}
	for _, o := range opts {
		o(&s)
	}
	return &Provider{
		client: oai.NewClient(s.req...),
		model:  model,
		params: s.params,
		user:   s.user,
	}, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Generate implements [llm.Provider]. A reply cut off by the token limit is
// returned as is.
func (p *Provider) Generate(ctx context.Context, persona, userText string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(persona, userText))
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai: chat completion: status %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrEmptyReply)
	}
	choice := resp.Choices[0]
	reply := strings.TrimSpace(choice.Message.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	if choice.FinishReason == "length" {
		slog.Debug("openai: reply hit the token limit", "model", p.model, "max_tokens", p.params.MaxTokens)
	}
	return reply, nil
}

// buildParams assembles a persona system message and the user's text.
func (p *Provider) buildParams(persona, userText string) oai.ChatCompletionNewParams {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, 2)
	if persona != "" {
		messages = append(messages, oai.SystemMessage(persona))
	}
	messages = append(messages, oai.UserMessage(userText))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if p.params.Temperature != 0 {
		params.Temperature = param.NewOpt(p.params.Temperature)
	}
	if p.params.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(p.params.MaxTokens))
	}
	if p.user != "" {
		params.User = param.NewOpt(p.user)
	}
	return params
}
