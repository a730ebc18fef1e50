// Package canned provides an offline reply generator. It scores the user's
// text against small positive and negative word lists and answers with one
// of two fixed affirmations. No network access is needed, so it suits demos
// and installations without an API key.
package canned

import (
	"context"
	"strings"
	"unicode"

	"github.com/MrWong99/echochamber/pkg/provider/llm"
)

// Fixed replies.
const (
	PositiveReply = "Absolut! Ich sehe das genauso."
	NeutralReply  = "Interessanter Punkt. Da stimme ich dir voll zu."
)

var _ llm.Provider = (*Provider)(nil)

var (
	defaultPositive = []string{
		"gut", "toll", "super", "schön", "liebe", "lieben", "großartig", "genial",
		"wunderbar", "fantastisch", "richtig", "wahr", "freude", "glücklich", "beste",
		"good", "great", "love", "awesome", "wonderful", "happy", "best", "right",
	}
	defaultNegative = []string{
		"schlecht", "nicht", "kein", "keine", "hasse", "schrecklich", "furchtbar",
		"falsch", "traurig", "nie", "niemals", "bad", "hate", "terrible", "wrong", "sad", "never",
	}
)

// Option configures a Provider.
type Option func(*Provider)

// WithWords replaces the positive and negative word lists.
func WithWords(positive, negative []string) Option {
	return func(p *Provider) {
		p.positive = toSet(positive)
		p.negative = toSet(negative)
	}
}

// Provider implements llm.Provider with keyword sentiment scoring.
type Provider struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

// New returns a Provider with the built-in German and English word lists.
func New(opts ...Option) *Provider {
	p := &Provider{
		positive: toSet(defaultPositive),
		negative: toSet(defaultNegative),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Generate ignores persona and returns [PositiveReply] when userText leans
// positive, [NeutralReply] otherwise.
func (p *Provider) Generate(ctx context.Context, _ string, userText string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Score(userText) > 0 {
		return PositiveReply, nil
	}
	return NeutralReply, nil
}

// Score returns the number of positive minus negative words in text.
func (p *Provider) Score(text string) int {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	score := 0
	for _, w := range words {
		if _, ok := p.positive[w]; ok {
			score++
		}
		if _, ok := p.negative[w]; ok {
			score--
		}
	}
	return score
}

func toSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
