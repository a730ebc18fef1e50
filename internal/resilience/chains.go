package resilience

import (
	"context"

	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/MrWong99/echochamber/pkg/provider/llm"
	"github.com/MrWong99/echochamber/pkg/provider/stt"
	"github.com/MrWong99/echochamber/pkg/provider/tts"
)

// ─── STT ─────────────────────────────────────────────────────────────────────

// STTChain implements [stt.Provider] with failover across transcribers.
type STTChain struct {
	*FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTChain)(nil)

// NewSTTChain creates an [STTChain] with primary as the preferred backend.
func NewSTTChain(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTChain {
	return &STTChain{NewFallbackGroup(primary, primaryName, cfg)}
}

// Transcribe asks each healthy backend in turn.
func (c *STTChain) Transcribe(ctx context.Context, utt audio.Utterance) (string, error) {
	return ExecuteWithResult(ctx, c.FallbackGroup, func(ctx context.Context, p stt.Provider) (string, error) {
		return p.Transcribe(ctx, utt)
	})
}

// ─── LLM ─────────────────────────────────────────────────────────────────────

// LLMChain implements [llm.Provider] with failover across generators.
type LLMChain struct {
	*FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMChain)(nil)

// NewLLMChain creates an [LLMChain] with primary as the preferred backend.
func NewLLMChain(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMChain {
	return &LLMChain{NewFallbackGroup(primary, primaryName, cfg)}
}

// Generate asks each healthy backend in turn.
func (c *LLMChain) Generate(ctx context.Context, persona, userText string) (string, error) {
	return ExecuteWithResult(ctx, c.FallbackGroup, func(ctx context.Context, p llm.Provider) (string, error) {
		return p.Generate(ctx, persona, userText)
	})
}

// ─── TTS ─────────────────────────────────────────────────────────────────────

// TTSChain implements [tts.Provider] with failover across synthesizers.
type TTSChain struct {
	*FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSChain)(nil)

// NewTTSChain creates a [TTSChain] with primary as the preferred backend.
func NewTTSChain(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSChain {
	return &TTSChain{NewFallbackGroup(primary, primaryName, cfg)}
}

// Synthesize asks each healthy backend in turn.
func (c *TTSChain) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	return ExecuteWithResult(ctx, c.FallbackGroup, func(ctx context.Context, p tts.Provider) (audio.Clip, error) {
		return p.Synthesize(ctx, text)
	})
}
