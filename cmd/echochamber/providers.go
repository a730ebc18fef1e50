package main

import (
	"context"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/echochamber/internal/app"
	"github.com/MrWong99/echochamber/internal/config"
	"github.com/MrWong99/echochamber/internal/observe"
	"github.com/MrWong99/echochamber/internal/resilience"
	"github.com/MrWong99/echochamber/internal/session"
	"github.com/MrWong99/echochamber/pkg/provider/llm"
	"github.com/MrWong99/echochamber/pkg/provider/llm/anyllm"
	"github.com/MrWong99/echochamber/pkg/provider/llm/canned"
	oaillm "github.com/MrWong99/echochamber/pkg/provider/llm/openai"
	"github.com/MrWong99/echochamber/pkg/provider/stt"
	"github.com/MrWong99/echochamber/pkg/provider/stt/deepgram"
	googlestt "github.com/MrWong99/echochamber/pkg/provider/stt/google"
	oaistt "github.com/MrWong99/echochamber/pkg/provider/stt/openai"
	"github.com/MrWong99/echochamber/pkg/provider/stt/whisper"
	"github.com/MrWong99/echochamber/pkg/provider/tts"
	"github.com/MrWong99/echochamber/pkg/provider/tts/coqui"
	"github.com/MrWong99/echochamber/pkg/provider/tts/elevenlabs"
	googletts "github.com/MrWong99/echochamber/pkg/provider/tts/google"
	oaitts "github.com/MrWong99/echochamber/pkg/provider/tts/openai"
)

// anyllmVendors are the LLM backends served through any-llm-go.
var anyllmVendors = []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "ollama", "llamacpp", "llamafile"}

// llmParams reads temperature and maxTokens, defaulting to [llm.DefaultParams].
func llmParams(e config.ProviderEntry) llm.Params {
	def := llm.DefaultParams()
	return llm.Params{
		Temperature: e.OptFloat("temperature", def.Temperature),
		MaxTokens:   e.OptInt("maxTokens", def.MaxTokens),
	}
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// ctx bounds client construction for the cloud SDKs.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("google", func(e config.ProviderEntry) (stt.Provider, error) {
		opts := []googlestt.Option{googlestt.WithLanguage(e.OptString("language", stt.DefaultLanguage))}
		if f := e.OptString("credentialsFile", ""); f != "" {
			opts = append(opts, googlestt.WithCredentialsFile(f))
		}
		if e.Model != "" {
			opts = append(opts, googlestt.WithModel(e.Model))
		}
		return googlestt.New(ctx, opts...)
	})

	reg.RegisterSTT("openai", func(e config.ProviderEntry) (stt.Provider, error) {
		opts := []oaistt.Option{oaistt.WithLanguage(e.OptString("language", stt.DefaultLanguage))}
		if e.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, oaistt.WithModel(e.Model))
		}
		if p := e.OptString("prompt", ""); p != "" {
			opts = append(opts, oaistt.WithPrompt(p))
		}
		if d := e.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, oaistt.WithTimeout(d))
		}
		return oaistt.New(e.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithLanguage(e.OptString("language", stt.DefaultLanguage))}
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(e.BaseURL))
		}
		return deepgram.New(e.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithLanguage(e.OptString("language", stt.DefaultLanguage))}
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(e config.ProviderEntry) (stt.Provider, error) {
		modelPath := e.Model
		if modelPath == "" {
			modelPath = e.OptString("modelPath", "")
		}
		return whisper.NewNative(modelPath,
			whisper.WithNativeLanguage(e.OptString("language", stt.DefaultLanguage)),
			whisper.WithNativeThreads(e.OptInt("threads", 0)),
			whisper.WithNativePrompt(e.OptString("prompt", "")))
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		opts := []oaillm.Option{oaillm.WithParams(llmParams(e))}
		if e.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(e.BaseURL))
		}
		if org := e.OptString("organization", ""); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		if d := e.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, oaillm.WithTimeout(d))
		}
		if n := e.OptInt("maxRetries", -1); n >= 0 {
			opts = append(opts, oaillm.WithMaxRetries(n))
		}
		model := e.Model
		if model == "" {
			model = llm.DefaultModel
		}
		return oaillm.New(e.APIKey, model, opts...)
	})

	for _, vendor := range anyllmVendors {
		reg.RegisterLLM(vendor, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(vendor, e.Model, llmParams(e), opts...)
		})
	}

	reg.RegisterLLM("canned", func(config.ProviderEntry) (llm.Provider, error) {
		return canned.New(), nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(e config.ProviderEntry) (tts.Provider, error) {
		opts := []oaitts.Option{oaitts.WithSpeed(e.OptFloat("speed", tts.DefaultSpeed))}
		if e.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, oaitts.WithModel(e.Model))
		}
		if v := e.OptString("voice", ""); v != "" {
			opts = append(opts, oaitts.WithVoice(v))
		}
		if s := e.OptString("instructions", ""); s != "" {
			opts = append(opts, oaitts.WithInstructions(s))
		}
		if d := e.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, oaitts.WithTimeout(d))
		}
		return oaitts.New(e.APIKey, opts...)
	})

	reg.RegisterTTS("google", func(e config.ProviderEntry) (tts.Provider, error) {
		opts := []googletts.Option{
			googletts.WithLanguage(e.OptString("language", tts.DefaultLanguage)),
			googletts.WithSpeed(e.OptFloat("speed", tts.DefaultSpeed)),
		}
		if f := e.OptString("credentialsFile", ""); f != "" {
			opts = append(opts, googletts.WithCredentialsFile(f))
		}
		if v := e.OptString("voice", ""); v != "" {
			opts = append(opts, googletts.WithVoice(v))
		}
		if g := e.OptString("gender", ""); g != "" {
			opts = append(opts, googletts.WithGender(g))
		}
		if hz := e.OptInt("sampleRate", 0); hz > 0 {
			opts = append(opts, googletts.WithSampleRate(hz))
		}
		return googletts.New(ctx, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if f := e.OptString("outputFormat", ""); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if s := e.OptFloat("speed", 0); s > 0 {
			opts = append(opts, elevenlabs.WithSpeed(s))
		}
		if e.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(e.BaseURL))
		}
		return elevenlabs.New(e.APIKey, e.OptString("voice", ""), opts...)
	})

	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		opts := []coqui.Option{coqui.WithLanguage(stt.BaseLanguage(e.OptString("language", tts.DefaultLanguage)))}
		if s := e.OptString("speaker", ""); s != "" {
			opts = append(opts, coqui.WithSpeaker(s))
		}
		if m := e.OptString("apiMode", ""); m != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(m)))
		}
		if d := e.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(e.BaseURL, opts...)
	})

	for _, kind := range []string{"stt", "llm", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates the configured primaries and wraps each stage
// in a fallback chain when fallbacks are listed. Provider errors counted by
// the circuit breakers and breaker transitions feed the metrics.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	p := cfg.Providers
	chainConfig := func(kind string) resilience.FallbackConfig {
		return resilience.FallbackConfig{
			OnFailure: func(name string, err error) {
				slog.Warn("provider failed", "kind", kind, "name", name, "err", err)
				metrics.RecordProviderError(context.Background(), name, kind)
			},
			CircuitBreaker: resilience.CircuitBreakerConfig{
				OnStateChange: func(name string, _, to resilience.State) {
					metrics.RecordBreakerTransition(context.Background(), name, kind, to.String())
				},
			},
		}
	}

	sttP, err := buildStage("stt", p.STT, p.Fallbacks.STT, reg.CreateSTT,
		func(primary stt.Provider, name string, cfg resilience.FallbackConfig) stageChain[stt.Provider] {
			return resilience.NewSTTChain(primary, name, cfg)
		}, chainConfig("stt"))
	if err != nil {
		return nil, err
	}
	llmP, err := buildStage("llm", p.LLM, p.Fallbacks.LLM, reg.CreateLLM,
		func(primary llm.Provider, name string, cfg resilience.FallbackConfig) stageChain[llm.Provider] {
			return resilience.NewLLMChain(primary, name, cfg)
		}, chainConfig("llm"))
	if err != nil {
		return nil, err
	}
	ttsP, err := buildStage("tts", p.TTS, p.Fallbacks.TTS, reg.CreateTTS,
		func(primary tts.Provider, name string, cfg resilience.FallbackConfig) stageChain[tts.Provider] {
			return resilience.NewTTSChain(primary, name, cfg)
		}, chainConfig("tts"))
	if err != nil {
		return nil, err
	}

	return &app.Providers{
		STT: sttP,
		LLM: llmP,
		TTS: ttsP,
		Names: session.ProviderNames{
			STT: p.STT.Name,
			LLM: p.LLM.Name,
			TTS: p.TTS.Name,
		},
	}, nil
}

// stageChain is what buildStage needs from a resilience chain: it serves as
// the stage provider and accepts fallbacks.
type stageChain[T any] interface {
	AddFallback(name string, fallback T)
}

func buildStage[T any](
	kind string,
	primary config.ProviderEntry,
	fallbacks []config.ProviderEntry,
	create func(config.ProviderEntry) (T, error),
	chain func(T, string, resilience.FallbackConfig) stageChain[T],
	fallbackCfg resilience.FallbackConfig,
) (T, error) {
	var zero T
	p, err := create(primary)
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, primary.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", primary.Name)
	if len(fallbacks) == 0 {
		return p, nil
	}

	c := chain(p, primary.Name, fallbackCfg)
	for _, fb := range fallbacks {
		fp, err := create(fb)
		if err != nil {
			return zero, fmt.Errorf("create %s fallback %q: %w", kind, fb.Name, err)
		}
		c.AddFallback(fb.Name, fp)
		slog.Info("fallback provider created", "kind", kind, "name", fb.Name)
	}
	return c.(T), nil
}
