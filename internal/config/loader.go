package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/echochamber/pkg/provider/llm"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultThreshold     = 0.00055
	DefaultSilenceSec    = 1.2
	DefaultMaxRecordSec  = 10
	DefaultPollFrameSec  = 0.5
	DefaultCaptureSec    = 0.1
	DefaultSampleRate    = 16000
	DefaultClipDir       = "sounds"
	DefaultAckClip       = "sounds/applaus.wav"
	DefaultUserSoundsDir = "usersounds"
	DefaultChunkSamples  = 1024
	DefaultBaud          = 9600
	DefaultResetDelaySec = 2
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"google", "openai", "deepgram", "whisper", "whisper-native"},
	"llm": {"openai", "canned", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"openai", "google", "elevenlabs", "coqui"},
}

// apiKeyEnv maps provider names to the environment variable consulted when
// apiKey is empty.
var apiKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"deepgram":   "DEEPGRAM_API_KEY",
	"elevenlabs": "ELEVENLABS_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"mistral":    "MISTRAL_API_KEY",
	"groq":       "GROQ_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
}

// LoadDotEnv loads environment variables from the given .env files (default
// ".env"). Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
		slog.Debug("config: loaded env file", "path", p)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills credentials from the
// environment, applies defaults and validates the result. An empty document
// yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills empty provider credentials from well-known environment
// variables. The google providers read GOOGLE_APPLICATION_CREDENTIALS into
// options.credentialsFile.
func ApplyEnv(cfg *Config) {
	each := func(fn func(*ProviderEntry)) {
		fn(&cfg.Providers.STT)
		fn(&cfg.Providers.LLM)
		fn(&cfg.Providers.TTS)
		for _, list := range [][]ProviderEntry{cfg.Providers.Fallbacks.STT, cfg.Providers.Fallbacks.LLM, cfg.Providers.Fallbacks.TTS} {
			for i := range list {
				fn(&list[i])
			}
		}
	}
	each(func(e *ProviderEntry) {
		if e.Name == "google" {
			if _, ok := e.Options["credentialsFile"]; !ok {
				if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
					if e.Options == nil {
						e.Options = map[string]any{}
					}
					e.Options["credentialsFile"] = v
				}
			}
			return
		}
		if e.APIKey != "" {
			return
		}
		if env, ok := apiKeyEnv[e.Name]; ok {
			e.APIKey = os.Getenv(env)
		}
	})
}

// ApplyDefaults fills zero values with the appliance defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}

	s := &cfg.Session
	setIfZero(&s.Threshold, DefaultThreshold)
	setIfZero(&s.SilenceDurationSec, DefaultSilenceSec)
	setIfZero(&s.MaxRecordSec, DefaultMaxRecordSec)
	setIfZero(&s.PollFrameSec, DefaultPollFrameSec)
	setIfZero(&s.CaptureFrameSec, DefaultCaptureSec)
	setIfZero(&s.SampleRate, DefaultSampleRate)
	setIfZero(&s.ClipDir, DefaultClipDir)
	setIfZero(&s.AckClip, DefaultAckClip)
	setIfZero(&s.UserSoundsDir, DefaultUserSoundsDir)
	setIfZero(&s.ChunkSamples, DefaultChunkSamples)

	setIfZero(&cfg.Persona.Instruction, llm.DefaultInstruction)
	setIfZero(&cfg.Persona.PromptPrefix, llm.DefaultPromptPrefix)

	p := &cfg.Providers
	setIfZero(&p.STT.Name, "google")
	setIfZero(&p.LLM.Name, "openai")
	setIfZero(&p.TTS.Name, "openai")
	if p.LLM.Name == "openai" {
		setIfZero(&p.LLM.Model, llm.DefaultModel)
	}

	setIfZero(&cfg.Audio.Input, "portaudio")
	setIfZero(&cfg.Audio.Output, "portaudio")

	if cfg.Actuator.Name == "serial" {
		setIfZero(&cfg.Actuator.Baud, DefaultBaud)
		setIfZero(&cfg.Actuator.ResetDelaySec, DefaultResetDelaySec)
	}
}

func setIfZero[T comparable](dst *T, def T) {
	var zero T
	if *dst == zero {
		*dst = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("logLevel %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	s := cfg.Session
	if s.Threshold < 0 {
		errs = append(errs, fmt.Errorf("session.threshold %g must not be negative", s.Threshold))
	}
	for _, d := range []struct {
		name string
		v    float64
	}{
		{"silenceDurationSec", s.SilenceDurationSec},
		{"maxRecordSec", s.MaxRecordSec},
		{"pollFrameSec", s.PollFrameSec},
		{"captureFrameSec", s.CaptureFrameSec},
	} {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("session.%s %g must not be negative", d.name, d.v))
		}
	}
	if s.CaptureFrameSec > 0 && s.MaxRecordSec > 0 && s.CaptureFrameSec > s.MaxRecordSec {
		errs = append(errs, fmt.Errorf("session.captureFrameSec %g exceeds maxRecordSec %g", s.CaptureFrameSec, s.MaxRecordSec))
	}
	if s.CaptureFrameSec > 0 && s.SilenceDurationSec > 0 && s.SilenceDurationSec < s.CaptureFrameSec {
		slog.Warn("session.silenceDurationSec is shorter than one capture frame; one quiet frame will end a capture")
	}
	if s.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("session.sampleRate %d must not be negative", s.SampleRate))
	}
	if s.ChunkSamples < 0 {
		errs = append(errs, fmt.Errorf("session.chunkSamples %d must not be negative", s.ChunkSamples))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for kind, list := range map[string][]ProviderEntry{
		"stt": cfg.Providers.Fallbacks.STT,
		"llm": cfg.Providers.Fallbacks.LLM,
		"tts": cfg.Providers.Fallbacks.TTS,
	} {
		for i, e := range list {
			if e.Name == "" {
				errs = append(errs, fmt.Errorf("providers.fallbacks.%s[%d].name is required", kind, i))
				continue
			}
			validateProviderName(kind, e.Name)
		}
	}
	if speed := cfg.Providers.TTS.OptFloat("speed", 1); speed < 0.25 || speed > 4 {
		errs = append(errs, fmt.Errorf("providers.tts.options.speed %.2f is out of range [0.25, 4]", speed))
	}

	switch cfg.Audio.Input {
	case "", "portaudio":
	default:
		errs = append(errs, fmt.Errorf("audio.input %q is invalid; valid values: portaudio", cfg.Audio.Input))
	}
	switch cfg.Audio.Output {
	case "", "portaudio":
	default:
		errs = append(errs, fmt.Errorf("audio.output %q is invalid; valid values: portaudio", cfg.Audio.Output))
	}

	switch cfg.Actuator.Name {
	case "", "none":
	case "serial":
		if cfg.Actuator.Port == "" {
			errs = append(errs, errors.New("actuator.port is required when actuator.name is serial"))
		}
		if cfg.Actuator.Baud < 0 {
			errs = append(errs, fmt.Errorf("actuator.baud %d must not be negative", cfg.Actuator.Baud))
		}
	default:
		errs = append(errs, fmt.Errorf("actuator.name %q is invalid; valid values: serial, none", cfg.Actuator.Name))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
