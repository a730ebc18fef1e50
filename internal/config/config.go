// Package config provides the configuration schema, loader, provider registry
// and file watcher for the echochamber appliance.
package config

import (
	"fmt"
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to a [slog.Level]. Unknown values map to Info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel LogLevel `yaml:"logLevel"`

	// ListenAddr serves /healthz, /readyz and /metrics. Empty disables the
	// HTTP server.
	ListenAddr string `yaml:"listenAddr"`

	Session   SessionConfig   `yaml:"session"`
	Persona   PersonaConfig   `yaml:"persona"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	Actuator  ActuatorConfig  `yaml:"actuator"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// SessionConfig holds the turn-taking and capture parameters. Durations are
// given in (fractional) seconds.
type SessionConfig struct {
	// Threshold is the VAD energy threshold. It can be changed while running.
	Threshold float64 `yaml:"threshold"`

	SilenceDurationSec float64 `yaml:"silenceDurationSec"`
	MaxRecordSec       float64 `yaml:"maxRecordSec"`
	PollFrameSec       float64 `yaml:"pollFrameSec"`
	CaptureFrameSec    float64 `yaml:"captureFrameSec"`
	SampleRate         int     `yaml:"sampleRate"`

	// ClipDir holds the statement clips.
	ClipDir string `yaml:"clipDir"`

	// AckClip is played after every statement and every reply.
	AckClip string `yaml:"ackClip"`

	// UserSoundsDir receives recorded utterances, which then join the
	// ambient rotation.
	UserSoundsDir string `yaml:"userSoundsDir"`

	// AnswersDir, if set, keeps every spoken reply as WAV.
	AnswersDir string `yaml:"answersDir"`

	// ChunkSamples is the playback write size.
	ChunkSamples int `yaml:"chunkSamples"`
}

// SilenceDuration returns SilenceDurationSec as a [time.Duration].
func (s SessionConfig) SilenceDuration() time.Duration { return seconds(s.SilenceDurationSec) }

// MaxRecord returns MaxRecordSec as a [time.Duration].
func (s SessionConfig) MaxRecord() time.Duration { return seconds(s.MaxRecordSec) }

// PollFrame returns PollFrameSec as a [time.Duration].
func (s SessionConfig) PollFrame() time.Duration { return seconds(s.PollFrameSec) }

// CaptureFrame returns CaptureFrameSec as a [time.Duration].
func (s SessionConfig) CaptureFrame() time.Duration { return seconds(s.CaptureFrameSec) }

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// PersonaConfig frames every generation request.
type PersonaConfig struct {
	Instruction  string `yaml:"instruction"`
	PromptPrefix string `yaml:"promptPrefix"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each entry selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	STT       ProviderEntry   `yaml:"stt"`
	LLM       ProviderEntry   `yaml:"llm"`
	TTS       ProviderEntry   `yaml:"tts"`
	Fallbacks FallbacksConfig `yaml:"fallbacks"`
}

// FallbacksConfig lists backup providers per stage, tried in order after the
// primary fails.
type FallbacksConfig struct {
	STT []ProviderEntry `yaml:"stt"`
	LLM []ProviderEntry `yaml:"llm"`
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any. When
	// empty, a well-known environment variable is consulted.
	APIKey string `yaml:"apiKey"`

	// BaseURL overrides the provider's default API endpoint or, for local
	// servers, is the server address.
	BaseURL string `yaml:"baseURL"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values (language, voice, speed, ...).
	Options map[string]any `yaml:"options"`
}

// OptString returns Options[key] as a string, or def.
func (e ProviderEntry) OptString(key, def string) string {
	if v, ok := e.Options[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return def
}

// OptFloat returns Options[key] as a float64, or def. YAML integers are
// accepted.
func (e ProviderEntry) OptFloat(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// OptInt returns Options[key] as an int, or def. Whole floats are accepted.
func (e ProviderEntry) OptInt(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return def
}

// OptDuration returns Options[key], given in seconds, as a duration, or def.
func (e ProviderEntry) OptDuration(key string, def time.Duration) time.Duration {
	if _, ok := e.Options[key]; !ok {
		return def
	}
	return seconds(e.OptFloat(key, def.Seconds()))
}

// AudioConfig selects the audio backends.
type AudioConfig struct {
	// Input is "portaudio".
	Input string `yaml:"input"`

	// Output is "portaudio".
	Output string `yaml:"output"`

	// FramesPerBuffer is the device buffer size.
	FramesPerBuffer int `yaml:"framesPerBuffer"`
}

// ActuatorConfig selects the mode-signal device.
type ActuatorConfig struct {
	// Name is "serial" or "none" (empty means none).
	Name          string  `yaml:"name"`
	Port          string  `yaml:"port"`
	Baud          int     `yaml:"baud"`
	ResetDelaySec float64 `yaml:"resetDelaySec"`
}

// ResetDelay returns ResetDelaySec as a [time.Duration].
func (a ActuatorConfig) ResetDelay() time.Duration { return seconds(a.ResetDelaySec) }

// ArchiveConfig configures the turn journal.
type ArchiveConfig struct {
	// PostgresDSN enables the echo_turns journal. Empty disables it.
	PostgresDSN string `yaml:"postgresDSN"`
}
