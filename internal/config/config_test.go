package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/echochamber/internal/config"
	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/MrWong99/echochamber/pkg/provider/llm"
	llmmock "github.com/MrWong99/echochamber/pkg/provider/llm/mock"
	"github.com/MrWong99/echochamber/pkg/provider/stt"
	sttmock "github.com/MrWong99/echochamber/pkg/provider/stt/mock"
	"github.com/MrWong99/echochamber/pkg/provider/tts"
	ttsmock "github.com/MrWong99/echochamber/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
logLevel: debug
listenAddr: ":9090"

session:
  threshold: 0.0008
  silenceDurationSec: 1.5
  maxRecordSec: 8
  clipDir: /srv/sounds
  ackClip: /srv/sounds/applaus.wav
  answersDir: /srv/answers

persona:
  instruction: Be kind.
  promptPrefix: "Agree: "

providers:
  stt:
    name: deepgram
    apiKey: dg-test
    options:
      language: en-US
  llm:
    name: openai
    apiKey: sk-test
    model: gpt-4o-mini
  tts:
    name: elevenlabs
    apiKey: el-test
    options:
      voice: Rachel
      speed: 1.1
  fallbacks:
    tts:
      - name: coqui
        baseURL: http://localhost:5002

actuator:
  name: serial
  port: /dev/ttyUSB0

archive:
  postgresDSN: postgres://localhost/echo
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── loading ──────────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.LogLevel != config.LogDebug {
		t.Errorf("logLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("listenAddr = %q", cfg.ListenAddr)
	}
	if got := cfg.Session.SilenceDuration(); got != 1500*time.Millisecond {
		t.Errorf("SilenceDuration = %v, want 1.5s", got)
	}
	if got := cfg.Session.MaxRecord(); got != 8*time.Second {
		t.Errorf("MaxRecord = %v, want 8s", got)
	}
	if cfg.Persona.Instruction != "Be kind." {
		t.Errorf("persona.instruction = %q", cfg.Persona.Instruction)
	}
	if cfg.Providers.STT.OptString("language", "") != "en-US" {
		t.Errorf("stt language = %q", cfg.Providers.STT.OptString("language", ""))
	}
	if got := cfg.Providers.TTS.OptFloat("speed", 0); got != 1.1 {
		t.Errorf("tts speed = %v, want 1.1", got)
	}
	if n := len(cfg.Providers.Fallbacks.TTS); n != 1 || cfg.Providers.Fallbacks.TTS[0].Name != "coqui" {
		t.Errorf("tts fallbacks = %+v", cfg.Providers.Fallbacks.TTS)
	}
	if cfg.Actuator.Baud != config.DefaultBaud {
		t.Errorf("actuator.baud = %d, want default %d", cfg.Actuator.Baud, config.DefaultBaud)
	}
	if cfg.Actuator.ResetDelay() != 2*time.Second {
		t.Errorf("actuator.ResetDelay = %v, want 2s", cfg.Actuator.ResetDelay())
	}
	if cfg.Archive.PostgresDSN == "" {
		t.Error("archive.postgresDSN not decoded")
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "")
	if cfg.Session.Threshold != config.DefaultThreshold {
		t.Errorf("threshold = %g, want default", cfg.Session.Threshold)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("session:\n  treshold: 0.1\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "treshold") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

// ── validation ───────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"invalid log level", "logLevel: verbose\n", "logLevel"},
		{"negative threshold", "session:\n  threshold: -1\n", "threshold"},
		{"negative silence", "session:\n  silenceDurationSec: -0.5\n", "silenceDurationSec"},
		{"frame exceeds max", "session:\n  captureFrameSec: 3\n  maxRecordSec: 2\n", "captureFrameSec"},
		{"speed out of range", "providers:\n  tts:\n    name: openai\n    options:\n      speed: 9\n", "speed"},
		{"fallback without name", "providers:\n  fallbacks:\n    llm:\n      - model: x\n", "fallbacks.llm[0]"},
		{"serial without port", "actuator:\n  name: serial\n", "actuator.port"},
		{"unknown actuator", "actuator:\n  name: gpio\n", "actuator.name"},
		{"unknown audio input", "audio:\n  input: alsa\n", "audio.input"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{LogLevel: "loud"}
	cfg.Session.Threshold = -1
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"logLevel", "threshold"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()
	if config.LogDebug.Level().String() != "DEBUG" {
		t.Errorf("debug level = %v", config.LogDebug.Level())
	}
	if config.LogLevel("bogus").Level().String() != "INFO" {
		t.Errorf("unknown level should map to INFO")
	}
}

func TestProviderEntry_Options(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{
		"voice":   "alloy",
		"speed":   2,
		"rate":    24000.0,
		"timeout": 1.5,
	}}

	if got := e.OptString("voice", "x"); got != "alloy" {
		t.Errorf("OptString = %q", got)
	}
	if got := e.OptString("missing", "x"); got != "x" {
		t.Errorf("OptString default = %q", got)
	}
	if got := e.OptFloat("speed", 0); got != 2 {
		t.Errorf("OptFloat(int) = %v", got)
	}
	if got := e.OptInt("rate", 0); got != 24000 {
		t.Errorf("OptInt(float) = %v", got)
	}
	if got := e.OptDuration("timeout", 0); got != 1500*time.Millisecond {
		t.Errorf("OptDuration = %v", got)
	}
	if got := e.OptDuration("missing", time.Second); got != time.Second {
		t.Errorf("OptDuration default = %v", got)
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nope"}

	if _, err := reg.CreateSTT(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v", err)
	}
	if _, err := reg.CreateLLM(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM err = %v", err)
	}
	if _, err := reg.CreateTTS(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS err = %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.ProviderEntry
	reg.RegisterSTT("fake", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return &sttmock.Provider{Text: "hallo"}, nil
	})
	reg.RegisterLLM("fake", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{Reply: "ja"}, nil
	})
	reg.RegisterTTS("fake", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	s, err := reg.CreateSTT(config.ProviderEntry{Name: "fake", Model: "m"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if gotEntry.Model != "m" {
		t.Errorf("factory got entry %+v", gotEntry)
	}
	text, _ := s.Transcribe(context.Background(), audio.Utterance{})
	if text != "hallo" {
		t.Errorf("Transcribe = %q", text)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "fake"}); err != nil {
		t.Errorf("CreateLLM: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "fake"}); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}

	if got := reg.Names("tts"); len(got) != 1 || got[0] != "fake" {
		t.Errorf("Names(tts) = %v", got)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("no key")
	reg.RegisterLLM("bad", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
