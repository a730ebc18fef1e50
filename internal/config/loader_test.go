package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/echochamber/internal/config"
	"github.com/MrWong99/echochamber/pkg/provider/llm"
)

func TestApplyDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	s := cfg.Session
	checks := []struct {
		name string
		ok   bool
	}{
		{"logLevel", cfg.LogLevel == config.LogInfo},
		{"threshold", s.Threshold == config.DefaultThreshold},
		{"silence", s.SilenceDurationSec == config.DefaultSilenceSec},
		{"maxRecord", s.MaxRecordSec == config.DefaultMaxRecordSec},
		{"pollFrame", s.PollFrameSec == config.DefaultPollFrameSec},
		{"captureFrame", s.CaptureFrameSec == config.DefaultCaptureSec},
		{"sampleRate", s.SampleRate == config.DefaultSampleRate},
		{"clipDir", s.ClipDir == config.DefaultClipDir},
		{"ackClip", s.AckClip == config.DefaultAckClip},
		{"userSoundsDir", s.UserSoundsDir == config.DefaultUserSoundsDir},
		{"answersDir stays off", s.AnswersDir == ""},
		{"chunkSamples", s.ChunkSamples == config.DefaultChunkSamples},
		{"persona instruction", cfg.Persona.Instruction == llm.DefaultInstruction},
		{"persona prefix", cfg.Persona.PromptPrefix == llm.DefaultPromptPrefix},
		{"stt", cfg.Providers.STT.Name == "google"},
		{"llm", cfg.Providers.LLM.Name == "openai"},
		{"llm model", cfg.Providers.LLM.Model == llm.DefaultModel},
		{"tts", cfg.Providers.TTS.Name == "openai"},
		{"audio input", cfg.Audio.Input == "portaudio"},
		{"actuator stays off", cfg.Actuator.Name == "" && cfg.Actuator.Baud == 0},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("default %s not applied: %+v", c.name, cfg)
		}
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Session.Threshold = 0.01
	cfg.Providers.LLM = config.ProviderEntry{Name: "anthropic"}
	config.ApplyDefaults(cfg)

	if cfg.Session.Threshold != 0.01 {
		t.Errorf("threshold overwritten: %g", cfg.Session.Threshold)
	}
	if cfg.Providers.LLM.Model != "" {
		t.Errorf("non-openai llm got default model %q", cfg.Providers.LLM.Model)
	}
}

// Tests below mutate the process environment and must not run in parallel.

func TestApplyEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ELEVENLABS_API_KEY", "el-env")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/etc/gcp.json")

	cfg := &config.Config{}
	cfg.Providers.STT = config.ProviderEntry{Name: "google"}
	cfg.Providers.LLM = config.ProviderEntry{Name: "openai", APIKey: "sk-file"}
	cfg.Providers.TTS = config.ProviderEntry{Name: "elevenlabs"}
	cfg.Providers.Fallbacks.TTS = []config.ProviderEntry{{Name: "openai"}}
	config.ApplyEnv(cfg)

	if got := cfg.Providers.STT.OptString("credentialsFile", ""); got != "/etc/gcp.json" {
		t.Errorf("google credentialsFile = %q", got)
	}
	if cfg.Providers.LLM.APIKey != "sk-file" {
		t.Errorf("explicit key overwritten: %q", cfg.Providers.LLM.APIKey)
	}
	if cfg.Providers.TTS.APIKey != "el-env" {
		t.Errorf("elevenlabs key = %q", cfg.Providers.TTS.APIKey)
	}
	if cfg.Providers.Fallbacks.TTS[0].APIKey != "sk-env" {
		t.Errorf("fallback key = %q", cfg.Providers.Fallbacks.TTS[0].APIKey)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("ECHOCHAMBER_TEST_DOTENV=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ECHOCHAMBER_TEST_DOTENV", "")
	os.Unsetenv("ECHOCHAMBER_TEST_DOTENV")

	if err := config.LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("ECHOCHAMBER_TEST_DOTENV"); got != "loaded" {
		t.Errorf("env = %q, want loaded", got)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "echochamber.yaml")
	if err := os.WriteFile(path, []byte("session:\n  threshold: 0.002\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Threshold != 0.002 {
		t.Errorf("threshold = %g", cfg.Session.Threshold)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	} else if !strings.Contains(err.Error(), "nope.yaml") {
		t.Errorf("error should name the file: %v", err)
	}
}
