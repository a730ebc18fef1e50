package whisper_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/MrWong99/echochamber/pkg/audio/mock"
	"github.com/MrWong99/echochamber/pkg/provider/stt/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative("/nonexistent/path/to/model.bin"); err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestNativeTranscribe_Silence(t *testing.T) {
	p, err := whisper.NewNative(testModelPath(t), whisper.WithNativeLanguage("de-DE"))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	utt := audio.Utterance{Frames: []audio.Frame{mock.Silence(16000, time.Second)}}
	if _, err := p.Transcribe(context.Background(), utt); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
}

func TestNativeTranscribe_CancelledContext(t *testing.T) {
	p, err := whisper.NewNative(testModelPath(t))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	utt := audio.Utterance{Frames: []audio.Frame{mock.Silence(16000, time.Second)}}
	if _, err := p.Transcribe(ctx, utt); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
