package google

import (
	"context"
	"errors"
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/MrWong99/echochamber/pkg/audio/mock"
)

func TestTranscribe(t *testing.T) {
	t.Parallel()
	var got *speechpb.RecognizeRequest
	p := newProvider(func(_ context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		got = req
		return &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "Kunst ist"}, {Transcript: "Gunst ist"}}},
			{Alternatives: nil},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " schön "}}},
		}}, nil
	}, &config{language: "de-DE"})

	utt := audio.Utterance{Frames: []audio.Frame{mock.Sine(16000, 100*time.Millisecond, 200, 0.1)}}
	text, err := p.Transcribe(context.Background(), utt)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Kunst ist schön" {
		t.Errorf("text = %q, want %q", text, "Kunst ist schön")
	}

	cfg := got.GetConfig()
	if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("encoding = %v", cfg.GetEncoding())
	}
	if cfg.GetSampleRateHertz() != 16000 || cfg.GetLanguageCode() != "de-DE" {
		t.Errorf("config = %d Hz, %q", cfg.GetSampleRateHertz(), cfg.GetLanguageCode())
	}
	if n := len(got.GetAudio().GetContent()); n != 1600*2 {
		t.Errorf("content = %d bytes, want 3200", n)
	}
}

func TestTranscribe_NoResults(t *testing.T) {
	t.Parallel()
	p := newProvider(func(context.Context, *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return &speechpb.RecognizeResponse{}, nil
	}, &config{language: "de-DE"})

	utt := audio.Utterance{Frames: []audio.Frame{mock.Silence(16000, 100*time.Millisecond)}}
	text, err := p.Transcribe(context.Background(), utt)
	if err != nil || text != "" {
		t.Errorf("Transcribe = %q, %v; want \"\", nil", text, err)
	}
}

func TestTranscribe_Error(t *testing.T) {
	t.Parallel()
	boom := errors.New("quota exceeded")
	p := newProvider(func(context.Context, *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return nil, boom
	}, &config{})

	utt := audio.Utterance{Frames: []audio.Frame{mock.Silence(16000, 100*time.Millisecond)}}
	if _, err := p.Transcribe(context.Background(), utt); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}
