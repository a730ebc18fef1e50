package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/echochamber/pkg/audio"
)

func fixedNow(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func TestNewDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if _, err := NewDir("", ""); err == nil {
		t.Fatal("expected error for empty utterance dir")
	}
	d, err := NewDir(filepath.Join(root, "usersounds"), filepath.Join(root, "answers"))
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	for _, p := range []string{d.utterDir, d.answersDir} {
		if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
			t.Errorf("%s not created: %v", p, err)
		}
	}
}

func TestSaveUtterance(t *testing.T) {
	t.Parallel()
	d, err := NewDir(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	d.now = fixedNow(1700000000)

	utt := audio.Utterance{Frames: []audio.Frame{
		{Samples: []int16{1, 2, 3}, SampleRate: 16000},
		{Samples: []int16{4, 5}, SampleRate: 16000},
	}}

	first, err := d.SaveUtterance(context.Background(), utt)
	if err != nil {
		t.Fatalf("SaveUtterance: %v", err)
	}
	if filepath.Base(first) != "userinput_1700000000.wav" {
		t.Errorf("path = %q", first)
	}
	second, err := d.SaveUtterance(context.Background(), utt)
	if err != nil {
		t.Fatalf("SaveUtterance: %v", err)
	}
	if filepath.Base(second) != "userinput_1700000000_1.wav" {
		t.Errorf("second path = %q", second)
	}

	clip, err := audio.LoadClip(first)
	if err != nil {
		t.Fatalf("LoadClip: %v", err)
	}
	if clip.SampleRate != 16000 || len(clip.Samples) != 5 || clip.Samples[4] != 5 {
		t.Errorf("clip = %v @ %d", clip.Samples, clip.SampleRate)
	}
}

func TestSaveUtterance_Errors(t *testing.T) {
	t.Parallel()
	d, _ := NewDir(t.TempDir(), "")
	if _, err := d.SaveUtterance(context.Background(), audio.Utterance{}); err == nil {
		t.Error("expected error for empty utterance")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	utt := audio.Utterance{Frames: []audio.Frame{{Samples: []int16{1}, SampleRate: 16000}}}
	if _, err := d.SaveUtterance(ctx, utt); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestSaveReply(t *testing.T) {
	t.Parallel()
	clip := audio.Clip{Samples: []int16{9, 9}, SampleRate: 24000}

	off, _ := NewDir(t.TempDir(), "")
	path, err := off.SaveReply(context.Background(), clip)
	if err != nil || path != "" {
		t.Errorf("disabled SaveReply = %q, %v", path, err)
	}

	answers := t.TempDir()
	on, _ := NewDir(t.TempDir(), answers)
	on.now = fixedNow(42)
	path, err = on.SaveReply(context.Background(), clip)
	if err != nil {
		t.Fatalf("SaveReply: %v", err)
	}
	if path != filepath.Join(answers, "answer_42.wav") {
		t.Errorf("path = %q", path)
	}
}
