package audio_test

import (
	"testing"

	"github.com/MrWong99/echochamber/pkg/audio"
)

func TestBytesSamplesRoundTrip(t *testing.T) {
	t.Parallel()
	in := []int16{0, 1, -1, 32767, -32768, 1234}
	got := audio.BytesToSamples(audio.SamplesToBytes(in))
	if len(got) != len(in) {
		t.Fatalf("length: got %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], in[i])
		}
	}
}

func TestBytesToSamples_OddLength(t *testing.T) {
	t.Parallel()
	got := audio.BytesToSamples([]byte{0x01, 0x00, 0xFF})
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("got %v, want [1]", got)
	}
}

func TestDownmixInterleaved(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       []int16
		channels int
		want     []int16
	}{
		{name: "mono passthrough", in: []int16{1, 2, 3}, channels: 1, want: []int16{1, 2, 3}},
		{name: "stereo average", in: []int16{100, 200, -100, -200}, channels: 2, want: []int16{150, -150}},
		{name: "stereo full scale", in: []int16{32767, 32767}, channels: 2, want: []int16{32767}},
		{name: "trailing partial frame dropped", in: []int16{10, 20, 30}, channels: 2, want: []int16{15}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := audio.DownmixInterleaved(tc.in, tc.channels)
			if len(got) != len(tc.want) {
				t.Fatalf("length: got %d, want %d", len(got), len(tc.want))
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	t.Run("same rate is identity", func(t *testing.T) {
		t.Parallel()
		in := []int16{1, 2, 3}
		got := audio.Resample(in, 16000, 16000)
		if &got[0] != &in[0] {
			t.Error("expected the input slice back")
		}
	})

	t.Run("downsample halves length", func(t *testing.T) {
		t.Parallel()
		in := make([]int16, 480)
		got := audio.Resample(in, 48000, 24000)
		if len(got) != 240 {
			t.Errorf("length: got %d, want 240", len(got))
		}
	})

	t.Run("upsample interpolates", func(t *testing.T) {
		t.Parallel()
		got := audio.Resample([]int16{0, 100}, 8000, 16000)
		want := []int16{0, 50, 100, 100}
		if len(got) != len(want) {
			t.Fatalf("length: got %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
			}
		}
	})

	t.Run("invalid rate passthrough", func(t *testing.T) {
		t.Parallel()
		in := []int16{5}
		if got := audio.Resample(in, 0, 16000); len(got) != 1 {
			t.Errorf("got %v, want input back", got)
		}
	})
}

func TestFloatConversions(t *testing.T) {
	t.Parallel()
	f := audio.ToFloat32([]int16{-32768, 0, 16384})
	if f[0] != -1 || f[1] != 0 || f[2] != 0.5 {
		t.Errorf("ToFloat32: got %v", f)
	}
	back := audio.FromFloat32([]float32{2, -2, 0.5})
	if back[0] != 32767 || back[1] != -32768 || back[2] != 16383 {
		t.Errorf("FromFloat32: got %v", back)
	}
}

func TestUtterance(t *testing.T) {
	t.Parallel()
	u := audio.Utterance{Frames: []audio.Frame{
		{Samples: []int16{1, 2}, SampleRate: 10},
		{Samples: []int16{3}, SampleRate: 10},
	}}
	if u.Len() != 2 {
		t.Errorf("Len: got %d, want 2", u.Len())
	}
	if got := u.Duration().Milliseconds(); got != 300 {
		t.Errorf("Duration: got %dms, want 300ms", got)
	}
	s := u.Samples()
	if len(s) != 3 || s[2] != 3 {
		t.Errorf("Samples: got %v", s)
	}
	if (audio.Utterance{}).SampleRate() != 0 {
		t.Error("empty utterance should report rate 0")
	}
}
