// Package capture turns a live [audio.FrameSource] into finished utterances.
//
// Two strategies are offered: [Engine.Bounded] tops a recording up to a fixed
// length, and [Engine.UntilSilence] records until a run of quiet frames or a
// hard maximum is reached. Both may be seeded with the frame that triggered
// voice detection so the start of speech is kept.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/MrWong99/echochamber/pkg/provider/vad"
)

// Defaults used when [SilenceParams] fields are zero.
const (
	DefaultFrame   = 100 * time.Millisecond
	DefaultSilence = 1200 * time.Millisecond
	DefaultMax     = 10 * time.Second
)

// SilenceParams configures [Engine.UntilSilence].
type SilenceParams struct {
	// Frame is the duration requested from the source per read.
	Frame time.Duration

	// Silence is how much contiguous quiet audio ends the capture. It is
	// converted to a whole number of frames by integer division.
	Silence time.Duration

	// Max bounds the total utterance duration, seed included.
	Max time.Duration
}

func (p SilenceParams) withDefaults() SilenceParams {
	if p.Frame <= 0 {
		p.Frame = DefaultFrame
	}
	if p.Silence <= 0 {
		p.Silence = DefaultSilence
	}
	if p.Max <= 0 {
		p.Max = DefaultMax
	}
	return p
}

// SilenceFrames returns the number of consecutive quiet frames that end a
// capture. Never less than one.
func (p SilenceParams) SilenceFrames() int {
	p = p.withDefaults()
	return max(int(p.Silence/p.Frame), 1)
}

// Engine captures utterances from a single frame source. It is not safe for
// concurrent use; the session runs one capture at a time.
type Engine struct {
	src audio.FrameSource
	det *vad.Detector
}

// New returns an Engine reading from src and classifying silence with det.
func New(src audio.FrameSource, det *vad.Detector) *Engine {
	return &Engine{src: src, det: det}
}

// Bounded fetches frames of length frame until the utterance reaches at least
// target. A seed that already covers target is returned on its own. A nil
// seed records a fixed-length sample from scratch.
func (e *Engine) Bounded(ctx context.Context, seed *audio.Frame, target, frame time.Duration) (audio.Utterance, error) {
	if frame <= 0 {
		frame = DefaultFrame
	}
	b, err := e.budget(target, seed)
	if err != nil {
		return audio.Utterance{}, err
	}
	u := seeded(seed)
	for !b.done() {
		f, err := e.next(ctx, b.request(frame))
		if err != nil {
			return audio.Utterance{}, err
		}
		u.Frames = append(u.Frames, f)
		b.add(f)
	}
	return u, nil
}

// UntilSilence records until p.SilenceFrames consecutive frames are quieter
// than the detector threshold, or until the utterance reaches p.Max. The
// terminating quiet frames are kept in the result.
func (e *Engine) UntilSilence(ctx context.Context, seed *audio.Frame, p SilenceParams) (audio.Utterance, error) {
	p = p.withDefaults()
	need := p.SilenceFrames()
	b, err := e.budget(p.Max, seed)
	if err != nil {
		return audio.Utterance{}, err
	}
	u := seeded(seed)

	quiet := 0
	for !b.done() {
		f, err := e.next(ctx, b.request(p.Frame))
		if err != nil {
			return audio.Utterance{}, err
		}
		u.Frames = append(u.Frames, f)
		b.add(f)

		if e.det.Silent(f) {
			quiet++
		} else {
			quiet = 0
		}
		if quiet >= need {
			break
		}
	}
	return u, nil
}

func (e *Engine) next(ctx context.Context, d time.Duration) (audio.Frame, error) {
	f, err := e.src.NextFrame(ctx, d)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return audio.Frame{}, err
		}
		return audio.Frame{}, fmt.Errorf("capture: next frame: %w", err)
	}
	if f.Duration() <= 0 {
		return audio.Frame{}, errors.New("capture: source returned an empty frame")
	}
	return f, nil
}

func seeded(seed *audio.Frame) audio.Utterance {
	if seed == nil {
		return audio.Utterance{}
	}
	return audio.Utterance{Frames: []audio.Frame{*seed}}
}

// budget is a capture length counted in samples at the source rate. Durations
// are only used to phrase requests.
type budget struct {
	rate  int
	limit int
	have  int
}

func (e *Engine) budget(limit time.Duration, seed *audio.Frame) (budget, error) {
	rate := e.src.SampleRate()
	if rate <= 0 {
		return budget{}, fmt.Errorf("capture: invalid source sample rate %d", rate)
	}
	b := budget{rate: rate, limit: audio.SamplesFor(limit, rate)}
	if seed != nil {
		b.add(*seed)
	}
	return b, nil
}

func (b budget) done() bool { return b.have >= b.limit }

func (b *budget) add(f audio.Frame) {
	if f.SampleRate == b.rate {
		b.have += len(f.Samples)
		return
	}
	b.have += audio.SamplesFor(f.Duration(), b.rate)
}

// request returns the duration of the next read: one frame, or what is left
// of the budget if that is less. The duration is rounded up to the
// nanosecond so it converts back to at least the intended sample count.
func (b budget) request(frame time.Duration) time.Duration {
	n := max(min(audio.SamplesFor(frame, b.rate), b.limit-b.have), 1)
	return time.Duration((int64(n)*int64(time.Second) + int64(b.rate) - 1) / int64(b.rate))
}
