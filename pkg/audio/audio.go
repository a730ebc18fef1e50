// Package audio defines the PCM types and device contracts shared by the
// echo chamber's capture and playback paths.
//
// The two device abstractions are:
//
//   - [FrameSource]: the microphone. Produces contiguous fixed-duration
//     [Frame] values on demand.
//   - [Sink]: the speaker. Accepts PCM chunks and blocks for roughly their
//     playback time.
//
// All audio inside the appliance is mono signed 16-bit PCM. Decoders in this
// package down-mix anything else on load.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrSourceClosed is returned by [FrameSource.NextFrame] once the source has
// been closed or has no more audio to deliver.
var ErrSourceClosed = errors.New("audio: source closed")

// Frame is a fixed-length run of mono samples captured at SampleRate.
// Frames are immutable once produced.
type Frame struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// Utterance is the ordered sequence of frames collected during one capture.
type Utterance struct {
	Frames []Frame
}

// Len returns the number of frames in the utterance.
func (u Utterance) Len() int { return len(u.Frames) }

// SampleRate returns the sample rate of the first frame, or 0 for an empty
// utterance.
func (u Utterance) SampleRate() int {
	if len(u.Frames) == 0 {
		return 0
	}
	return u.Frames[0].SampleRate
}

// Duration returns the summed duration of all frames.
func (u Utterance) Duration() time.Duration {
	var d time.Duration
	for _, f := range u.Frames {
		d += f.Duration()
	}
	return d
}

// Samples concatenates every frame into a single freshly allocated slice.
func (u Utterance) Samples() []int16 {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Clip is decoded mono PCM ready for playback.
type Clip struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	return SamplesDuration(len(c.Samples), c.SampleRate)
}

// FrameSource captures microphone audio.
//
// NextFrame blocks until exactly d of audio has been captured. Consecutive
// calls must return contiguous audio: no samples may be dropped between the
// end of one frame and the start of the next.
//
// Implementations must be safe for use by one caller at a time; the
// appliance never reads a source from two goroutines concurrently.
type FrameSource interface {
	NextFrame(ctx context.Context, d time.Duration) (Frame, error)

	// SampleRate reports the fixed capture rate in Hz.
	SampleRate() int
}

// Flusher is implemented by live sources that buffer input while nobody
// reads. Flush discards that backlog so the next frame starts now.
type Flusher interface {
	Flush() error
}

// Sink plays PCM through an output device.
//
// Write blocks until the chunk has been handed to the device, which for a
// blocking device means roughly the chunk's playback time. Callers that need
// to interrupt playback do so between chunks.
type Sink interface {
	Write(ctx context.Context, samples []int16, sampleRate int) error
	Close() error
}

// SamplesFor returns the number of samples covering d at rate.
func SamplesFor(d time.Duration, rate int) int {
	return int(int64(d) * int64(rate) / int64(time.Second))
}

// SamplesDuration is the inverse of [SamplesFor].
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}
