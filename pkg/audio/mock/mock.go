// Package mock provides scripted implementations of [audio.FrameSource] and
// [audio.Sink] for use in unit tests.
//
// Both mocks are safe for concurrent use and record every call so tests can
// assert on what the code under test asked for.
//
// Typical usage:
//
//	src := mock.NewSource(16000,
//	    mock.FrameWithEnergy(16000, 100*time.Millisecond, 0.01),
//	    mock.FrameWithEnergy(16000, 100*time.Millisecond, 0.0001),
//	)
//	f, err := src.NextFrame(ctx, 100*time.Millisecond)
package mock

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/echochamber/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source replays a fixed script of frames. Once the script is exhausted,
// NextFrame returns [audio.ErrSourceClosed], or blocks until ctx is done if
// BlockWhenDone is set.
type Source struct {
	mu     sync.Mutex
	rate   int
	frames []audio.Frame
	pos    int

	// BlockWhenDone makes NextFrame wait for ctx cancellation instead of
	// returning ErrSourceClosed after the last scripted frame.
	BlockWhenDone bool

	// ErrAt, when non-nil, is returned by the call with index ErrIndex
	// (zero-based) instead of a frame, and by the ErrRepeat calls after it.
	ErrAt     error
	ErrIndex  int
	ErrRepeat int

	// Requested records the duration passed to every NextFrame call.
	Requested []time.Duration

	flushes int
}

// NewSource returns a Source producing frames at rate.
func NewSource(rate int, frames ...audio.Frame) *Source {
	return &Source{rate: rate, frames: frames, ErrIndex: -1}
}

// Append adds frames to the end of the script.
func (s *Source) Append(frames ...audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frames...)
}

// NextFrame implements [audio.FrameSource]. The requested duration is
// recorded but the scripted frame is returned as-is.
func (s *Source) NextFrame(ctx context.Context, d time.Duration) (audio.Frame, error) {
	s.mu.Lock()
	call := len(s.Requested)
	s.Requested = append(s.Requested, d)
	if s.ErrAt != nil && call >= s.ErrIndex && call <= s.ErrIndex+s.ErrRepeat {
		s.mu.Unlock()
		return audio.Frame{}, s.ErrAt
	}
	if s.pos < len(s.frames) {
		f := s.frames[s.pos]
		s.pos++
		s.mu.Unlock()
		return f, nil
	}
	block := s.BlockWhenDone
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return audio.Frame{}, ctx.Err()
	}
	return audio.Frame{}, audio.ErrSourceClosed
}

// SampleRate implements [audio.FrameSource].
func (s *Source) SampleRate() int { return s.rate }

// Flush implements [audio.Flusher]. Scripted frames are kept; only the call
// is counted.
func (s *Source) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

// Flushes returns the number of Flush calls made so far.
func (s *Source) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Calls returns the number of NextFrame calls made so far.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requested)
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Chunk is one recorded [Sink.Write] call.
type Chunk struct {
	Samples    []int16
	SampleRate int
	At         time.Time
}

// Sink records every chunk written to it.
type Sink struct {
	mu     sync.Mutex
	chunks []Chunk
	closed bool

	// Delay, when positive, makes every Write sleep to imitate a blocking
	// device.
	Delay time.Duration

	// WriteErr is returned by Write when non-nil.
	WriteErr error

	// CloseCalls counts Close invocations.
	CloseCalls int
}

// Write implements [audio.Sink].
func (s *Sink) Write(ctx context.Context, samples []int16, sampleRate int) error {
	s.mu.Lock()
	delay, werr := s.Delay, s.WriteErr
	s.mu.Unlock()
	if werr != nil {
		return werr
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	cp := make([]int16, len(samples))
	copy(cp, samples)
	s.mu.Lock()
	s.chunks = append(s.chunks, Chunk{Samples: cp, SampleRate: sampleRate, At: time.Now()})
	s.mu.Unlock()
	return nil
}

// Close implements [audio.Sink].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.CloseCalls++
	return nil
}

// Chunks returns a snapshot of all recorded chunks.
func (s *Sink) Chunks() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Count returns the number of chunks written so far.
func (s *Sink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Samples returns every written sample in order.
func (s *Sink) Samples() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int16
	for _, c := range s.chunks {
		out = append(out, c.Samples...)
	}
	return out
}

// Reset clears recorded chunks.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
}

// ─── Frame helpers ────────────────────────────────────────────────────────────

// Silence returns an all-zero frame of duration d.
func Silence(rate int, d time.Duration) audio.Frame {
	return audio.Frame{Samples: make([]int16, audio.SamplesFor(d, rate)), SampleRate: rate}
}

// FrameWithEnergy returns a constant-amplitude frame whose energy (L2 norm of
// normalised samples divided by sample count) is approximately energy.
func FrameWithEnergy(rate int, d time.Duration, energy float64) audio.Frame {
	n := audio.SamplesFor(d, rate)
	amp := energy * math.Sqrt(float64(n)) * 32768
	if amp > 32767 {
		amp = 32767
	}
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(math.Round(amp))
	}
	return audio.Frame{Samples: samples, SampleRate: rate}
}

// Sine returns a sine wave frame of the given frequency and peak amplitude
// (0–1).
func Sine(rate int, d time.Duration, freq, amplitude float64) audio.Frame {
	n := audio.SamplesFor(d, rate)
	samples := make([]int16, n)
	for i := range samples {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		samples[i] = int16(v * 32767)
	}
	return audio.Frame{Samples: samples, SampleRate: rate}
}
