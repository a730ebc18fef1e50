// Package portaudio implements [audio.FrameSource] and [audio.Sink] on the
// default PortAudio input and output devices.
//
// Both types hold a PortAudio initialisation reference for their lifetime and
// release it in Close, so a Source and a Sink can be opened independently.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/echochamber/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.FrameSource = (*Source)(nil)
	_ audio.Sink        = (*Sink)(nil)
)

const defaultFramesPerBuffer = 1024

// ─── Source ───────────────────────────────────────────────────────────────────

// Source reads mono 16-bit audio from the default input device. The stream is
// started once in [NewSource] and kept running, so back-to-back NextFrame
// calls return contiguous audio. Samples left over from a device buffer are
// carried into the next frame.
type Source struct {
	mu      sync.Mutex
	rate    int
	stream  *portaudio.Stream
	buf     []int16
	pending []int16
	closed  bool
}

// SourceOption configures a [Source].
type SourceOption func(*sourceConfig)

type sourceConfig struct {
	framesPerBuffer int
}

// WithFramesPerBuffer sets the device buffer size in samples.
func WithFramesPerBuffer(n int) SourceOption {
	return func(c *sourceConfig) {
		if n > 0 {
			c.framesPerBuffer = n
		}
	}
}

// NewSource opens and starts the default input device at sampleRate.
func NewSource(sampleRate int, opts ...SourceOption) (*Source, error) {
	cfg := sourceConfig{framesPerBuffer: defaultFramesPerBuffer}
	for _, o := range opts {
		o(&cfg)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialise: %w", err)
	}

	s := &Source{rate: sampleRate, buf: make([]int16, cfg.framesPerBuffer)}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(s.buf), s.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: start input stream: %w", err)
	}
	s.stream = stream
	return s, nil
}

// SampleRate implements [audio.FrameSource].
func (s *Source) SampleRate() int { return s.rate }

// NextFrame implements [audio.FrameSource].
func (s *Source) NextFrame(ctx context.Context, d time.Duration) (audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.Frame{}, audio.ErrSourceClosed
	}

	n := audio.SamplesFor(d, s.rate)
	out := make([]int16, 0, n)
	take := min(n, len(s.pending))
	out = append(out, s.pending[:take]...)
	s.pending = s.pending[take:]

	for len(out) < n {
		if err := ctx.Err(); err != nil {
			return audio.Frame{}, err
		}
		if err := s.stream.Read(); err != nil {
			if !errors.Is(err, portaudio.InputOverflowed) {
				return audio.Frame{}, fmt.Errorf("portaudio: read: %w", err)
			}
			slog.Debug("portaudio: input overflowed")
		}
		need := n - len(out)
		if need >= len(s.buf) {
			out = append(out, s.buf...)
			continue
		}
		out = append(out, s.buf[:need]...)
		s.pending = append(s.pending[:0], s.buf[need:]...)
	}
	return audio.Frame{Samples: out, SampleRate: s.rate}, nil
}

// Flush implements [audio.Flusher]. It drops the carried-over samples and
// reads every whole buffer the device has queued since the last NextFrame.
func (s *Source) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrSourceClosed
	}
	s.pending = s.pending[:0]

	dropped := 0
	for {
		n, err := s.stream.AvailableToRead()
		if err != nil {
			return fmt.Errorf("portaudio: flush: %w", err)
		}
		if n < len(s.buf) {
			break
		}
		if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			return fmt.Errorf("portaudio: flush: %w", err)
		}
		dropped += len(s.buf)
	}
	if dropped > 0 {
		slog.Debug("portaudio: flushed input", "samples", dropped)
	}
	return nil
}

// Close stops the input stream and releases the device. Subsequent NextFrame
// calls return [audio.ErrSourceClosed].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return closeStream(s.stream)
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink writes mono 16-bit audio to the default output device. The stream is
// opened lazily on the first Write and re-opened whenever the sample rate of
// the incoming audio changes.
type Sink struct {
	mu              sync.Mutex
	framesPerBuffer int
	stream          *portaudio.Stream
	rate            int
	buf             []int16
	closed          bool
}

// NewSink prepares the output side. framesPerBuffer ≤ 0 selects the default.
func NewSink(framesPerBuffer int) (*Sink, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = defaultFramesPerBuffer
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialise: %w", err)
	}
	return &Sink{framesPerBuffer: framesPerBuffer}, nil
}

// Write implements [audio.Sink]. The final partial device buffer is padded
// with silence.
func (s *Sink) Write(ctx context.Context, samples []int16, sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("portaudio: sink closed")
	}
	if err := s.ensureStream(sampleRate); err != nil {
		return err
	}

	for off := 0; off < len(samples); off += len(s.buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(s.buf, samples[off:])
		clear(s.buf[n:])
		if err := s.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

func (s *Sink) ensureStream(rate int) error {
	if s.stream != nil && s.rate == rate {
		return nil
	}
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			slog.Warn("portaudio: stop output stream", "err", err)
		}
		if err := s.stream.Close(); err != nil {
			slog.Warn("portaudio: close output stream", "err", err)
		}
		s.stream = nil
	}

	s.buf = make([]int16, s.framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(rate), len(s.buf), s.buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output stream at %d Hz: %w", rate, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}
	s.stream = stream
	s.rate = rate
	return nil
}

// Close implements [audio.Sink]. It stops any open stream and releases the
// PortAudio reference.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return closeStream(s.stream)
}

func closeStream(stream *portaudio.Stream) error {
	var errs []error
	if stream != nil {
		if err := stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: stop: %w", err))
		}
		if err := stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: close: %w", err))
		}
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
	}
	return errors.Join(errs...)
}
