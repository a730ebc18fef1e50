// Package session runs the appliance's turn-taking state machine.
//
// The [Coordinator] alternates between two phases. In the ambient phase the
// background player runs and live audio is polled for a voice; the first
// triggering frame pauses the player and starts the interactive phase, which
// records an utterance, transcribes it, generates a reply, speaks it and plays
// the acknowledgement clip. Every turn ends back in the ambient phase, whatever
// failed along the way.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/echochamber/internal/archive"
	"github.com/MrWong99/echochamber/internal/capture"
	"github.com/MrWong99/echochamber/internal/observe"
	"github.com/MrWong99/echochamber/pkg/actuator"
	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/MrWong99/echochamber/pkg/provider/llm"
	"github.com/MrWong99/echochamber/pkg/provider/stt"
	"github.com/MrWong99/echochamber/pkg/provider/tts"
	"github.com/MrWong99/echochamber/pkg/provider/vad"
)

// DefaultPollFrame is the frame length used while listening for a voice.
const DefaultPollFrame = 500 * time.Millisecond

// Poll retry defaults. A source that keeps failing past the retries ends Run.
const (
	DefaultPollRetries    = 3
	DefaultPollRetryDelay = 500 * time.Millisecond
)

// ErrGeneration marks a turn aborted because no reply could be generated.
var ErrGeneration = errors.New("session: generation failed")

// Player is the part of the background player the coordinator drives.
type Player interface {
	Pause()
	Resume()
	Stop()
}

// Archive stores captured utterances and spoken replies.
type Archive interface {
	SaveUtterance(ctx context.Context, utt audio.Utterance) (string, error)
	SaveReply(ctx context.Context, clip audio.Clip) (string, error)
}

// Journal records finished turns.
type Journal interface {
	RecordTurn(ctx context.Context, t archive.Turn) error
}

// Persona is the fixed framing sent with every generation request.
type Persona struct {
	// Instruction is the system prompt.
	Instruction string

	// PromptPrefix is prepended to the transcript.
	PromptPrefix string
}

// ProviderNames labels metrics, spans and journal rows.
type ProviderNames struct {
	STT, LLM, TTS string
}

// Config wires a [Coordinator]. Source, Sink, Player, Detector, Transcriber,
// Generator and Synthesizer are required.
type Config struct {
	Source      audio.FrameSource
	Sink        audio.Sink
	Player      Player
	Detector    *vad.Detector
	Transcriber stt.Provider
	Generator   llm.Provider
	Synthesizer tts.Provider

	// Actuator defaults to [actuator.Nop].
	Actuator actuator.Actuator

	// Archive and Journal are optional.
	Archive Archive
	Journal Journal

	Persona   Persona
	Providers ProviderNames

	// AckClip is played after every reply. Empty disables it.
	AckClip string

	PollFrame time.Duration

	// PollRetries is how many consecutive read failures poll tolerates
	// before giving up, waiting PollRetryDelay between attempts. Zero means
	// DefaultPollRetries; negative disables retrying.
	PollRetries    int
	PollRetryDelay time.Duration

	Capture      capture.SilenceParams
	ChunkSamples int

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Coordinator is the top-level state machine. Run it from one goroutine.
type Coordinator struct {
	cfg     Config
	engine  *capture.Engine
	act     actuator.Actuator
	metrics *observe.Metrics
	log     *slog.Logger
}

// NewCoordinator validates cfg and fills in defaults.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	var errs []error
	required := []struct {
		name  string
		unset bool
	}{
		{"source", cfg.Source == nil},
		{"sink", cfg.Sink == nil},
		{"player", cfg.Player == nil},
		{"detector", cfg.Detector == nil},
		{"transcriber", cfg.Transcriber == nil},
		{"generator", cfg.Generator == nil},
		{"synthesizer", cfg.Synthesizer == nil},
	}
	for _, r := range required {
		if r.unset {
			errs = append(errs, fmt.Errorf("session: %s is required", r.name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.PollFrame <= 0 {
		cfg.PollFrame = DefaultPollFrame
	}
	switch {
	case cfg.PollRetries == 0:
		cfg.PollRetries = DefaultPollRetries
	case cfg.PollRetries < 0:
		cfg.PollRetries = 0
	}
	if cfg.PollRetryDelay <= 0 {
		cfg.PollRetryDelay = DefaultPollRetryDelay
	}
	c := &Coordinator{
		cfg:     cfg,
		engine:  capture.New(cfg.Source, cfg.Detector),
		act:     cfg.Actuator,
		metrics: cfg.Metrics,
		log:     slog.With("component", "session"),
	}
	if c.act == nil {
		c.act = actuator.Nop{}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Run alternates ambient and interactive phases until ctx is cancelled or the
// frame source closes, then stops the player and leaves the actuator in
// ambient mode. A cancelled turn is dropped. Run returns nil on those clean
// exits and the polling error once retries are exhausted.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.cfg.Player.Stop()
	c.log.Info("session started",
		"threshold", c.cfg.Detector.Threshold(),
		"poll_frame", c.cfg.PollFrame,
		"silence_frames", c.cfg.Capture.SilenceFrames(),
	)

	for {
		c.cfg.Player.Resume()
		c.signal(ctx, actuator.Ambient)
		c.flush()

		seed, err := c.poll(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, audio.ErrSourceClosed) {
				c.log.Info("session stopped")
				return nil
			}
			return err
		}

		c.signal(ctx, actuator.Interactive)
		_, _ = c.turn(ctx, func(ctx context.Context) (audio.Utterance, error) {
			return c.engine.UntilSilence(ctx, &seed, c.cfg.Capture)
		})
		if ctx.Err() != nil {
			c.signal(ctx, actuator.Ambient)
			c.log.Info("session stopped")
			return nil
		}
	}
}

// flush drops audio the source buffered during the last turn so that the
// reply and the user's own tail do not re-trigger the detector.
func (c *Coordinator) flush() {
	f, ok := c.cfg.Source.(audio.Flusher)
	if !ok {
		return
	}
	if err := f.Flush(); err != nil {
		c.log.Warn("session: flush source failed", "err", err)
	}
}

// poll fetches frames until one triggers the detector, pauses the player and
// returns that frame. Read failures are retried up to PollRetries times in a
// row; a closed source is not.
func (c *Coordinator) poll(ctx context.Context) (audio.Frame, error) {
	failures := 0
	for {
		f, err := c.cfg.Source.NextFrame(ctx, c.cfg.PollFrame)
		if err != nil {
			if ctx.Err() != nil {
				return audio.Frame{}, ctx.Err()
			}
			if errors.Is(err, audio.ErrSourceClosed) || failures >= c.cfg.PollRetries {
				return audio.Frame{}, fmt.Errorf("session: poll: %w", err)
			}
			failures++
			c.log.Warn("session: poll failed, retrying", "attempt", failures, "err", err)
			select {
			case <-ctx.Done():
				return audio.Frame{}, ctx.Err()
			case <-time.After(c.cfg.PollRetryDelay):
			}
			continue
		}
		failures = 0
		if c.log.Enabled(ctx, slog.LevelDebug) {
			c.log.Debug("mic level", "energy", vad.Energy(f), "threshold", c.cfg.Detector.Threshold())
		}
		if c.cfg.Detector.Detect(f) {
			c.cfg.Player.Pause()
			c.metrics.RecordVADTrigger(ctx)
			return f, nil
		}
	}
}

// RunOnce runs a single turn over a fixed-length recording of d, without
// waiting for a voice. The player is paused for the turn and resumed after.
func (c *Coordinator) RunOnce(ctx context.Context, d time.Duration) (archive.Turn, error) {
	c.cfg.Player.Pause()
	c.signal(ctx, actuator.Interactive)
	defer func() {
		c.cfg.Player.Resume()
		c.signal(ctx, actuator.Ambient)
	}()
	return c.turn(ctx, func(ctx context.Context) (audio.Utterance, error) {
		return c.engine.Bounded(ctx, nil, d, c.cfg.Capture.Frame)
	})
}

// Respond generates and speaks a reply to typed text, skipping capture and
// transcription.
func (c *Coordinator) Respond(ctx context.Context, text string) (string, error) {
	c.cfg.Player.Pause()
	c.signal(ctx, actuator.Interactive)
	defer func() {
		c.cfg.Player.Resume()
		c.signal(ctx, actuator.Ambient)
	}()

	t := archive.Turn{StartedAt: time.Now(), Transcript: text}
	c.reply(ctx, c.log, &t)
	c.finish(ctx, &t)
	switch t.Outcome {
	case observe.OutcomeCancelled:
		return "", ctx.Err()
	case observe.OutcomeGenFailed:
		return "", fmt.Errorf("%w: %s", ErrGeneration, t.Error)
	}
	return t.Reply, nil
}

// turn captures with record and runs the rest of the pipeline. It always
// returns the turn summary; the error is non-nil for capture and generation
// failures.
func (c *Coordinator) turn(ctx context.Context, record func(context.Context) (audio.Utterance, error)) (archive.Turn, error) {
	ctx, span := observe.StartSpan(ctx, "echochamber.turn")
	defer span.End()
	log := observe.Logger(ctx).With("component", "session")

	t := archive.Turn{StartedAt: time.Now()}

	start := time.Now()
	utt, err := record(ctx)
	if err != nil {
		t.Outcome = observe.OutcomeCaptureFailed
		t.Error = err.Error()
		log.Warn("session: capture failed", "err", err)
		c.finish(ctx, &t)
		return t, err
	}
	c.metrics.RecordCapture(ctx, time.Since(start))
	log.Info("utterance captured", "duration", utt.Duration(), "frames", utt.Len())

	if c.cfg.Archive != nil {
		path, err := c.cfg.Archive.SaveUtterance(ctx, utt)
		if err != nil {
			log.Warn("session: archive utterance failed", "err", err)
		}
		t.UtterancePath = path
	}

	t.Transcript = c.transcribe(ctx, log, utt)
	c.reply(ctx, log, &t)
	c.finish(ctx, &t)
	if t.Outcome == observe.OutcomeGenFailed {
		return t, ErrGeneration
	}
	return t, nil
}

// transcribe never fails the turn: errors degrade to an empty transcript.
func (c *Coordinator) transcribe(ctx context.Context, log *slog.Logger, utt audio.Utterance) string {
	ctx, span := observe.StartStageSpan(ctx, "stt", c.cfg.Providers.STT)
	defer span.End()

	start := time.Now()
	text, err := c.cfg.Transcriber.Transcribe(ctx, utt)
	c.metrics.RecordProviderRequest(ctx, c.cfg.Providers.STT, "stt", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		log.Warn("session: transcription failed", "provider", c.cfg.Providers.STT, "err", err)
		return ""
	}
	log.Info("transcribed", "text", text)
	return text
}

// reply runs generation, synthesis, playback and the ack clip, filling t.
func (c *Coordinator) reply(ctx context.Context, log *slog.Logger, t *archive.Turn) {
	t.STTProvider, t.LLMProvider, t.TTSProvider = c.cfg.Providers.STT, c.cfg.Providers.LLM, c.cfg.Providers.TTS

	text, err := c.generate(ctx, t.Transcript)
	if err != nil {
		t.Outcome = observe.OutcomeGenFailed
		t.Error = err.Error()
		log.Error("session: generation failed, back to ambient", "provider", c.cfg.Providers.LLM, "err", err)
		return
	}
	t.Reply = text
	t.Outcome = observe.OutcomeSpoken
	log.Info("reply generated", "text", text)

	if err := c.speak(ctx, log, t); err != nil {
		t.Error = err.Error()
		log.Warn("session: speaking reply failed", "provider", c.cfg.Providers.TTS, "err", err)
	}

	if c.cfg.AckClip != "" && ctx.Err() == nil {
		if err := c.playFile(ctx, c.cfg.AckClip); err != nil {
			log.Warn("session: ack clip failed", "path", c.cfg.AckClip, "err", err)
		}
	}
}

func (c *Coordinator) generate(ctx context.Context, transcript string) (string, error) {
	ctx, span := observe.StartStageSpan(ctx, "llm", c.cfg.Providers.LLM)
	defer span.End()

	start := time.Now()
	text, err := c.cfg.Generator.Generate(ctx, c.cfg.Persona.Instruction, c.cfg.Persona.PromptPrefix+transcript)
	c.metrics.RecordProviderRequest(ctx, c.cfg.Providers.LLM, "llm", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return text, nil
}

func (c *Coordinator) speak(ctx context.Context, log *slog.Logger, t *archive.Turn) error {
	sctx, span := observe.StartStageSpan(ctx, "tts", c.cfg.Providers.TTS)
	start := time.Now()
	clip, err := c.cfg.Synthesizer.Synthesize(sctx, t.Reply)
	c.metrics.RecordProviderRequest(sctx, c.cfg.Providers.TTS, "tts", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	if err != nil {
		return err
	}

	if c.cfg.Archive != nil {
		path, err := c.cfg.Archive.SaveReply(ctx, clip)
		if err != nil {
			log.Warn("session: archive reply failed", "err", err)
		}
		t.ReplyPath = path
	}
	return audio.Play(ctx, c.cfg.Sink, clip, c.cfg.ChunkSamples)
}

func (c *Coordinator) playFile(ctx context.Context, path string) error {
	clip, err := audio.LoadClip(path)
	if err != nil {
		return err
	}
	if err := audio.Play(ctx, c.cfg.Sink, clip, c.cfg.ChunkSamples); err != nil {
		return err
	}
	c.metrics.RecordClip(ctx, "ack")
	return nil
}

// finish records metrics and the journal row. Cancelled turns are counted but
// not journaled.
func (c *Coordinator) finish(ctx context.Context, t *archive.Turn) {
	t.Duration = time.Since(t.StartedAt)
	if ctx.Err() != nil {
		t.Outcome = observe.OutcomeCancelled
		c.metrics.RecordTurn(context.WithoutCancel(ctx), t.Outcome, t.Duration)
		return
	}
	c.metrics.RecordTurn(ctx, t.Outcome, t.Duration)
	if c.cfg.Journal == nil {
		return
	}
	if err := c.cfg.Journal.RecordTurn(ctx, *t); err != nil {
		c.log.Warn("session: journal failed", "err", err)
	}
}

// signal sends m to the actuator. Failures are logged, never returned.
func (c *Coordinator) signal(ctx context.Context, m actuator.Mode) {
	err := c.act.SignalMode(context.WithoutCancel(ctx), m)
	c.metrics.RecordModeSignal(ctx, m.String(), err)
	if err != nil {
		c.log.Warn("session: mode signal failed", "mode", m, "err", err)
	}
}
