// Package app wires the echochamber subsystems into a running appliance.
//
// New opens the audio devices and the actuator, scans the clip library and
// assembles the session coordinator; Run drives the coordinator, the config
// watcher and the HTTP probe server under one errgroup; Shutdown closes
// devices and stores in reverse order.
//
// Tests inject fakes for the hardware-facing parts via functional options
// (WithSource, WithSink, WithActuator, WithJournal). Anything not injected is
// built from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/echochamber/internal/archive"
	"github.com/MrWong99/echochamber/internal/capture"
	"github.com/MrWong99/echochamber/internal/config"
	"github.com/MrWong99/echochamber/internal/health"
	"github.com/MrWong99/echochamber/internal/observe"
	"github.com/MrWong99/echochamber/internal/player"
	"github.com/MrWong99/echochamber/internal/session"
	"github.com/MrWong99/echochamber/pkg/actuator"
	"github.com/MrWong99/echochamber/pkg/actuator/serial"
	"github.com/MrWong99/echochamber/pkg/audio"
	"github.com/MrWong99/echochamber/pkg/audio/portaudio"
	"github.com/MrWong99/echochamber/pkg/provider/llm"
	"github.com/MrWong99/echochamber/pkg/provider/stt"
	"github.com/MrWong99/echochamber/pkg/provider/tts"
	"github.com/MrWong99/echochamber/pkg/provider/vad"
)

// shutdownGrace bounds the HTTP server drain.
const shutdownGrace = 5 * time.Second

// Providers holds the three pipeline services, usually fallback chains built
// by main from the config registry. Names labels metrics and journal rows.
type Providers struct {
	STT   stt.Provider
	LLM   llm.Provider
	TTS   tts.Provider
	Names session.ProviderNames
}

// Journal is what App needs from the turn journal.
type Journal interface {
	session.Journal
	health.Pinger
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	source   audio.FrameSource
	sink     audio.Sink
	act      actuator.Actuator
	journal  Journal
	metrics  *observe.Metrics
	logLevel *slog.LevelVar

	configPath    string
	watchInterval time.Duration

	detector *vad.Detector
	library  *player.Library
	player   *player.Player
	coord    *session.Coordinator
	watcher  *config.Watcher
	server   *http.Server
	listener net.Listener

	// closers run in reverse registration order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects the microphone instead of opening PortAudio.
func WithSource(s audio.FrameSource) Option {
	return func(a *App) { a.source = s }
}

// WithSink injects the speaker instead of opening PortAudio.
func WithSink(s audio.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithActuator injects the mode-signal device instead of opening it from config.
func WithActuator(act actuator.Actuator) Option {
	return func(a *App) { a.act = act }
}

// WithJournal injects the turn journal instead of connecting to PostgreSQL.
func WithJournal(j Journal) Option {
	return func(a *App) { a.journal = j }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets config reloads change the level of the installed logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithConfigWatch watches path and applies hot-reloadable changes while Run
// is active. interval <= 0 selects [config.DefaultWatchInterval].
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.configPath = path
		a.watchInterval = interval
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App. On error everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (_ *App, err error) {
	if providers == nil || providers.STT == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, errors.New("app: stt, llm and tts providers are required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	defer func() {
		if err != nil {
			_ = a.Shutdown(context.Background())
		}
	}()

	// ── 1. Clip library ──────────────────────────────────────────────────
	s := cfg.Session
	a.library, err = player.ScanLibrary(s.ClipDir, s.UserSoundsDir, s.AckClip)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 2. Audio devices ─────────────────────────────────────────────────
	if err := a.initAudio(); err != nil {
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 3. Actuator ──────────────────────────────────────────────────────
	if err := a.initActuator(ctx); err != nil {
		return nil, fmt.Errorf("app: init actuator: %w", err)
	}

	// ── 4. Archive + journal ─────────────────────────────────────────────
	dir, err := archive.NewDir(s.UserSoundsDir, s.AnswersDir)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 5. Player + coordinator ──────────────────────────────────────────
	a.player, err = player.New(a.library, a.sink, s.AckClip,
		player.WithChunkSamples(s.ChunkSamples),
		player.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.detector = vad.NewDetector(s.Threshold)

	coordCfg := session.Config{
		Source:      a.source,
		Sink:        a.sink,
		Player:      a.player,
		Detector:    a.detector,
		Transcriber: providers.STT,
		Generator:   providers.LLM,
		Synthesizer: providers.TTS,
		Actuator:    a.act,
		Archive:     dir,
		Persona: session.Persona{
			Instruction:  cfg.Persona.Instruction,
			PromptPrefix: cfg.Persona.PromptPrefix,
		},
		Providers: providers.Names,
		AckClip:   s.AckClip,
		PollFrame: s.PollFrame(),
		Capture: capture.SilenceParams{
			Frame:   s.CaptureFrame(),
			Silence: s.SilenceDuration(),
			Max:     s.MaxRecord(),
		},
		ChunkSamples: s.ChunkSamples,
		Metrics:      a.metrics,
	}
	if a.journal != nil {
		coordCfg.Journal = a.journal
	}
	a.coord, err = session.NewCoordinator(coordCfg)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 6. Config watcher + HTTP ─────────────────────────────────────────
	if a.configPath != "" {
		a.watcher, err = config.NewWatcher(a.configPath, a.applyConfig, config.WithInterval(a.watchInterval))
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}
	if err := a.initHTTP(); err != nil {
		return nil, fmt.Errorf("app: init http: %w", err)
	}

	slog.Info("app: ready",
		"statements", a.library.Size(),
		"stt", providers.Names.STT,
		"llm", providers.Names.LLM,
		"tts", providers.Names.TTS,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initAudio() error {
	fpb := a.cfg.Audio.FramesPerBuffer
	if a.source == nil {
		src, err := portaudio.NewSource(a.cfg.Session.SampleRate, portaudio.WithFramesPerBuffer(fpb))
		if err != nil {
			return err
		}
		a.source = src
		a.closers = append(a.closers, src.Close)
	}
	if a.sink == nil {
		sink, err := portaudio.NewSink(fpb)
		if err != nil {
			return err
		}
		a.sink = sink
		a.closers = append(a.closers, sink.Close)
	}
	return nil
}

func (a *App) initActuator(ctx context.Context) error {
	if a.act != nil {
		return nil
	}
	ac := a.cfg.Actuator
	if ac.Name != "serial" {
		a.act = actuator.Nop{}
		return nil
	}
	act, err := serial.Open(ctx, ac.Port,
		serial.WithBaudRate(ac.Baud),
		serial.WithResetDelay(ac.ResetDelay()),
	)
	if err != nil {
		return err
	}
	a.act = act
	a.closers = append(a.closers, act.Close)
	return nil
}

func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil || a.cfg.Archive.PostgresDSN == "" {
		return nil
	}
	j, err := archive.NewJournal(ctx, a.cfg.Archive.PostgresDSN)
	if err != nil {
		return err
	}
	a.journal = j
	a.closers = append(a.closers, func() error {
		j.Close()
		return nil
	})
	return nil
}

func (a *App) initHTTP() error {
	if a.cfg.ListenAddr == "" {
		return nil
	}
	checks := []health.Checker{
		health.PlayerRunning(func() string { return a.player.State().String() }),
		health.LibraryNonEmpty(a.library.Size),
	}
	if a.journal != nil {
		checks = append(checks, health.Journal(a.journal))
	}

	mux := http.NewServeMux()
	health.New(checks).Register(mux)

	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return err
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the background player and blocks until ctx is cancelled, the
// microphone closes or a component fails. It returns nil on a clean exit.
func (a *App) Run(ctx context.Context) error {
	if err := a.player.Start(); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The coordinator ending (source closed) ends the app.
		defer cancel()
		return a.coord.Run(gctx)
	})

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	if a.server != nil {
		g.Go(func() error {
			slog.Info("app: http listening", "addr", a.listener.Addr().String())
			if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
			defer scancel()
			return a.server.Shutdown(sctx)
		})
	}

	slog.Info("app: running")
	return g.Wait()
}

// RunOnce records one fixed-duration utterance and answers it, without
// starting the background player.
func (a *App) RunOnce(ctx context.Context, d time.Duration) (archive.Turn, error) {
	return a.coord.RunOnce(ctx, d)
}

// Say answers a typed statement and returns the reply text.
func (a *App) Say(ctx context.Context, text string) (string, error) {
	return a.coord.Respond(ctx, text)
}

// Addr returns the HTTP listen address, or "" when HTTP is disabled.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Threshold returns the live VAD threshold.
func (a *App) Threshold() float64 {
	return a.detector.Threshold()
}

// breakerResetter is implemented by the provider fallback chains.
type breakerResetter interface {
	ResetBreakers()
}

// Reload closes every provider circuit breaker and re-reads the watched
// config file. Without [WithConfigWatch] only the breakers are reset.
func (a *App) Reload() error {
	for _, p := range []any{a.providers.STT, a.providers.LLM, a.providers.TTS} {
		if r, ok := p.(breakerResetter); ok {
			r.ResetBreakers()
		}
	}
	slog.Info("app: provider breakers reset")
	if a.watcher == nil {
		return nil
	}
	if _, err := a.watcher.Reload(); err != nil && !errors.Is(err, config.ErrUnchanged) {
		return fmt.Errorf("app: reload: %w", err)
	}
	return nil
}

// applyConfig is the watcher callback.
func (a *App) applyConfig(_ *config.Config, d config.ConfigDiff) {
	if d.ThresholdChanged {
		a.detector.SetThreshold(d.NewThreshold)
		slog.Info("app: threshold updated", "threshold", d.NewThreshold)
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("app: log level updated", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: config changes need a restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the player and closes devices and stores in reverse-open
// order. If ctx expires first, remaining closers are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))

		if a.player != nil {
			a.player.Stop()
		}
		if a.server != nil {
			_ = a.server.Close()
			_ = a.listener.Close()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}
