// Package player implements the background statement player: while the
// appliance is in ambient mode it plays random statement clips, each followed
// by the acknowledgement clip, until it is paused for an interactive turn.
//
// All state transitions go through [Player.Start], [Player.Pause],
// [Player.Resume] and [Player.Stop]. Pause is synchronous: when it returns the
// playback goroutine has observed the pause and will not write another chunk
// to the sink until [Player.Resume].
package player

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/MrWong99/echochamber/internal/observe"
	"github.com/MrWong99/echochamber/pkg/audio"
)

// DefaultRetryInterval is how long the loop waits before reselecting after a
// clip failed to load or the library was empty.
const DefaultRetryInterval = time.Second

// State is the playback state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyStarted is returned by a second call to [Player.Start].
	ErrAlreadyStarted = errors.New("player: already started")

	// ErrStopped is returned by [Player.Start] after [Player.Stop].
	ErrStopped = errors.New("player: stopped")
)

// Option configures a [Player].
type Option func(*Player)

// WithChunkSamples sets the number of samples written per sink call. State is
// checked between chunks, so this bounds the pause latency.
func WithChunkSamples(n int) Option {
	return func(p *Player) {
		if n > 0 {
			p.chunk = n
		}
	}
}

// WithRetryInterval overrides [DefaultRetryInterval].
func WithRetryInterval(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.retry = d
		}
	}
}

// WithRand sets the random source used to pick clips.
func WithRand(r *rand.Rand) Option {
	return func(p *Player) {
		if r != nil {
			p.rng = r
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Player) {
		if m != nil {
			p.metrics = m
		}
	}
}

// Player plays ambient clips in a background goroutine.
type Player struct {
	lib     *Library
	sink    audio.Sink
	ackClip string
	chunk   int
	retry   time.Duration
	rng     *rand.Rand
	metrics *observe.Metrics

	mu      sync.Mutex
	state   State
	started bool
	stopped bool
	// ack is closed by the loop once it observes a state other than
	// Playing. Non-nil only while a Pause is waiting.
	ack chan struct{}

	wake   chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a stopped Player. It fails with [ErrNoStatements] when lib has
// no statement clips.
func New(lib *Library, sink audio.Sink, ackClip string, opts ...Option) (*Player, error) {
	if lib == nil || len(lib.statements) == 0 {
		return nil, ErrNoStatements
	}
	if sink == nil {
		return nil, errors.New("player: sink is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		lib:     lib,
		sink:    sink,
		ackClip: ackClip,
		chunk:   audio.DefaultChunkSamples,
		retry:   DefaultRetryInterval,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// Start moves Stopped→Playing and launches the playback goroutine.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.stopped:
		return ErrStopped
	case p.started:
		return ErrAlreadyStarted
	}
	p.started = true
	p.state = Playing
	go p.loop()
	return nil
}

// Pause moves Playing→Paused and blocks until the playback goroutine has
// acknowledged it. At most the chunk being written at call time completes.
// It is a no-op in any other state.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.state != Playing {
		p.mu.Unlock()
		return
	}
	p.state = Paused
	if p.ack == nil {
		p.ack = make(chan struct{})
	}
	ack := p.ack
	p.mu.Unlock()

	p.signal()
	select {
	case <-ack:
	case <-p.done:
	}
}

// Resume moves Paused→Playing. Playback restarts with a freshly picked clip.
// It is a no-op in any other state.
func (p *Player) Resume() {
	p.mu.Lock()
	if p.state != Paused {
		p.mu.Unlock()
		return
	}
	p.state = Playing
	p.releaseAckLocked()
	p.mu.Unlock()
	p.signal()
}

// Stop moves to Stopped and waits for the playback goroutine to exit. A
// stopped Player cannot be restarted. Stop is idempotent.
func (p *Player) Stop() {
	p.mu.Lock()
	p.state = Stopped
	p.stopped = true
	started := p.started
	p.releaseAckLocked()
	p.mu.Unlock()

	p.cancel()
	p.signal()
	if started {
		<-p.done
	}
}

// State returns the current playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Player) releaseAckLocked() {
	if p.ack != nil {
		close(p.ack)
		p.ack = nil
	}
}

// current reads the state and, when it is not Playing, acknowledges any
// pending Pause.
func (p *Player) current() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Playing {
		p.releaseAckLocked()
	}
	return p.state
}

func (p *Player) loop() {
	defer close(p.done)
	log := slog.With("component", "player")
	log.Info("player started", "statements", len(p.lib.statements))

	for {
		switch p.current() {
		case Stopped:
			log.Info("player stopped")
			return
		case Paused:
			<-p.wake
			continue
		}

		path, ok := p.lib.Pick(p.rng)
		if !ok {
			p.idle()
			continue
		}
		completed, err := p.playFile(path)
		if err != nil {
			log.Warn("player: clip failed", "path", path, "err", err)
			p.metrics.RecordClipFailure(p.ctx)
			p.idle()
			continue
		}
		if !completed {
			continue
		}
		p.metrics.RecordClip(p.ctx, "ambient")

		if p.ackClip == "" {
			continue
		}
		completed, err = p.playFile(p.ackClip)
		switch {
		case err != nil:
			log.Warn("player: ack clip failed", "path", p.ackClip, "err", err)
			p.metrics.RecordClipFailure(p.ctx)
		case completed:
			p.metrics.RecordClip(p.ctx, "ack")
		}
	}
}

// idle waits for the retry interval or a state change.
func (p *Player) idle() {
	t := time.NewTimer(p.retry)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.wake:
	}
}

// playFile decodes and plays path. completed is false when a pause or stop
// interrupted playback.
func (p *Player) playFile(path string) (completed bool, err error) {
	clip, err := audio.LoadClip(path)
	if err != nil {
		return false, err
	}
	for off := 0; off < len(clip.Samples); off += p.chunk {
		if p.current() != Playing {
			return false, nil
		}
		end := min(off+p.chunk, len(clip.Samples))
		if err := p.sink.Write(p.ctx, clip.Samples[off:end], clip.SampleRate); err != nil {
			if p.ctx.Err() != nil {
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}
