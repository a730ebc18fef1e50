package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is the polling interval used when none is given.
const DefaultWatchInterval = 5 * time.Second

// ErrUnchanged is returned by [Watcher.Reload] when the file content is the
// same as the last accepted version.
var ErrUnchanged = errors.New("config: unchanged")

// ChangeFunc receives the newly accepted config and what differs from the
// previous one. It is only called for non-empty diffs.
type ChangeFunc func(cur *Config, d ConfigDiff)

// stamp identifies one version of the file on disk.
type stamp struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher polls a config file and hands validated changes to a [ChangeFunc].
// A file that fails to parse or validate is logged and ignored; the last
// good config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange ChangeFunc

	mu      sync.Mutex
	current *Config
	seen    stamp
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path once and fails if it is not a valid config. Polling
// starts with [Watcher.Run].
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}
	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.seen = cfg, st
	return w, nil
}

// Current returns the last accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll()
		}
	}
}

// Reload re-reads the file regardless of its modification time. It returns
// [ErrUnchanged] when the content matches the current config and the
// load error when the file is invalid.
func (w *Watcher) Reload() (ConfigDiff, error) {
	cfg, st, err := w.read()
	if err != nil {
		return ConfigDiff{}, err
	}
	return w.accept(cfg, st)
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat file", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	same := info.ModTime().Equal(w.seen.mtime)
	w.mu.Unlock()
	if same {
		return
	}
	if _, err := w.Reload(); err != nil && !errors.Is(err, ErrUnchanged) {
		slog.Warn("config: reload rejected, keeping previous config", "path", w.path, "err", err)
	}
}

// accept swaps in cfg unless its bytes match the current version, then
// reports the diff to onChange.
func (w *Watcher) accept(cfg *Config, st stamp) (ConfigDiff, error) {
	w.mu.Lock()
	if st.sum == w.seen.sum {
		w.seen.mtime = st.mtime
		w.mu.Unlock()
		return ConfigDiff{}, ErrUnchanged
	}
	prev := w.current
	w.current, w.seen = cfg, st
	w.mu.Unlock()

	d := Diff(prev, cfg)
	if d.Empty() {
		// Comments or formatting only.
		slog.Debug("config: file changed without effect", "path", w.path)
		return d, nil
	}
	slog.Info("config: configuration reloaded", "path", w.path,
		"threshold_changed", d.ThresholdChanged,
		"log_level_changed", d.LogLevelChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onChange != nil {
		w.onChange(cfg, d)
	}
	return d, nil
}

func (w *Watcher) read() (*Config, stamp, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, stamp{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, stamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, stamp{}, err
	}
	return cfg, stamp{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
