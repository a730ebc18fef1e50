// Package mock provides a recording [actuator.Actuator] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/echochamber/pkg/actuator"
)

var _ actuator.Actuator = (*Actuator)(nil)

// Actuator records every mode it is sent.
type Actuator struct {
	mu sync.Mutex

	// Err is returned by SignalMode when non-nil. The mode is still recorded.
	Err error

	modes  []actuator.Mode
	closed bool
}

// SignalMode implements [actuator.Actuator].
func (a *Actuator) SignalMode(_ context.Context, m actuator.Mode) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modes = append(a.modes, m)
	return a.Err
}

// Close implements [actuator.Actuator].
func (a *Actuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Modes returns a copy of the recorded mode sequence.
func (a *Actuator) Modes() []actuator.Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]actuator.Mode, len(a.modes))
	copy(out, a.modes)
	return out
}

// Closed reports whether Close was called.
func (a *Actuator) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Reset clears the recorded modes.
func (a *Actuator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modes = nil
}
