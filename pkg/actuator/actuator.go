// Package actuator defines the contract for the external device that mirrors
// the appliance's current mode, typically a microcontroller driving lights or
// motors.
//
// Signalling is best-effort: callers log errors from [Actuator.SignalMode] and
// carry on.
package actuator

import "context"

// Mode is the discrete value sent to the actuator.
type Mode int

const (
	// Ambient means background clips are playing and the appliance is
	// listening for a voice.
	Ambient Mode = 0

	// Interactive means a turn is in progress: recording, thinking or
	// speaking.
	Interactive Mode = 1
)

// String returns the human-readable name of the mode.
func (m Mode) String() string {
	switch m {
	case Ambient:
		return "ambient"
	case Interactive:
		return "interactive"
	default:
		return "unknown"
	}
}

// Actuator receives mode changes.
//
// Implementations must be safe for concurrent use.
type Actuator interface {
	SignalMode(ctx context.Context, m Mode) error
	Close() error
}

// Nop is an [Actuator] that does nothing. It is used when no device is
// configured.
type Nop struct{}

var _ Actuator = Nop{}

// SignalMode implements [Actuator].
func (Nop) SignalMode(context.Context, Mode) error { return nil }

// Close implements [Actuator].
func (Nop) Close() error { return nil }
