// Package serial drives an [actuator.Actuator] over a serial line, as used by
// the Arduino that mirrors the appliance mode. Each mode change is written as
// a single ASCII digit ("0" ambient, "1" interactive).
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/MrWong99/echochamber/pkg/actuator"
)

var _ actuator.Actuator = (*Actuator)(nil)

const (
	defaultBaudRate   = 9600
	defaultResetDelay = 2 * time.Second
)

// Port is the subset of [serial.Port] the actuator uses.
type Port interface {
	io.Writer
	io.Closer
}

// Opener opens a named serial port. The default is [serial.Open].
type Opener func(name string, mode *serial.Mode) (Port, error)

// Option configures an [Actuator].
type Option func(*Actuator)

// WithBaudRate overrides the default 9600 baud.
func WithBaudRate(baud int) Option {
	return func(a *Actuator) {
		if baud > 0 {
			a.baud = baud
		}
	}
}

// WithResetDelay sets how long [Open] waits after opening the port. Many
// Arduino boards reset when the port is opened and drop bytes sent before
// the bootloader hands over. Default: 2s.
func WithResetDelay(d time.Duration) Option {
	return func(a *Actuator) {
		if d >= 0 {
			a.resetDelay = d
		}
	}
}

// WithOpener replaces the function used to open the port.
func WithOpener(o Opener) Option {
	return func(a *Actuator) {
		if o != nil {
			a.open = o
		}
	}
}

// Actuator writes mode changes to a serial port. Safe for concurrent use.
type Actuator struct {
	name       string
	baud       int
	resetDelay time.Duration
	open       Opener

	mu   sync.Mutex
	port Port
}

// Open opens portName and waits for the board reset delay. The wait is
// abandoned, and the port closed, if ctx is cancelled first.
func Open(ctx context.Context, portName string, opts ...Option) (*Actuator, error) {
	if portName == "" {
		return nil, errors.New("serial: port name is required")
	}
	a := &Actuator{
		name:       portName,
		baud:       defaultBaudRate,
		resetDelay: defaultResetDelay,
		open: func(name string, mode *serial.Mode) (Port, error) {
			return serial.Open(name, mode)
		},
	}
	for _, o := range opts {
		o(a)
	}

	p, err := a.open(portName, &serial.Mode{BaudRate: a.baud})
	if err != nil {
		return nil, fmt.Errorf("serial: open %q: %w", portName, err)
	}

	if a.resetDelay > 0 {
		t := time.NewTimer(a.resetDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			_ = p.Close()
			return nil, ctx.Err()
		}
	}
	a.port = p
	slog.Info("serial: actuator connected", "port", portName, "baud", a.baud)
	return a, nil
}

// SignalMode implements [actuator.Actuator].
func (a *Actuator) SignalMode(_ context.Context, m actuator.Mode) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.port == nil {
		return errors.New("serial: port closed")
	}
	if _, err := a.port.Write([]byte(strconv.Itoa(int(m)))); err != nil {
		return fmt.Errorf("serial: write mode %s to %q: %w", m, a.name, err)
	}
	return nil
}

// Close implements [actuator.Actuator].
func (a *Actuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.port == nil {
		return nil
	}
	err := a.port.Close()
	a.port = nil
	if err != nil {
		return fmt.Errorf("serial: close %q: %w", a.name, err)
	}
	return nil
}
