package actuator_test

import (
	"context"
	"testing"

	"github.com/MrWong99/echochamber/pkg/actuator"
)

func TestMode_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mode actuator.Mode
		want string
	}{
		{actuator.Ambient, "ambient"},
		{actuator.Interactive, "interactive"},
		{actuator.Mode(7), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.mode.String(); got != tc.want {
			t.Errorf("Mode(%d).String() = %q, want %q", int(tc.mode), got, tc.want)
		}
	}
}

func TestNop(t *testing.T) {
	t.Parallel()
	var a actuator.Actuator = actuator.Nop{}
	if err := a.SignalMode(context.Background(), actuator.Interactive); err != nil {
		t.Errorf("SignalMode: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
