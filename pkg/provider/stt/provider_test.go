package stt_test

import (
	"testing"

	"github.com/MrWong99/echochamber/pkg/provider/stt"
)

func TestBaseLanguage(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"de-DE", "de"},
		{"en_US", "en"},
		{"fr", "fr"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := stt.BaseLanguage(tc.in); got != tc.want {
			t.Errorf("BaseLanguage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
