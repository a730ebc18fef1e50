// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns one reply into a decoded [audio.Clip] that is then
// written to the output sink in chunks. Replies are one or two sentences, so
// every backend synthesises the whole text in a single request.
package tts

import (
	"context"

	"github.com/MrWong99/echochamber/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Synthesize renders text as mono 16-bit PCM. The clip's SampleRate is
	// whatever the backend produced; the sink resamples if needed.
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}

// DefaultSpeed is the speaking-rate multiplier applied by backends that
// support it. Replies are played slightly faster than natural speech.
const DefaultSpeed = 1.25

// DefaultLanguage is the synthesis language for backends that need one.
const DefaultLanguage = "de-DE"
