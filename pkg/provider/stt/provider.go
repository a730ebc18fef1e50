// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider turns one captured [audio.Utterance] into text. Utterances are
// short (bounded by the capture engine's maximum duration), so every backend
// works in batch mode: the whole recording is submitted at once and the call
// blocks until the transcript is available.
//
// An utterance that contains no recognisable speech is not an error; the
// provider returns the empty string.
package stt

import (
	"context"

	"github.com/MrWong99/echochamber/pkg/audio"
)

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Transcribe converts the utterance to text. It returns "" with a nil
	// error when the backend recognised nothing.
	Transcribe(ctx context.Context, utt audio.Utterance) (string, error)
}

// DefaultLanguage is the BCP-47 recognition language used when a backend is
// not configured with one.
const DefaultLanguage = "de-DE"

// BaseLanguage returns the primary subtag of a BCP-47 tag ("de-DE" → "de"),
// for backends that only accept ISO-639-1 codes.
func BaseLanguage(tag string) string {
	for i, r := range tag {
		if r == '-' || r == '_' {
			return tag[:i]
		}
	}
	return tag
}
