// Package archive persists what happened during interactive turns: the
// captured utterances and spoken replies as WAV files ([Dir]) and one row per
// turn in PostgreSQL ([Journal]).
//
// Both are best-effort from the coordinator's point of view; a failure is
// logged and the turn continues.
package archive

import "time"

// Turn is one journal entry.
type Turn struct {
	StartedAt     time.Time
	Duration      time.Duration
	Outcome       string
	UtterancePath string
	Transcript    string
	Reply         string
	ReplyPath     string
	STTProvider   string
	LLMProvider   string
	TTSProvider   string
	Error         string
}
