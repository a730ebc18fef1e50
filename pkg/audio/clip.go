package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultChunkSamples is the number of samples written to a [Sink] per call
// by [Play]. At 44.1 kHz this is about 23 ms of audio.
const DefaultChunkSamples = 1024

// SupportedClipExt reports whether path has an extension [LoadClip] can
// decode.
func SupportedClipExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".mp3":
		return true
	}
	return false
}

// LoadClip decodes the WAV or MP3 file at path.
func LoadClip(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: open clip: %w", err)
	}
	defer f.Close()

	var clip Clip
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		clip, err = DecodeWAV(f)
	case ".mp3":
		clip, err = DecodeMP3(f)
	default:
		return Clip{}, fmt.Errorf("audio: unsupported clip format %q", ext)
	}
	if err != nil {
		return Clip{}, fmt.Errorf("audio: load %q: %w", path, err)
	}
	return clip, nil
}

// Play writes clip to sink in chunks of chunkSamples, stopping early with
// ctx.Err() if ctx is cancelled between chunks. A non-positive chunkSamples
// selects [DefaultChunkSamples].
func Play(ctx context.Context, sink Sink, clip Clip, chunkSamples int) error {
	if chunkSamples <= 0 {
		chunkSamples = DefaultChunkSamples
	}
	for off := 0; off < len(clip.Samples); off += chunkSamples {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+chunkSamples, len(clip.Samples))
		if err := sink.Write(ctx, clip.Samples[off:end], clip.SampleRate); err != nil {
			return fmt.Errorf("audio: play: %w", err)
		}
	}
	return nil
}
