package audio

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes an MP3 stream into a mono [Clip]. The decoder always
// yields interleaved 16-bit stereo, which is down-mixed here.
func DecodeMP3(r io.Reader) (Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: open mp3: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode mp3: %w", err)
	}
	return Clip{
		Samples:    DownmixInterleaved(BytesToSamples(pcm), 2),
		SampleRate: dec.SampleRate(),
	}, nil
}
