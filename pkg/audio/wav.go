package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE audio format tag for linear PCM.
const wavFormatPCM = 1

// EncodeWAV wraps mono 16-bit samples in a 44-byte RIFF/WAVE header and
// returns the complete file in memory. Used for HTTP uploads where no
// seekable writer is at hand.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	const (
		channels = 1
		bps      = 16
	)
	dataSize := len(samples) * 2
	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*bps/8))
	binary.LittleEndian.PutUint16(buf[32:34], channels*bps/8)
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}
	return buf
}

// WriteWAVFile writes mono 16-bit samples to path, creating or truncating it.
func WriteWAVFile(path string, samples []int16, sampleRate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %q: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("audio: close %q: %w", path, cerr)
		}
	}()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, wavFormatPCM)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode %q: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalise %q: %w", path, err)
	}
	return nil
}

// DecodeWAV reads a PCM WAV stream of any common bit depth and channel count
// and returns it as a mono 16-bit [Clip].
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return Clip{}, fmt.Errorf("audio: invalid wav: %w", err)
		}
		return Clip{}, errors.New("audio: invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: read wav pcm: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	depth := int(dec.BitDepth)
	for i, v := range buf.Data {
		switch {
		case depth == 8:
			// 8-bit WAV is unsigned.
			samples[i] = int16((v - 128) << 8)
		case depth > 16:
			samples[i] = int16(v >> (depth - 16))
		default:
			samples[i] = int16(v)
		}
	}

	return Clip{
		Samples:    DownmixInterleaved(samples, int(dec.NumChans)),
		SampleRate: int(dec.SampleRate),
	}, nil
}

// DecodeWAVBytes is [DecodeWAV] over an in-memory file.
func DecodeWAVBytes(b []byte) (Clip, error) {
	return DecodeWAV(bytes.NewReader(b))
}
