package audio

import "encoding/binary"

// BytesToSamples decodes little-endian int16 PCM. A trailing odd byte is
// ignored.
func BytesToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// SamplesToBytes encodes samples as little-endian int16 PCM.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Normalize maps a sample into [-1, 1).
func Normalize(s int16) float64 {
	return float64(s) / 32768
}

// DownmixInterleaved averages interleaved multi-channel samples into mono.
// Uses int32 accumulation so full-scale inputs cannot overflow.
func DownmixInterleaved(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for c := range channels {
			sum += int32(samples[i*channels+c])
		}
		out[i] = clamp16(sum / int32(channels))
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate with linear
// interpolation. Returns the input unchanged when the rates match or either
// rate is invalid.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	out := make([]int16, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// FromFloat32 converts normalised float samples back to int16, clamping
// out-of-range values.
func FromFloat32(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, f := range in {
		out[i] = clamp16(int32(f * 32767))
	}
	return out
}

// ToFloat32 converts samples to normalised float32 in [-1, 1).
func ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768
	}
	return out
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
