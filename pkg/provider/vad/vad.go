// Package vad implements fixed-threshold energy voice activity detection.
//
// The energy of a frame is the L2 norm of its samples, normalised to [-1, 1),
// divided by the number of samples. Thresholds are therefore independent of
// bit depth; typical microphone speech lands around 5e-4 at 16 kHz.
package vad

import (
	"math"
	"sync/atomic"

	"github.com/MrWong99/echochamber/pkg/audio"
)

// Energy returns the normalised L2 norm of f divided by its length. An empty
// frame has energy 0.
func Energy(f audio.Frame) float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.Samples {
		v := audio.Normalize(s)
		sum += v * v
	}
	return math.Sqrt(sum) / float64(len(f.Samples))
}

// Detect reports whether f contains voice, i.e. whether its [Energy] strictly
// exceeds threshold.
func Detect(f audio.Frame, threshold float64) bool {
	return Energy(f) > threshold
}

// Detector applies a threshold that can be changed while other goroutines
// are detecting. The zero value has threshold 0.
type Detector struct {
	bits atomic.Uint64
}

// NewDetector returns a Detector using threshold.
func NewDetector(threshold float64) *Detector {
	d := &Detector{}
	d.SetThreshold(threshold)
	return d
}

// Threshold returns the current threshold.
func (d *Detector) Threshold() float64 {
	return math.Float64frombits(d.bits.Load())
}

// SetThreshold replaces the threshold.
func (d *Detector) SetThreshold(threshold float64) {
	d.bits.Store(math.Float64bits(threshold))
}

// Detect is [Detect] with the current threshold.
func (d *Detector) Detect(f audio.Frame) bool {
	return Detect(f, d.Threshold())
}

// Silent reports whether the energy of f is strictly below the threshold.
// A frame exactly at the threshold is neither voice nor silence.
func (d *Detector) Silent(f audio.Frame) bool {
	return Energy(f) < d.Threshold()
}
