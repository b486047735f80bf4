// Package dsp conditions captured pulse trains: edge-preserving smoothing and
// similarity-based compression.
package dsp

import (
	"math"

	"github.com/herlein/rfsignal/pkg/pulse"
)

// Smoothing parameters
const (
	MinTolerance   = 100 // us - lower clamp of the dynamic tolerance
	MaxTolerance   = 500 // us - upper clamp of the dynamic tolerance
	ToleranceRatio = 0.1 // fraction of the pulse width span
	MaxWindow      = 5   // samples each side
)

// SmoothResult is the output of Smooth
type SmoothResult struct {
	Samples   []uint32
	Tolerance uint32 // dynamic tolerance used, also the compression tolerance
}

// Tolerance returns 10% of the sample span clamped to [MinTolerance, MaxTolerance]
func Tolerance(samples []uint32) uint32 {
	lo, hi := pulse.MinMax(samples)
	return uint32(pulse.Clamp(float64(hi-lo)*ToleranceRatio, MinTolerance, MaxTolerance))
}

// Smooth applies a triangularly weighted moving average to raw. A sample whose
// step from its predecessor exceeds the tolerance is an edge and is kept as is.
// Neighbours further than the tolerance from the centre sample do not
// contribute, so both sides of a transition stay sharp. Results shorter than
// minPulseWidth are dropped.
func Smooth(raw []uint32, minPulseWidth uint32) SmoothResult {
	n := len(raw)
	if n == 0 {
		return SmoothResult{}
	}

	tol := Tolerance(raw)
	w := n / 10
	if w > MaxWindow {
		w = MaxWindow
	}

	out := make([]uint32, 0, n)
	for i, v := range raw {
		edge := i > 0 && pulse.AbsDiff(v, raw[i-1]) > tol
		if w > 0 && !edge {
			v = weightedAverage(raw, i, w, tol)
		}
		if v < minPulseWidth {
			continue
		}
		out = append(out, v)
	}

	return SmoothResult{Samples: out, Tolerance: tol}
}

func weightedAverage(raw []uint32, i, w int, tol uint32) uint32 {
	var sum, weights float64
	for j := i - w; j <= i+w; j++ {
		if j < 0 || j >= len(raw) {
			continue
		}
		if pulse.AbsDiff(raw[j], raw[i]) > tol {
			continue
		}
		dist := j - i
		if dist < 0 {
			dist = -dist
		}
		weight := float64(w + 1 - dist)
		sum += weight * float64(raw[j])
		weights += weight
	}
	return uint32(math.Round(sum / weights))
}
