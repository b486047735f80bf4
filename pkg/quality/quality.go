// Package quality scores captured pulse trains for noise, glitches and jitter
// and decides whether a capture is worth keeping.
package quality

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/herlein/rfsignal/pkg/pulse"
)

// Scoring defaults
const (
	DefaultMinPulseWidth   = 100 // us
	DefaultMinSamples      = 30
	DefaultAcceptThreshold = 70.0

	glitchMinRatio = 0.25
	glitchMaxRatio = 4.0
	jitterLow      = 0.10
	jitterHigh     = 0.35
)

// Stability and overall weights
const (
	noiseWeight       = 0.4
	glitchWeight      = 0.4
	jitterWeight      = 0.2
	stabilityWeight   = 0.8
	consistencyWeight = 0.2
)

// Metrics are capture quality scores. Every field is a percentage in
// [0, 100] where higher means cleaner.
type Metrics struct {
	Overall     float64
	NoiseLevel  float64
	GlitchLevel float64
	JitterLevel float64
	Stability   float64
}

// Options tunes quality scoring
type Options struct {
	MinPulseWidth uint32
	MinSamples    int
}

// DefaultOptions returns Options with default values
func DefaultOptions() Options {
	return Options{
		MinPulseWidth: DefaultMinPulseWidth,
		MinSamples:    DefaultMinSamples,
	}
}

// Analyze scores samples. rejected is the number of pulses already discarded
// as noise during capture; they count against the noise level. It returns
// false when fewer than MinSamples are given.
func Analyze(samples []uint32, rejected int, opts Options) (Metrics, bool) {
	n := len(samples)
	if n < opts.MinSamples || n < 2 {
		return Metrics{}, false
	}

	noisy := rejected
	valid := make([]uint32, 0, n)
	for _, s := range samples {
		if s < opts.MinPulseWidth {
			noisy++
			continue
		}
		valid = append(valid, s)
	}

	var glitches, jitter int
	for i := 1; i < n; i++ {
		prev, cur := float64(samples[i-1]), float64(samples[i])
		if prev == 0 {
			glitches++
			continue
		}
		ratio := cur / prev
		if ratio < glitchMinRatio || ratio > glitchMaxRatio {
			glitches++
		}
		d := math.Abs(cur-prev) / math.Max(cur, prev)
		if d > jitterLow && d < jitterHigh {
			jitter++
		}
	}

	steps := float64(n - 1)
	m := Metrics{
		NoiseLevel:  100 * (1 - float64(noisy)/float64(n+rejected)),
		GlitchLevel: 100 * (1 - float64(glitches)/steps),
		JitterLevel: 100 * (1 - float64(jitter)/steps),
	}
	m.Stability = noiseWeight*m.NoiseLevel + glitchWeight*m.GlitchLevel + jitterWeight*m.JitterLevel
	m.Overall = stabilityWeight*m.Stability + consistencyWeight*timingConsistency(valid)

	return m, true
}

// timingConsistency is 100 when every pulse is an exact multiple of the base
// unit and falls to 0 as the mean residual reaches half a unit
func timingConsistency(samples []uint32) float64 {
	if len(samples) == 0 {
		return 0
	}
	base := pulse.BaseUnit(samples)

	var residual float64
	for _, s := range samples {
		residual += pulse.Residual(float64(s), base)
	}
	residual /= float64(len(samples))

	return 100 * (1 - pulse.Clamp(residual/(base/2), 0, 1))
}

// SignalQuality returns 100*(1 - std/mean) clamped to [0, 100]
func SignalQuality(samples []uint32) float64 {
	if len(samples) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(pulse.ToFloat(samples), nil)
	if mean == 0 {
		return 0
	}
	return pulse.Clamp(100*(1-std/mean), 0, 100)
}

// Accept reports whether a capture scoring m should be kept
func Accept(m Metrics, threshold float64) bool {
	return m.Overall >= threshold
}
