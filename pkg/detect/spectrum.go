package detect

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/herlein/rfsignal/pkg/pulse"
)

// Modulation is the keying scheme inferred from pulse statistics
type Modulation int

// Modulation types
const (
	ModulationUnknown Modulation = iota
	ModulationOOK
	ModulationFSK
	ModulationASK
)

func (m Modulation) String() string {
	switch m {
	case ModulationOOK:
		return "OOK"
	case ModulationFSK:
		return "2-FSK"
	case ModulationASK:
		return "ASK"
	default:
		return "unknown"
	}
}

// Classification thresholds
const (
	ookMaxVariation  = 0.15 // std/mean below this is clean on-off keying
	fskDynamicRange  = 2.0
	askDynamicRange  = 3.0
	dynamicRangeSpan = 0.5

	jitterLow  = 0.10 // relative step counted as jitter above this
	jitterHigh = 0.35 // and below this; larger steps are symbol changes

	minNoiseFloor = 1.0 // us
)

// SpectralInfo holds properties estimated from one pulse train. Frequencies
// and rates are in Hz, percentages in [0, 100], ratios in [0, 1].
type SpectralInfo struct {
	DominantFreq       float64
	SignalToNoise      float64 // dB
	Bandwidth          float64
	SymbolRate         float64
	PeakToPeakJitter   float64 // percent of steps
	DutyCycle          float64 // percent
	PhaseConsistency   float64
	FrequencyStability float64
	SignalPurity       float64
	ModulationIndex    float64
	Modulation         Modulation
}

// AnalyzeSpectrum estimates the spectral properties of samples. It returns
// the zero value and false when fewer than minSamples are given or a sample
// is zero.
func AnalyzeSpectrum(samples []uint32, minSamples int) (SpectralInfo, bool) {
	n := len(samples)
	if n < minSamples || n < 2 {
		return SpectralInfo{}, false
	}

	lo, hi := pulse.MinMax(samples)
	if lo == 0 {
		return SpectralInfo{}, false
	}

	x := pulse.ToFloat(samples)
	mean, std := stat.MeanStdDev(x, nil)
	base := pulse.BaseUnit(samples)

	var sumSq, noiseSq float64
	for _, v := range x {
		sumSq += v * v
		r := pulse.Residual(v, base)
		noiseSq += r * r
	}
	rms := math.Sqrt(sumSq / float64(n))
	noise := math.Max(math.Sqrt(noiseSq/float64(n)), minNoiseFloor)

	info := SpectralInfo{
		SignalToNoise:    20 * math.Log10(rms/noise),
		Bandwidth:        1e6 / float64(lo),
		SymbolRate:       1e6 / base,
		PeakToPeakJitter: jitterPercent(x),
		DutyCycle:        dutyCycle(x),
		PhaseConsistency: phaseConsistency(x, float64(hi)),
		SignalPurity:     rms * rms / (rms*rms + noise*noise),
		ModulationIndex:  float64(hi-lo) / float64(hi+lo),
		Modulation:       classifyModulation(mean, std, float64(hi)/float64(lo)),
	}

	periods := make([]float64, 0, n/2)
	for i := 0; i+1 < n; i += 2 {
		periods = append(periods, x[i]+x[i+1])
	}
	periodMean := stat.Mean(periods, nil)
	info.DominantFreq = 1e6 / periodMean
	info.FrequencyStability = 1
	if len(periods) > 1 {
		info.FrequencyStability = pulse.Clamp(1-stat.StdDev(periods, nil)/periodMean, 0, 1)
	}

	return info, true
}

// jitterPercent is the share of adjacent pulse steps that are too large for
// noise and too small for a symbol change
func jitterPercent(x []float64) float64 {
	var count int
	for i := 1; i < len(x); i++ {
		d := math.Abs(x[i]-x[i-1]) / math.Max(x[i], x[i-1])
		if d > jitterLow && d < jitterHigh {
			count++
		}
	}
	return 100 * float64(count) / float64(len(x)-1)
}

// dutyCycle treats even-indexed pulses as high
func dutyCycle(x []float64) float64 {
	var high, total float64
	for i, v := range x {
		total += v
		if i%2 == 0 {
			high += v
		}
	}
	return 100 * high / total
}

// phaseConsistency compares each pulse with the same-polarity pulse one
// period later
func phaseConsistency(x []float64, peak float64) float64 {
	if len(x) < 3 {
		return 1
	}
	var dev float64
	for i := 0; i+2 < len(x); i++ {
		dev += math.Abs(x[i] - x[i+2])
	}
	dev /= float64(len(x) - 2)
	return pulse.Clamp(1-dev/peak, 0, 1)
}

func classifyModulation(mean, std, dynamicRange float64) Modulation {
	switch {
	case std/mean < ookMaxVariation:
		return ModulationOOK
	case math.Abs(dynamicRange-fskDynamicRange) <= dynamicRangeSpan:
		return ModulationFSK
	case math.Abs(dynamicRange-askDynamicRange) <= dynamicRangeSpan:
		return ModulationASK
	default:
		return ModulationUnknown
	}
}
