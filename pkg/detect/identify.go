package detect

import (
	"math"

	"github.com/herlein/rfsignal/pkg/pulse"
)

// Confidence weights
const (
	timingWeight   = 0.4
	patternWeight  = 0.3
	spectralWeight = 0.3

	matchRatioWeight  = 0.5
	accuracyWeight    = 0.3
	repeatScoreWeight = 0.2

	maxMultiple = 4 // longest pulse considered, in base units

	// modulation index above which the spectral match starts to fall off
	maxModulationIndex = 0.6
)

// Match is a scored protocol candidate
type Match struct {
	Protocol   ProtocolInfo
	Confidence float64 // combined
	Timing     float64
	Pattern    float64
	Spectral   float64
}

// IdentifyProtocol scores samples against every known protocol and returns the
// best candidate if its combined confidence reaches MinProtocolConfidence.
func IdentifyProtocol(samples []uint32, opts Options) (Match, bool) {
	if len(samples) < opts.MinSamples {
		return Match{}, false
	}
	spectrum, _ := AnalyzeSpectrum(samples, opts.MinSamples)
	return Identify(samples, DetectPattern(samples, opts), spectrum, opts)
}

// Identify is IdentifyProtocol with the pattern and spectrum already computed
func Identify(samples []uint32, pattern PatternInfo, spectrum SpectralInfo, opts Options) (Match, bool) {
	if len(samples) < opts.MinSamples {
		return Match{}, false
	}

	patternScore := 0.0
	if pattern.IsValid {
		patternScore = pattern.Confidence
	}

	var best Match
	for _, p := range protocols {
		m := Match{
			Protocol: p,
			Timing:   TimingConfidence(samples, p),
			Pattern:  patternScore,
			Spectral: SpectralConfidence(p, spectrum),
		}
		m.Confidence = timingWeight*m.Timing + patternWeight*m.Pattern + spectralWeight*m.Spectral
		if m.Confidence > best.Confidence {
			best = m
		}
	}

	if best.Confidence < opts.MinProtocolConfidence {
		return Match{}, false
	}
	return best, true
}

// TimingConfidence rates how well samples fit integer multiples (1 to 4) of
// the protocol base unit. It weighs the share of matching samples, how close
// they land and whether each timing class repeats at least MinRepeats times.
func TimingConfidence(samples []uint32, p ProtocolInfo) float64 {
	if len(samples) == 0 || p.BaseUnit == 0 {
		return 0
	}

	base := float64(p.BaseUnit)
	tol := p.Tolerance * base

	var classes [maxMultiple + 1]int
	var matched int
	var accuracy float64
	for _, s := range samples {
		v := float64(s)
		k := math.Round(v / base)
		if k < 1 || k > maxMultiple {
			continue
		}
		d := math.Abs(v - k*base)
		if d > tol {
			continue
		}
		matched++
		accuracy += 1 - d/tol
		classes[int(k)]++
	}
	if matched == 0 {
		return 0
	}

	var repeated int
	for _, c := range classes {
		if c >= p.MinRepeats {
			repeated += c
		}
	}

	matchRatio := float64(matched) / float64(len(samples))
	return matchRatioWeight*matchRatio +
		accuracyWeight*accuracy/float64(matched) +
		repeatScoreWeight*float64(repeated)/float64(matched)
}

// SpectralConfidence compares measured spectral properties with those implied
// by the protocol base unit
func SpectralConfidence(p ProtocolInfo, s SpectralInfo) float64 {
	if p.BaseUnit == 0 || s.SymbolRate == 0 {
		return 0
	}

	expected := 1e6 / float64(p.BaseUnit)
	rate := 1 - math.Min(1, math.Abs(s.SymbolRate-expected)/expected)
	bandwidth := 1 - math.Min(1, math.Abs(s.Bandwidth-expected)/expected)
	snr := pulse.Clamp(s.SignalToNoise/20, 0, 1)
	modulation := 1 - pulse.Clamp((s.ModulationIndex-maxModulationIndex)/(1-maxModulationIndex), 0, 1)

	return 0.3*rate + 0.2*bandwidth + 0.2*snr + 0.2*s.PhaseConsistency + 0.1*modulation
}
