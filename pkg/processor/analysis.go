package processor

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/herlein/rfsignal/pkg/detect"
	"github.com/herlein/rfsignal/pkg/quality"
)

// PulseTiming is the coarse PWM timing of a capture
type PulseTiming struct {
	Period    uint32 // us - mean high+low pair
	ZeroPulse uint32 // us - expected high time of a 0 bit
	OnePulse  uint32 // us - expected high time of a 1 bit
}

// analysisSamples returns the smoothed buffer, or the raw capture when it has
// not been smoothed
func (p *Processor) analysisSamples() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buf.Raw == nil || p.State() == StateCapturing {
		return nil
	}
	if p.buf.Smooth.Len() > 0 {
		return p.buf.Smooth.Snapshot()
	}
	return p.buf.Raw.Snapshot()
}

func (p *Processor) rawSamples() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buf.Raw == nil || p.State() == StateCapturing {
		return nil
	}
	return p.buf.Raw.Snapshot()
}

// AnalyzePulses estimates the PWM period from high+low pairs, with 0 and 1
// bits at a third and two thirds of it
func (p *Processor) AnalyzePulses() (PulseTiming, error) {
	samples := p.analysisSamples()
	if len(samples) < p.cfg.MinSamples {
		return PulseTiming{}, errors.Wrapf(ErrInsufficientSamples, "have %d", len(samples))
	}

	var sum uint64
	pairs := len(samples) / 2
	for i := 0; i+1 < len(samples); i += 2 {
		sum += uint64(samples[i]) + uint64(samples[i+1])
	}
	period := uint32(sum / uint64(pairs))

	return PulseTiming{
		Period:    period,
		ZeroPulse: period / 3,
		OnePulse:  period * 2 / 3,
	}, nil
}

// CalculateSignalQuality returns 100*(1 - stddev/mean) of the raw capture,
// or 0 when too few samples were captured
func (p *Processor) CalculateSignalQuality() float64 {
	samples := p.rawSamples()
	if len(samples) < p.cfg.MinSamples {
		return 0
	}
	return quality.SignalQuality(samples)
}

// DetectPattern searches the conditioned samples for a repeating unit
func (p *Processor) DetectPattern() detect.PatternInfo {
	samples := p.analysisSamples()
	if len(samples) < p.cfg.MinSamples {
		return detect.PatternInfo{}
	}
	return detect.DetectPattern(samples, p.cfg.detectOptions())
}

// AnalyzeSpectrum estimates spectral properties of the raw capture. The
// result is cached until the next capture or load.
func (p *Processor) AnalyzeSpectrum() (detect.SpectralInfo, bool) {
	p.mu.Lock()
	if p.spectrum != nil {
		s := *p.spectrum
		p.mu.Unlock()
		return s, true
	}
	p.mu.Unlock()

	samples := p.rawSamples()
	info, ok := detect.AnalyzeSpectrum(samples, p.cfg.MinSamples)
	if !ok {
		return detect.SpectralInfo{}, false
	}

	p.mu.Lock()
	p.spectrum = &info
	p.mu.Unlock()
	return info, true
}

// IdentifyProtocol matches the conditioned samples against known protocols
func (p *Processor) IdentifyProtocol() (detect.Match, bool) {
	samples := p.analysisSamples()
	if len(samples) < p.cfg.MinSamples {
		return detect.Match{}, false
	}

	opts := p.cfg.detectOptions()
	spectrum, _ := p.AnalyzeSpectrum()
	match, ok := detect.Identify(samples, detect.DetectPattern(samples, opts), spectrum, opts)
	if ok {
		p.log.WithFields(logrus.Fields{
			"protocol":   match.Protocol.Name,
			"confidence": match.Confidence,
		}).Info("protocol identified")
	}
	return match, ok
}

// AnalyzeSignalQuality scores the raw capture, counting pulses rejected as
// noise during capture
func (p *Processor) AnalyzeSignalQuality() (quality.Metrics, bool) {
	samples := p.rawSamples()
	return quality.Analyze(samples, int(p.rejected.Load()), p.cfg.qualityOptions())
}

// AcceptCapture scores the capture and reports whether its overall quality
// reaches AcceptThreshold
func (p *Processor) AcceptCapture() (quality.Metrics, bool) {
	m, ok := p.AnalyzeSignalQuality()
	if !ok {
		return m, false
	}
	return m, quality.Accept(m, p.cfg.AcceptThreshold)
}

// ValidateTiming reports whether timing lies within tolerance (a fraction)
// of expected
func (p *Processor) ValidateTiming(timing, expected uint32, tolerance float64) bool {
	return detect.ValidateTiming(timing, expected, tolerance)
}

// DecodeBinary reads the conditioned samples as PWM: each high+low pair is a
// 1 when the high part is longer, else a 0. Bits are packed MSB first; the
// bit count is returned alongside.
func (p *Processor) DecodeBinary() ([]byte, int, error) {
	samples := p.analysisSamples()
	if len(samples) < p.cfg.MinSamples {
		return nil, 0, errors.Wrapf(ErrInsufficientSamples, "have %d", len(samples))
	}

	bits := len(samples) / 2
	out := make([]byte, (bits+7)/8)
	for i := 0; i < bits; i++ {
		if samples[2*i] > samples[2*i+1] {
			out[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return out, bits, nil
}
