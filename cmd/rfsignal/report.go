package main

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/herlein/rfsignal/pkg/memory"
	"github.com/herlein/rfsignal/pkg/processor"
)

// conditionCapture smooths and compresses the capture. Failures are reported
// and analysis continues on the raw samples.
func conditionCapture(p *processor.Processor, compress bool) {
	if err := p.SmoothSignal(); err != nil {
		log.WithError(err).Warn("smoothing failed, analysing raw samples")
		return
	}
	if compress {
		if err := p.CompressSignal(); err != nil {
			log.WithError(err).Warn("compression failed")
		}
	}
}

func printReport(w io.Writer, p *processor.Processor) {
	captured, rejected, dropped := p.CaptureStats()
	fmt.Fprintf(w, "Capture:\n")
	fmt.Fprintf(w, "  Samples:    %d kept, %d rejected, %d dropped\n", captured, rejected, dropped)
	fmt.Fprintf(w, "  Smoothed:   %d (tolerance %d us)\n", len(p.SmoothSamples()), p.ErrorTolerance())

	if timing, err := p.AnalyzePulses(); err == nil {
		fmt.Fprintf(w, "  Period:     %d us (zero %d us, one %d us)\n", timing.Period, timing.ZeroPulse, timing.OnePulse)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Quality:\n")
	if m, ok := p.AnalyzeSignalQuality(); ok {
		_, accepted := p.AcceptCapture()
		fmt.Fprintf(w, "  Overall:    %.1f (accepted: %v)\n", m.Overall, accepted)
		fmt.Fprintf(w, "  Noise:      %.1f\n", m.NoiseLevel)
		fmt.Fprintf(w, "  Glitches:   %.1f\n", m.GlitchLevel)
		fmt.Fprintf(w, "  Jitter:     %.1f\n", m.JitterLevel)
		fmt.Fprintf(w, "  Stability:  %.1f\n", m.Stability)
	} else {
		fmt.Fprintf(w, "  not enough samples\n")
	}
	fmt.Fprintf(w, "  Score:      %.1f\n\n", p.CalculateSignalQuality())

	pattern := p.DetectPattern()
	fmt.Fprintf(w, "Pattern:\n")
	fmt.Fprintf(w, "  Length:     %d\n", pattern.Length)
	fmt.Fprintf(w, "  Repeats:    %d\n", pattern.Repeats)
	fmt.Fprintf(w, "  Confidence: %.2f (valid: %v)\n\n", pattern.Confidence, pattern.IsValid)

	fmt.Fprintf(w, "Spectrum:\n")
	if s, ok := p.AnalyzeSpectrum(); ok {
		fmt.Fprintf(w, "  Modulation: %s\n", s.Modulation)
		fmt.Fprintf(w, "  Symbol rate: %.1f baud\n", s.SymbolRate)
		fmt.Fprintf(w, "  Duty cycle: %.1f%%\n", s.DutyCycle)
		fmt.Fprintf(w, "  Jitter:     %.1f%%\n", s.PeakToPeakJitter)
		fmt.Fprintf(w, "  SNR:        %.1f dB\n\n", s.SignalToNoise)
	} else {
		fmt.Fprintf(w, "  not enough samples\n\n")
	}

	fmt.Fprintf(w, "Protocol:\n")
	if match, ok := p.IdentifyProtocol(); ok {
		fmt.Fprintf(w, "  Name:       %s\n", match.Protocol.Name)
		fmt.Fprintf(w, "  Confidence: %.2f (timing %.2f, pattern %.2f, spectral %.2f)\n",
			match.Confidence, match.Timing, match.Pattern, match.Spectral)
	} else {
		fmt.Fprintf(w, "  unknown\n")
	}

	if data, bits, err := p.DecodeBinary(); err == nil {
		fmt.Fprintf(w, "  Decoded:    %d bits %s\n", bits, hex.EncodeToString(data))
	}
}

func printPoolStats(w io.Writer, s memory.Stats) {
	fmt.Fprintf(w, "  Total:         %d bytes\n", s.Total)
	fmt.Fprintf(w, "  Used:          %d bytes in %d blocks\n", s.Used, s.UsedBlocks)
	fmt.Fprintf(w, "  Free:          %d bytes in %d blocks\n", s.Free, s.FreeBlocks)
	fmt.Fprintf(w, "  Largest free:  %d bytes\n", s.LargestFree)
	fmt.Fprintf(w, "  Fragmentation: %.1f%%\n", s.Fragmentation)
}
