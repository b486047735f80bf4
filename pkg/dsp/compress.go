package dsp

import "math"

// MergeRatio is the relative similarity under which adjacent pulses merge
const MergeRatio = 0.15

// Compress merges runs of similar consecutive pulses into their mean. A pulse
// joins the current run while it differs from the run mean by less than
// max(mean*MergeRatio, tolerance). A merged run whose mean lies within the
// tolerance of the half period is snapped onto it; single pulses are emitted
// unchanged, so compressing compressed output changes nothing.
func Compress(samples []uint32, tolerance uint32) []uint32 {
	if len(samples) == 0 {
		return nil
	}

	half, snap := halfPeriod(samples)
	tol := float64(tolerance)

	out := make([]uint32, 0, len(samples))
	var merged float64
	var count int

	flush := func() {
		v := math.Round(merged)
		if snap && count > 1 && math.Abs(v-half) <= tol {
			v = half
		}
		out = append(out, uint32(v))
	}

	for _, s := range samples {
		x := float64(s)
		if count > 0 && math.Abs(x-merged) < math.Max(merged*MergeRatio, tol) {
			merged = (merged*float64(count) + x) / float64(count+1)
			count++
			continue
		}
		if count > 0 {
			flush()
		}
		merged = x
		count = 1
	}
	flush()

	return out
}

// halfPeriod returns the midpoint of the shortest and longest pulse pair
// period, halved to pulse scale
func halfPeriod(samples []uint32) (float64, bool) {
	if len(samples) < 2 {
		return 0, false
	}

	minPeriod := uint64(math.MaxUint64)
	var maxPeriod uint64
	for i := 0; i+1 < len(samples); i++ {
		p := uint64(samples[i]) + uint64(samples[i+1])
		if p < minPeriod {
			minPeriod = p
		}
		if p > maxPeriod {
			maxPeriod = p
		}
	}
	return math.Round((float64(minPeriod) + float64(maxPeriod)) / 4), true
}

// Span returns the total duration of samples in microseconds
func Span(samples []uint32) uint64 {
	var total uint64
	for _, v := range samples {
		total += uint64(v)
	}
	return total
}
