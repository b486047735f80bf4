package pulse

import "math"

// baseUnitSpread is how far above the shortest pulse a sample may sit and
// still count towards the base unit
const baseUnitSpread = 1.25

// MinMax returns the shortest and longest sample. Both are zero for an empty
// slice.
func MinMax(samples []uint32) (lo, hi uint32) {
	if len(samples) == 0 {
		return 0, 0
	}
	lo, hi = samples[0], samples[0]
	for _, v := range samples[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// BaseUnit estimates the timing quantum as the mean of the pulses within 25%
// of the shortest one.
func BaseUnit(samples []uint32) float64 {
	lo, _ := MinMax(samples)
	if lo == 0 {
		return 0
	}

	limit := float64(lo) * baseUnitSpread
	var sum float64
	var n int
	for _, v := range samples {
		if float64(v) <= limit {
			sum += float64(v)
			n++
		}
	}
	return sum / float64(n)
}

// Residual returns the distance from v to the nearest positive multiple of base
func Residual(v, base float64) float64 {
	if base <= 0 {
		return 0
	}
	k := math.Round(v / base)
	if k < 1 {
		k = 1
	}
	return math.Abs(v - k*base)
}

// ToFloat converts samples for use with gonum
func ToFloat(samples []uint32) []float64 {
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = float64(v)
	}
	return out
}

// AbsDiff returns |a-b| without wrapping
func AbsDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// Clamp limits v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
