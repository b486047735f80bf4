package detect

import "math"

// PatternInfo describes the best repeating unit found in a pulse train
type PatternInfo struct {
	Length     int     // samples per repeat unit
	Repeats    int     // consecutive windows of Length samples
	Confidence float64 // fraction of adjacent window pairs that match
	IsValid    bool
}

// DetectPattern searches every unit length from 4 to min(MaxPatternLength, n/2).
// The samples are cut into n/len windows and adjacent windows are compared
// element-wise within PatternTolerance. The length with the highest match
// ratio wins; on a tie the shorter length is kept.
func DetectPattern(samples []uint32, opts Options) PatternInfo {
	n := len(samples)
	maxLen := opts.MaxPatternLength
	if n/2 < maxLen {
		maxLen = n / 2
	}

	var best PatternInfo
	for length := minPatternLength; length <= maxLen; length++ {
		windows := n / length
		if windows < 2 {
			continue
		}

		matches := 0
		for w := 0; w+1 < windows; w++ {
			a := samples[w*length : (w+1)*length]
			b := samples[(w+1)*length : (w+2)*length]
			if windowsMatch(a, b, opts.PatternTolerance) {
				matches++
			}
		}

		confidence := float64(matches) / float64(windows-1)
		if confidence > best.Confidence {
			best = PatternInfo{Length: length, Repeats: windows, Confidence: confidence}
		}
	}

	best.IsValid = best.Confidence >= opts.MinPatternConfidence && best.Repeats >= opts.MinRepeats
	return best
}

func windowsMatch(a, b []uint32, tolerance float64) bool {
	for i := range a {
		if !withinRelative(float64(a[i]), float64(b[i]), tolerance) {
			return false
		}
	}
	return true
}

func withinRelative(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(a, b)
}
