package transmit

import (
	"math"
)

// ManchesterTimings converts data to alternating high/low durations starting
// high. Bits go out MSB first: a 1 is high then low, a 0 is low then high,
// each half lasting bitTime/2. The frame opens with a long high of 2*bitTime
// and a short low of bitTime/2 and closes with 4*bitTime of low. Adjacent
// halves at the same level are merged.
func ManchesterTimings(data []byte, bitTime uint32) []uint32 {
	half := bitTime / 2

	b := timingBuilder{}
	b.add(true, 2*bitTime)
	b.add(false, half)
	for _, by := range data {
		for bit := 7; bit >= 0; bit-- {
			one := by&(1<<uint(bit)) != 0
			b.add(one, half)
			b.add(!one, half)
		}
	}
	b.add(false, 4*bitTime)

	return b.timings
}

type timingBuilder struct {
	timings []uint32
	level   bool
}

// add appends a segment, extending the last one when the level is unchanged
func (b *timingBuilder) add(high bool, d uint32) {
	if len(b.timings) > 0 && high == b.level {
		b.timings[len(b.timings)-1] += d
		return
	}
	b.timings = append(b.timings, d)
	b.level = high
}

// EncodeOOK renders alternating high/low timings (starting high) as an MSB
// first bitstream with one bit per symbol, for radios that clock out a
// buffered frame. Every non-zero entry covers at least one symbol; zero
// entries emit nothing.
func EncodeOOK(timings []uint32, symbol uint32) []byte {
	if symbol == 0 {
		return nil
	}

	var bits []bool
	for i, d := range timings {
		n := int(math.Round(float64(d) / float64(symbol)))
		if n < 1 && d > 0 {
			n = 1
		}
		for j := 0; j < n; j++ {
			bits = append(bits, i%2 == 0)
		}
	}

	out := make([]byte, (len(bits)+7)/8)
	for i, high := range bits {
		if high {
			out[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return out
}
