// Package pulse holds pulse-width sample storage and the statistics helpers
// shared by the analysis packages. Durations are microseconds.
package pulse

import (
	"encoding/binary"
)

// SampleSize is the number of bytes one stored duration occupies
const SampleSize = 4

// Buffer is a fixed-capacity sequence of durations stored in a caller-supplied
// byte region, normally one handed out by the sample pool. At and Set never
// allocate.
type Buffer struct {
	region []byte
	n      int
}

// NewBuffer wraps region. Trailing bytes that do not fill a sample are unused.
func NewBuffer(region []byte) *Buffer {
	return &Buffer{region: region}
}

// Region returns the backing bytes, e.g. to return them to the pool
func (b *Buffer) Region() []byte {
	return b.region
}

// Cap returns the number of samples the buffer can hold
func (b *Buffer) Cap() int {
	return len(b.region) / SampleSize
}

// Len returns the number of stored samples
func (b *Buffer) Len() int {
	return b.n
}

// SetLen sets the stored sample count, clamped to the capacity
func (b *Buffer) SetLen(n int) {
	switch {
	case n < 0:
		n = 0
	case n > b.Cap():
		n = b.Cap()
	}
	b.n = n
}

// Reset empties the buffer
func (b *Buffer) Reset() {
	b.n = 0
}

// At returns sample i. i must be below Cap.
func (b *Buffer) At(i int) uint32 {
	return binary.LittleEndian.Uint32(b.region[i*SampleSize:])
}

// Set stores v at index i without changing Len. i must be below Cap.
func (b *Buffer) Set(i int, v uint32) {
	binary.LittleEndian.PutUint32(b.region[i*SampleSize:], v)
}

// Append adds v and reports false when the buffer is full
func (b *Buffer) Append(v uint32) bool {
	if b.n >= b.Cap() {
		return false
	}
	b.Set(b.n, v)
	b.n++
	return true
}

// Load replaces the contents with samples, truncating to the capacity, and
// returns how many were stored.
func (b *Buffer) Load(samples []uint32) int {
	b.n = 0
	for _, v := range samples {
		if !b.Append(v) {
			break
		}
	}
	return b.n
}

// Snapshot copies the stored samples out
func (b *Buffer) Snapshot() []uint32 {
	out := make([]uint32, b.n)
	for i := range out {
		out[i] = b.At(i)
	}
	return out
}

// SignalBuffer groups the raw capture, its smoothed form and the timing
// tolerance derived while smoothing.
type SignalBuffer struct {
	Raw            *Buffer
	Smooth         *Buffer
	ErrorTolerance uint32
}

// Valid reports whether the smoothed count stays within the raw count and the
// raw count within capacity.
func (s *SignalBuffer) Valid() bool {
	if s.Raw == nil || s.Smooth == nil {
		return false
	}
	return s.Smooth.Len() <= s.Raw.Len() && s.Raw.Len() <= s.Raw.Cap()
}
