package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeat(v uint32, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestToleranceClamp(t *testing.T) {
	assert.Equal(t, uint32(100), Tolerance([]uint32{500, 600}))
	assert.Equal(t, uint32(250), Tolerance([]uint32{500, 3000}))
	assert.Equal(t, uint32(500), Tolerance([]uint32{500, 9000}))
}

func TestSmoothUniformIsUnchanged(t *testing.T) {
	raw := repeat(500, 40)
	res := Smooth(raw, 100)
	assert.Equal(t, raw, res.Samples)
	assert.Equal(t, uint32(100), res.Tolerance)
}

func TestSmoothPreservesOutlier(t *testing.T) {
	raw := repeat(500, 40)
	raw[20] = 5000

	res := Smooth(raw, 100)
	require.Len(t, res.Samples, 40)
	assert.Equal(t, uint32(5000), res.Samples[20])
	assert.Equal(t, uint32(500), res.Samples[19])
	assert.Equal(t, uint32(500), res.Samples[21])
	assert.Equal(t, uint32(450), res.Tolerance)
}

func TestSmoothAveragesJitter(t *testing.T) {
	raw := make([]uint32, 40)
	for i := range raw {
		raw[i] = 480
		if i%2 == 1 {
			raw[i] = 520
		}
	}

	res := Smooth(raw, 100)
	require.Len(t, res.Samples, 40)
	for i, v := range res.Samples {
		assert.InDelta(t, 500, v, 10, "sample %d", i)
	}
	assert.Equal(t, uint32(499), res.Samples[20])
}

func TestSmoothDropsShortPulses(t *testing.T) {
	raw := repeat(500, 30)
	raw[10] = 30

	res := Smooth(raw, 100)
	assert.Len(t, res.Samples, 29)
	for _, v := range res.Samples {
		assert.Equal(t, uint32(500), v)
	}
}

func TestSmoothShortCaptureKeepsShape(t *testing.T) {
	raw := []uint32{500, 500, 500, 500, 1500, 500, 500, 500, 500, 1500}
	res := Smooth(raw, 100)
	assert.Equal(t, raw, res.Samples)
}

func TestSmoothEmpty(t *testing.T) {
	res := Smooth(nil, 100)
	assert.Empty(t, res.Samples)
	assert.Zero(t, res.Tolerance)
}

func TestCompressMergesRuns(t *testing.T) {
	in := []uint32{500, 510, 490, 1500, 1490, 500, 505}
	out := Compress(in, 100)
	assert.Equal(t, []uint32{500, 1495, 503}, out)

	assert.Equal(t, out, Compress(out, 100))
}

func TestCompressAlreadyCompressedIsIdentity(t *testing.T) {
	in := []uint32{500, 1500, 500, 3000, 500, 1500}
	assert.Equal(t, in, Compress(in, 100))
}

func TestCompressSnapsToHalfPeriod(t *testing.T) {
	in := []uint32{500, 1500, 980, 1010, 500}
	assert.Equal(t, []uint32{500, 1500, 998, 500}, Compress(in, 100))
}

func TestCompressEdgeCases(t *testing.T) {
	assert.Nil(t, Compress(nil, 100))
	assert.Equal(t, []uint32{700}, Compress([]uint32{700}, 100))
	assert.Equal(t, uint64(2500), Span([]uint32{500, 1500, 500}))
}
