package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(v uint32, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestAnalyzeCleanSignal(t *testing.T) {
	m, ok := Analyze(uniform(500, 40), 0, DefaultOptions())
	require.True(t, ok)

	assert.Greater(t, m.Overall, 90.0)
	assert.Equal(t, 100.0, m.NoiseLevel)
	assert.Equal(t, 100.0, m.GlitchLevel)
	assert.Equal(t, 100.0, m.JitterLevel)
	assert.InDelta(t, 100.0, m.Stability, 1e-9)
	assert.True(t, Accept(m, DefaultAcceptThreshold))
}

func TestAnalyzeShortPulsesLowerScores(t *testing.T) {
	clean, ok := Analyze(uniform(500, 40), 0, DefaultOptions())
	require.True(t, ok)

	noisy := uniform(500, 40)
	for i := 0; i < len(noisy); i += 5 {
		noisy[i] = 40
	}
	m, ok := Analyze(noisy, 0, DefaultOptions())
	require.True(t, ok)

	assert.InDelta(t, 80.0, m.NoiseLevel, 1e-9)
	assert.Less(t, m.NoiseLevel, clean.NoiseLevel)
	assert.Less(t, m.GlitchLevel, clean.GlitchLevel)
	assert.Less(t, m.Overall, clean.Overall)
}

func TestAnalyzeCountsCaptureRejects(t *testing.T) {
	m, ok := Analyze(uniform(500, 40), 10, DefaultOptions())
	require.True(t, ok)
	assert.InDelta(t, 80.0, m.NoiseLevel, 1e-9)
	assert.Less(t, m.Overall, 100.0)
}

func TestAnalyzeJitter(t *testing.T) {
	samples := make([]uint32, 40)
	for i := range samples {
		samples[i] = 500
		if i%2 == 1 {
			samples[i] = 600
		}
	}

	m, ok := Analyze(samples, 0, DefaultOptions())
	require.True(t, ok)
	assert.Zero(t, m.JitterLevel)
	assert.Equal(t, 100.0, m.GlitchLevel)
	assert.InDelta(t, 80.0, m.Stability, 1e-9)
}

func TestAnalyzeTooFewSamples(t *testing.T) {
	m, ok := Analyze(uniform(500, 10), 0, DefaultOptions())
	assert.False(t, ok)
	assert.Equal(t, Metrics{}, m)
}

func TestSignalQuality(t *testing.T) {
	assert.Equal(t, 100.0, SignalQuality(uniform(500, 20)))
	assert.Less(t, SignalQuality([]uint32{100, 5000, 100, 5000}), 50.0)
	assert.Zero(t, SignalQuality([]uint32{500}))
}

func TestAccept(t *testing.T) {
	assert.False(t, Accept(Metrics{Overall: 69.9}, 70))
	assert.True(t, Accept(Metrics{Overall: 70}, 70))
}
