package pulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAppendAndSnapshot(t *testing.T) {
	b := NewBuffer(make([]byte, 4*SampleSize+2))
	require.Equal(t, 4, b.Cap())

	for _, v := range []uint32{500, 1500, 70000, 1} {
		require.True(t, b.Append(v))
	}
	assert.False(t, b.Append(9), "full")
	assert.Equal(t, 4, b.Len())
	assert.Equal(t, []uint32{500, 1500, 70000, 1}, b.Snapshot())

	b.Set(1, 42)
	assert.Equal(t, uint32(42), b.At(1))

	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Snapshot())
}

func TestBufferLoadTruncates(t *testing.T) {
	b := NewBuffer(make([]byte, 3*SampleSize))
	assert.Equal(t, 3, b.Load([]uint32{1, 2, 3, 4, 5}))
	assert.Equal(t, []uint32{1, 2, 3}, b.Snapshot())

	b.SetLen(10)
	assert.Equal(t, 3, b.Len())
	b.SetLen(-1)
	assert.Equal(t, 0, b.Len())
}

func TestSignalBufferValid(t *testing.T) {
	s := &SignalBuffer{
		Raw:    NewBuffer(make([]byte, 8*SampleSize)),
		Smooth: NewBuffer(make([]byte, 8*SampleSize)),
	}
	s.Raw.Load([]uint32{1, 2, 3})
	s.Smooth.Load([]uint32{1, 2})
	assert.True(t, s.Valid())

	s.Smooth.Load([]uint32{1, 2, 3, 4})
	assert.False(t, s.Valid())
	assert.False(t, (&SignalBuffer{}).Valid())
}

func TestMinMax(t *testing.T) {
	lo, hi := MinMax([]uint32{700, 350, 1400, 360})
	assert.Equal(t, uint32(350), lo)
	assert.Equal(t, uint32(1400), hi)

	lo, hi = MinMax(nil)
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}

func TestBaseUnit(t *testing.T) {
	assert.InDelta(t, 355.0, BaseUnit([]uint32{350, 1050, 360, 1050}), 1e-9)
	assert.Zero(t, BaseUnit(nil))
}

func TestResidual(t *testing.T) {
	assert.InDelta(t, 10.0, Residual(1134, 562), 1e-9)
	assert.InDelta(t, 262.0, Residual(300, 562), 1e-9)
	assert.Zero(t, Residual(100, 0))
}

func TestAbsDiffAndClamp(t *testing.T) {
	assert.Equal(t, uint32(5), AbsDiff(10, 5))
	assert.Equal(t, uint32(5), AbsDiff(5, 10))
	assert.Equal(t, 100.0, Clamp(20, 100, 500))
	assert.Equal(t, 500.0, Clamp(900, 100, 500))
	assert.Equal(t, 250.0, Clamp(250, 100, 500))
}
