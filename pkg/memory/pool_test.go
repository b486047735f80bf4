package memory

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, size int) (*Pool, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	p, err := NewPool(size, DefaultAlignment, log)
	require.NoError(t, err)
	return p, hook
}

func TestNewPoolRejectsBadGeometry(t *testing.T) {
	_, err := NewPool(1024, 24, nil)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = NewPool(1000, 32, nil)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = NewPool(0, 32, nil)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestAllocateRoundsToAlignment(t *testing.T) {
	p, _ := newTestPool(t, 1024)

	buf, err := p.Allocate(10)
	require.NoError(t, err)
	assert.Len(t, buf, 10)
	assert.Equal(t, 10, cap(buf))

	blocks := p.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, BlockInfo{Offset: 0, Size: 32, Used: true}, blocks[0])
	assert.Equal(t, BlockInfo{Offset: 32, Size: 992, Used: false}, blocks[1])
}

func TestAllocateZeroSize(t *testing.T) {
	p, _ := newTestPool(t, 1024)

	_, err := p.Allocate(0)
	assert.Equal(t, ErrZeroSize, err)
	_, err = p.Allocate(-5)
	assert.Equal(t, ErrZeroSize, err)
}

func TestAllocateOutOfMemory(t *testing.T) {
	p, _ := newTestPool(t, 256)

	_, err := p.Allocate(512)
	assert.True(t, errors.Is(err, ErrOutOfMemory))

	_, err = p.Allocate(256)
	require.NoError(t, err)
	_, err = p.Allocate(1)
	assert.True(t, errors.Is(err, ErrOutOfMemory))
}

func TestAllocateBestFit(t *testing.T) {
	p, _ := newTestPool(t, 1024)

	a, err := p.Allocate(64)
	require.NoError(t, err)
	_, err = p.Allocate(32)
	require.NoError(t, err)
	c, err := p.Allocate(128)
	require.NoError(t, err)
	_, err = p.Allocate(32)
	require.NoError(t, err)

	// holes of 64 and 128 bytes plus the 768 byte tail
	p.Free(a)
	p.Free(c)

	got, err := p.Allocate(100)
	require.NoError(t, err)
	assert.Same(t, &c[0], &got[0], "the 128 byte hole is the best fit")

	got, err = p.Allocate(40)
	require.NoError(t, err)
	assert.Same(t, &a[0], &got[0], "the 64 byte hole is the best fit")
}

func TestAllocateSkipsSplitForSmallSurplus(t *testing.T) {
	p, _ := newTestPool(t, 256)

	// surplus of 32 bytes does not cover a header plus alignment
	_, err := p.Allocate(200)
	require.NoError(t, err)

	s := p.Stats()
	assert.Equal(t, 256, s.Used)
	assert.Equal(t, 0, s.Free)
	assert.Equal(t, 1, s.UsedBlocks)
}

func TestFreeCoalescesNeighbours(t *testing.T) {
	p, _ := newTestPool(t, 1024)

	a, err := p.Allocate(64)
	require.NoError(t, err)
	b, err := p.Allocate(64)
	require.NoError(t, err)
	c, err := p.Allocate(64)
	require.NoError(t, err)

	p.Free(a)
	p.Free(b)
	blocks := p.Blocks()
	require.Len(t, blocks, 3)
	assert.Equal(t, BlockInfo{Offset: 0, Size: 128}, blocks[0])
	assert.Equal(t, BlockInfo{Offset: 128, Size: 64, Used: true}, blocks[1])

	p.Free(c)
	assert.Equal(t, []BlockInfo{{Offset: 0, Size: 1024}}, p.Blocks())
	assert.NoError(t, p.CheckIntegrity())
}

func TestFreeBackwardCoalesce(t *testing.T) {
	p, _ := newTestPool(t, 512)

	a, err := p.Allocate(64)
	require.NoError(t, err)
	b, err := p.Allocate(64)
	require.NoError(t, err)
	_, err = p.Allocate(64)
	require.NoError(t, err)

	p.Free(a)
	p.Free(b)

	blocks := p.Blocks()
	require.Len(t, blocks, 3)
	assert.Equal(t, 128, blocks[0].Size)
	assert.False(t, blocks[0].Used)
}

func TestFreeUntrackedIsIgnored(t *testing.T) {
	p, hook := newTestPool(t, 1024)

	buf, err := p.Allocate(64)
	require.NoError(t, err)
	before := p.Stats()

	p.Free(make([]byte, 16))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	// interior slices are not allocations either
	p.Free(buf[8:])
	assert.Equal(t, before, p.Stats())

	p.Free(nil)
	assert.Equal(t, before, p.Stats())
}

func TestDoubleFreeIsIgnored(t *testing.T) {
	p, hook := newTestPool(t, 1024)

	a, err := p.Allocate(64)
	require.NoError(t, err)
	_, err = p.Allocate(64)
	require.NoError(t, err)

	p.Free(a)
	hook.Reset()
	p.Free(a)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "double free ignored", hook.LastEntry().Message)
	assert.NoError(t, p.CheckIntegrity())
}

func TestDescriptorSlotsAreRecycled(t *testing.T) {
	p, _ := newTestPool(t, 1024)

	for i := 0; i < 50; i++ {
		a, err := p.Allocate(64)
		require.NoError(t, err)
		b, err := p.Allocate(64)
		require.NoError(t, err)
		p.Free(a)
		p.Free(b)
	}
	assert.LessOrEqual(t, len(p.blocks), 3)
}

func TestRandomSequencesConserveBytes(t *testing.T) {
	p, _ := newTestPool(t, 8192)
	rng := rand.New(rand.NewSource(7))

	var live [][]byte
	for step := 0; step < 2000; step++ {
		if len(live) > 0 && rng.Intn(3) == 0 {
			i := rng.Intn(len(live))
			p.Free(live[i])
			live = append(live[:i], live[i+1:]...)
		} else {
			size := 1 + rng.Intn(600)
			buf, err := p.Allocate(size)
			if err == nil {
				assert.Len(t, buf, size)
				live = append(live, buf)
			} else {
				require.True(t, errors.Is(err, ErrOutOfMemory))
			}
		}

		s := p.Stats()
		require.Equal(t, s.Total, s.Used+s.Free, "step %d", step)
		require.Equal(t, len(live), s.UsedBlocks, "step %d", step)
		require.NoError(t, p.CheckIntegrity(), "step %d", step)
	}

	for _, buf := range live {
		p.Free(buf)
	}
	assert.Equal(t, []BlockInfo{{Offset: 0, Size: 8192}}, p.Blocks())
}

func TestCheckIntegrityDetectsCorruption(t *testing.T) {
	p, _ := newTestPool(t, 1024)
	_, err := p.Allocate(64)
	require.NoError(t, err)

	p.blocks[p.head].size += DefaultAlignment
	err = p.CheckIntegrity()
	assert.True(t, errors.Is(err, ErrCorrupted))
}

func TestDefragmentKeepsLiveData(t *testing.T) {
	p, _ := newTestPool(t, 2048)

	var bufs [][]byte
	for i := 0; i < 8; i++ {
		buf, err := p.Allocate(100)
		require.NoError(t, err)
		for j := range buf {
			buf[j] = byte(i)
		}
		bufs = append(bufs, buf)
	}
	for i := 0; i < len(bufs); i += 2 {
		p.Free(bufs[i])
	}

	p.Defragment()
	require.NoError(t, p.CheckIntegrity())
	assert.Equal(t, 0, len(p.spare))

	for i := 1; i < len(bufs); i += 2 {
		for _, v := range bufs[i] {
			require.Equal(t, byte(i), v)
		}
		p.Free(bufs[i])
	}
	assert.Equal(t, []BlockInfo{{Offset: 0, Size: 2048}}, p.Blocks())
}

func TestStatsFragmentation(t *testing.T) {
	p, _ := newTestPool(t, 512)

	var bufs [][]byte
	for i := 0; i < 4; i++ {
		buf, err := p.Allocate(128)
		require.NoError(t, err)
		bufs = append(bufs, buf)
	}
	assert.Equal(t, 0.0, p.Stats().Fragmentation)

	p.Free(bufs[0])
	p.Free(bufs[2])

	s := p.Stats()
	assert.Equal(t, 256, s.Free)
	assert.Equal(t, 128, s.LargestFree)
	assert.InDelta(t, 50.0, s.Fragmentation, 1e-9)
}
