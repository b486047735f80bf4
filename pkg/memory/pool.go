// Package memory provides the fixed-region sample pool used for capture
// buffers and the manager that watches it.
package memory

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultAlignment is the allocation granularity in bytes
	DefaultAlignment = 32

	// blockHeaderSize is the bookkeeping cost charged when deciding to split
	blockHeaderSize = 24

	nilIndex = -1
)

// block describes one contiguous range of the region. Links are indices into
// Pool.blocks, never pointers.
type block struct {
	offset int
	size   int
	used   bool
	next   int
	prev   int
}

// BlockInfo is a read-only view of one block, in region order
type BlockInfo struct {
	Offset int
	Size   int
	Used   bool
}

// Stats summarises pool usage
type Stats struct {
	Total         int
	Used          int
	Free          int
	LargestFree   int
	UsedBlocks    int
	FreeBlocks    int
	Fragmentation float64 // percent, 0 when nothing is free
}

// Pool is a best-fit allocator over a single fixed byte region.
type Pool struct {
	mu        sync.Mutex
	region    []byte
	blocks    []block
	spare     []int // released descriptor slots
	head      int
	alignment int
	log       logrus.FieldLogger
}

// NewPool creates a pool of size bytes. size must be a positive multiple of
// alignment and alignment a power of two.
func NewPool(size, alignment int, log logrus.FieldLogger) (*Pool, error) {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "alignment %d is not a power of two", alignment)
	}
	if size <= 0 || size%alignment != 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "pool size %d is not a positive multiple of %d", size, alignment)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	p := &Pool{
		region:    make([]byte, size),
		blocks:    []block{{offset: 0, size: size, next: nilIndex, prev: nilIndex}},
		head:      0,
		alignment: alignment,
		log:       log.WithField("component", "mempool"),
	}
	return p, nil
}

// Size returns the region size in bytes
func (p *Pool) Size() int {
	return len(p.region)
}

// AlignSize rounds size up to the pool alignment
func (p *Pool) AlignSize(size int) int {
	return (size + p.alignment - 1) &^ (p.alignment - 1)
}

// Allocate returns a slice of exactly size bytes carved from the smallest free
// block that fits. It returns ErrOutOfMemory when nothing fits.
func (p *Pool) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrZeroSize
	}
	aligned := p.AlignSize(size)

	p.mu.Lock()
	defer p.mu.Unlock()

	best := nilIndex
	minWaste := math.MaxInt
	for i := p.head; i != nilIndex; i = p.blocks[i].next {
		b := &p.blocks[i]
		if b.used || b.size < aligned {
			continue
		}
		waste := b.size - aligned
		if waste < minWaste {
			best = i
			minWaste = waste
		}
		if waste == 0 {
			break
		}
	}

	if best == nilIndex {
		return nil, ErrOutOfMemory
	}

	if p.blocks[best].size > aligned+blockHeaderSize+p.alignment {
		p.split(best, aligned)
	}
	p.blocks[best].used = true

	offset := p.blocks[best].offset
	return p.region[offset : offset+size : offset+size], nil
}

// split shrinks block i to size and links a free block covering the rest
func (p *Pool) split(i, size int) {
	b := p.blocks[i]
	idx := p.newBlock(block{
		offset: b.offset + size,
		size:   b.size - size,
		next:   b.next,
		prev:   i,
	})
	if b.next != nilIndex {
		p.blocks[b.next].prev = idx
	}
	p.blocks[i].size = size
	p.blocks[i].next = idx
}

func (p *Pool) newBlock(b block) int {
	if n := len(p.spare); n > 0 {
		idx := p.spare[n-1]
		p.spare = p.spare[:n-1]
		p.blocks[idx] = b
		return idx
	}
	p.blocks = append(p.blocks, b)
	return len(p.blocks) - 1
}

func (p *Pool) release(idx int) {
	p.blocks[idx] = block{offset: nilIndex, next: nilIndex, prev: nilIndex}
	p.spare = append(p.spare, idx)
}

// Free returns buf to the pool and merges it with free neighbours. Buffers
// the pool does not own are logged and ignored.
func (p *Pool) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	ptr := &buf[:1][0]

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := p.head; i != nilIndex; i = p.blocks[i].next {
		b := &p.blocks[i]
		if &p.region[b.offset] != ptr {
			continue
		}
		if !b.used {
			p.log.WithField("offset", b.offset).Warn("double free ignored")
			return
		}
		b.used = false
		p.coalesce(i)
		return
	}

	p.log.Warn("free of untracked buffer ignored")
}

// coalesce merges block i forward and then backward with free neighbours
func (p *Pool) coalesce(i int) {
	for next := p.blocks[i].next; next != nilIndex && !p.blocks[next].used; next = p.blocks[i].next {
		after := p.blocks[next].next
		p.blocks[i].size += p.blocks[next].size
		p.blocks[i].next = after
		if after != nilIndex {
			p.blocks[after].prev = i
		}
		p.release(next)
	}

	for prev := p.blocks[i].prev; prev != nilIndex && !p.blocks[prev].used; prev = p.blocks[i].prev {
		after := p.blocks[i].next
		p.blocks[prev].size += p.blocks[i].size
		p.blocks[prev].next = after
		if after != nilIndex {
			p.blocks[after].prev = prev
		}
		p.release(i)
		i = prev
	}
}

// Stats returns a usage summary
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Pool) statsLocked() Stats {
	s := Stats{Total: len(p.region)}
	for i := p.head; i != nilIndex; i = p.blocks[i].next {
		b := p.blocks[i]
		if b.used {
			s.Used += b.size
			s.UsedBlocks++
			continue
		}
		s.Free += b.size
		s.FreeBlocks++
		if b.size > s.LargestFree {
			s.LargestFree = b.size
		}
	}
	if s.Free > 0 {
		s.Fragmentation = 100 * (1 - float64(s.LargestFree)/float64(s.Free))
	}
	return s
}

// Blocks returns the block list in region order
func (p *Pool) Blocks() []BlockInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []BlockInfo
	for i := p.head; i != nilIndex; i = p.blocks[i].next {
		b := p.blocks[i]
		out = append(out, BlockInfo{Offset: b.offset, Size: b.size, Used: b.used})
	}
	return out
}

// CheckIntegrity walks the block list and verifies contiguous, non-overlapping
// coverage of the region with consistent back links.
func (p *Pool) CheckIntegrity() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	expected := 0
	prev := nilIndex
	steps := 0
	for i := p.head; i != nilIndex; i = p.blocks[i].next {
		if steps++; steps > len(p.blocks) {
			return errors.Wrap(ErrCorrupted, "block list contains a cycle")
		}
		b := p.blocks[i]
		if b.offset != expected {
			return errors.Wrapf(ErrCorrupted, "block %d starts at %d, expected %d", i, b.offset, expected)
		}
		if b.size <= 0 {
			return errors.Wrapf(ErrCorrupted, "block %d has size %d", i, b.size)
		}
		if b.prev != prev {
			return errors.Wrapf(ErrCorrupted, "block %d back link is %d, expected %d", i, b.prev, prev)
		}
		expected += b.size
		prev = i
	}

	if expected != len(p.region) {
		return errors.Wrapf(ErrCorrupted, "blocks cover %d of %d bytes", expected, len(p.region))
	}
	return nil
}

// Defragment merges any adjacent free blocks and compacts the descriptor
// arena. Live allocations are never moved. It returns the number of merges.
func (p *Pool) Defragment() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	merged := 0
	for i := p.head; i != nilIndex; i = p.blocks[i].next {
		for next := p.blocks[i].next; !p.blocks[i].used && next != nilIndex && !p.blocks[next].used; next = p.blocks[i].next {
			after := p.blocks[next].next
			p.blocks[i].size += p.blocks[next].size
			p.blocks[i].next = after
			if after != nilIndex {
				p.blocks[after].prev = i
			}
			p.release(next)
			merged++
		}
	}

	compact := make([]block, 0, len(p.blocks)-len(p.spare))
	for i := p.head; i != nilIndex; i = p.blocks[i].next {
		b := p.blocks[i]
		idx := len(compact)
		b.prev = idx - 1
		b.next = idx + 1
		compact = append(compact, b)
	}
	compact[len(compact)-1].next = nilIndex
	p.blocks = compact
	p.spare = p.spare[:0]
	p.head = 0

	return merged
}
