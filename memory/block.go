package memory

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// Block is one device-memory allocation partitioned into Allocation records.
//
// The records are kept sorted by offset and always cover [0, Size) exactly:
// there are no gaps and no overlaps, and no two free records are adjacent.
type Block struct {
	device    Device
	memory    any
	size      uint64
	typeIndex int
	heapIndex int

	allocations []*Allocation
	free        uint64

	mapCount int
	mapped   []byte
}

// newBlock wraps a freshly allocated memory object in a single free record.
func newBlock(device Device, mem any, size uint64, typeIndex, heapIndex int) *Block {
	b := &Block{
		device:    device,
		memory:    mem,
		size:      size,
		typeIndex: typeIndex,
		heapIndex: heapIndex,
		free:      size,
	}
	b.allocations = []*Allocation{{offset: 0, size: size, block: b}}
	return b
}

// Memory returns the device memory handle backing the block.
func (b *Block) Memory() any { return b.memory }

// Size returns the block size in bytes.
func (b *Block) Size() uint64 { return b.size }

// Free returns the total number of free bytes, which may be fragmented.
func (b *Block) Free() uint64 { return b.free }

// TypeIndex returns the memory type the block was allocated from.
func (b *Block) TypeIndex() int { return b.typeIndex }

// HeapIndex returns the heap the block was allocated from.
func (b *Block) HeapIndex() int { return b.heapIndex }

// Allocations returns a copy of the offset-ordered record list.
func (b *Block) Allocations() []*Allocation {
	return slices.Clone(b.allocations)
}

// InUse returns the number of records claimed by resources.
func (b *Block) InUse() int {
	n := 0
	for _, a := range b.allocations {
		if a.inUse {
			n++
		}
	}
	return n
}

// TryFindMemory claims a range of at least size bytes whose offset is a
// multiple of alignment. The smallest free record that fits is chosen;
// ties go to the lowest offset. It returns nil when no record fits.
//
// An exact fit is claimed in place. Otherwise the record is split into an
// optional free padding prefix, the claimed range, and a free remainder.
func (b *Block) TryFindMemory(size, alignment uint64) *Allocation {
	if size == 0 || size > b.free {
		return nil
	}
	if alignment == 0 {
		alignment = 1
	}

	best := -1
	var bestPad uint64
	for i, a := range b.allocations {
		if a.inUse {
			continue
		}
		pad := alignUp(a.offset, alignment) - a.offset
		if pad+size > a.size {
			continue
		}
		if best < 0 || a.size < b.allocations[best].size {
			best = i
			bestPad = pad
		}
	}
	if best < 0 {
		return nil
	}

	a := b.allocations[best]
	var inserted []*Allocation
	if bestPad > 0 {
		inserted = append(inserted, &Allocation{offset: a.offset, size: bestPad, block: b})
		a.offset += bestPad
		a.size -= bestPad
	}
	inserted = append(inserted, a)
	if rest := a.size - size; rest > 0 {
		inserted = append(inserted, &Allocation{offset: a.offset + size, size: rest, block: b})
		a.size = size
	}
	a.inUse = true
	b.free -= size

	b.allocations = slices.Replace(b.allocations, best, best+1, inserted...)
	return a
}

// FreeAllocation returns a claimed range to the block and merges it with
// any free neighbours.
func (b *Block) FreeAllocation(a *Allocation) error {
	if a == nil || a.block != b {
		return ErrForeignAllocation
	}
	if !a.inUse {
		return ErrDoubleFree
	}
	i := b.indexOf(a)
	if i < 0 {
		return errors.Wrapf(ErrForeignAllocation, "offset %d not found", a.offset)
	}

	a.inUse = false
	b.free += a.size

	if i+1 < len(b.allocations) && !b.allocations[i+1].inUse {
		next := b.allocations[i+1]
		a.size += next.size
		next.block = nil
		b.allocations = slices.Delete(b.allocations, i+1, i+2)
	}
	if i > 0 && !b.allocations[i-1].inUse {
		prev := b.allocations[i-1]
		prev.size += a.size
		a.block = nil
		b.allocations = slices.Delete(b.allocations, i, i+1)
	}
	return nil
}

// indexOf finds a record by offset with a binary search.
func (b *Block) indexOf(a *Allocation) int {
	i, found := slices.BinarySearchFunc(b.allocations, a.offset, func(r *Allocation, off uint64) int {
		switch {
		case r.offset < off:
			return -1
		case r.offset > off:
			return 1
		}
		return 0
	})
	if !found || b.allocations[i] != a {
		return -1
	}
	return i
}

// Map maps the whole block, reusing an existing mapping when one is active.
func (b *Block) Map() ([]byte, error) {
	if b.mapCount == 0 {
		data, err := b.device.MapMemory(b.memory, 0, b.size)
		if err != nil {
			return nil, errors.Wrapf(err, "memory: map block of %d bytes", b.size)
		}
		b.mapped = data
	}
	b.mapCount++
	return b.mapped, nil
}

// Unmap drops one mapping reference and unmaps the block at zero.
func (b *Block) Unmap() error {
	if b.mapCount == 0 {
		return ErrNotMapped
	}
	b.mapCount--
	if b.mapCount == 0 {
		b.device.UnmapMemory(b.memory)
		b.mapped = nil
	}
	return nil
}

// MapCount returns the number of outstanding Map calls.
func (b *Block) MapCount() int { return b.mapCount }

// Validate checks the partition invariant.
func (b *Block) Validate() error {
	var next, free uint64
	for i, a := range b.allocations {
		if a.block != b {
			return errors.Newf("memory: record %d has wrong owner", i)
		}
		if a.size == 0 {
			return errors.Newf("memory: record %d is empty", i)
		}
		if a.offset != next {
			return errors.Newf("memory: record %d starts at %d, want %d", i, a.offset, next)
		}
		if !a.inUse {
			free += a.size
			if i > 0 && !b.allocations[i-1].inUse {
				return errors.Newf("memory: records %d and %d are both free", i-1, i)
			}
		}
		next = a.End()
	}
	if next != b.size {
		return errors.Newf("memory: records cover %d bytes, block has %d", next, b.size)
	}
	if free != b.free {
		return errors.Newf("memory: free counter %d, records sum to %d", b.free, free)
	}
	return nil
}

func alignUp(v, alignment uint64) uint64 {
	if r := v % alignment; r != 0 {
		return v + alignment - r
	}
	return v
}
