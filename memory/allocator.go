// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package memory

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// DefaultBlockSize is the minimum size of a newly created block (4 MiB).
const DefaultBlockSize uint64 = 4 << 20

// Option configures an Allocator.
type Option func(*options)

type options struct {
	blockSize uint64
}

func defaultOptions() options {
	return options{blockSize: DefaultBlockSize}
}

// WithBlockSize sets the minimum size of new blocks.
// Requests larger than the block size get a block of their own.
func WithBlockSize(size uint64) Option {
	return func(o *options) {
		if size > 0 {
			o.blockSize = size
		}
	}
}

// pendingFree is a resource waiting for the frame ring to wrap around.
type pendingFree struct {
	label    string
	eligible uint64
	release  func() error
}

// Allocator sub-allocates buffers and images from large device-memory
// blocks and defers their destruction until no in-flight frame can still
// reference them.
type Allocator struct {
	device         Device
	props          Properties
	blockSize      uint64
	framesInFlight int

	blocks   [][]*Block
	heapUsed []uint64

	frame   uint64
	pending []pendingFree

	destroyed bool
}

// New creates an allocator for device with a ring of framesInFlight frames.
func New(device Device, framesInFlight int, opts ...Option) (*Allocator, error) {
	if framesInFlight <= 0 {
		return nil, errors.Wrapf(ErrInvalidFramesInFlight, "got %d", framesInFlight)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	props := device.MemoryProperties()
	a := &Allocator{
		device:         device,
		props:          props,
		blockSize:      o.blockSize,
		framesInFlight: framesInFlight,
		blocks:         make([][]*Block, len(props.Types)),
		heapUsed:       make([]uint64, len(props.Heaps)),
	}
	slogger().Debug("memory: allocator created",
		"types", len(props.Types),
		"heaps", len(props.Heaps),
		"block_size", o.blockSize,
		"frames_in_flight", framesInFlight)
	return a, nil
}

// FramesInFlight returns the ring size.
func (a *Allocator) FramesInFlight() int { return a.framesInFlight }

// Frame returns the number of completed EndFrame calls.
func (a *Allocator) Frame() uint64 { return a.frame }

// Slot returns the current ring slot, Frame modulo FramesInFlight.
func (a *Allocator) Slot() int { return int(a.frame % uint64(a.framesInFlight)) }

// Blocks returns the blocks allocated from memory type typeIndex.
func (a *Allocator) Blocks(typeIndex int) []*Block {
	if typeIndex < 0 || typeIndex >= len(a.blocks) {
		return nil
	}
	return a.blocks[typeIndex]
}

// AllocateBuffer creates a buffer and binds it to memory with at least the
// required properties.
func (a *Allocator) AllocateBuffer(desc BufferDesc, required PropertyFlags) (*Buffer, error) {
	if a.destroyed {
		return nil, ErrDestroyed
	}
	handle, req, err := a.device.CreateBuffer(desc)
	if err != nil {
		return nil, errors.Wrapf(err, "memory: create buffer %q", desc.Label)
	}
	alloc, err := a.allocate(req, required, desc.Label)
	if err != nil {
		a.device.DestroyBuffer(handle)
		return nil, err
	}
	if err := a.device.BindBufferMemory(handle, alloc.block.memory, alloc.offset); err != nil {
		_ = alloc.block.FreeAllocation(alloc)
		a.device.DestroyBuffer(handle)
		return nil, errors.Wrapf(err, "memory: bind buffer %q", desc.Label)
	}
	return &Buffer{Handle: handle, Desc: desc, Allocation: alloc}, nil
}

// AllocateImage creates an image and binds it to memory with at least the
// required properties.
func (a *Allocator) AllocateImage(desc ImageDesc, required PropertyFlags) (*Image, error) {
	if a.destroyed {
		return nil, ErrDestroyed
	}
	handle, req, err := a.device.CreateImage(desc)
	if err != nil {
		return nil, errors.Wrapf(err, "memory: create image %q", desc.Label)
	}
	alloc, err := a.allocate(req, required, desc.Label)
	if err != nil {
		a.device.DestroyImage(handle)
		return nil, err
	}
	if err := a.device.BindImageMemory(handle, alloc.block.memory, alloc.offset); err != nil {
		_ = alloc.block.FreeAllocation(alloc)
		a.device.DestroyImage(handle)
		return nil, errors.Wrapf(err, "memory: bind image %q", desc.Label)
	}
	return &Image{Handle: handle, Desc: desc, Allocation: alloc}, nil
}

// allocate finds or creates a block for req and claims a range in it.
func (a *Allocator) allocate(req Requirements, required PropertyFlags, label string) (*Allocation, error) {
	typeIndex, err := a.findMemoryType(req.TypeBits, required)
	if err != nil {
		return nil, errors.Wrapf(err, "memory: %q needs %s (type bits 0x%x)", label, required, req.TypeBits)
	}
	size := req.Size
	if size == 0 {
		size = 1
	}

	for _, b := range a.blocks[typeIndex] {
		if b.free < size {
			continue
		}
		if alloc := b.TryFindMemory(size, req.Alignment); alloc != nil {
			return alloc, nil
		}
	}

	b, err := a.newBlock(typeIndex, size, label)
	if err != nil {
		return nil, err
	}
	alloc := b.TryFindMemory(size, req.Alignment)
	if alloc == nil {
		return nil, errors.AssertionFailedf("memory: fresh block of %d bytes cannot hold %d", b.size, size)
	}
	return alloc, nil
}

// newBlock allocates max(blockSize, size) bytes, clamped to the heap's
// remaining capacity.
func (a *Allocator) newBlock(typeIndex int, size uint64, label string) (*Block, error) {
	heapIndex := a.props.Types[typeIndex].HeapIndex
	heap := a.props.Heaps[heapIndex]

	blockSize := max(a.blockSize, size)
	if heap.Size > 0 {
		remaining := heap.Size - min(heap.Size, a.heapUsed[heapIndex])
		blockSize = min(blockSize, remaining)
	}
	if blockSize < size {
		err := errors.Wrapf(ErrOutOfDeviceMemory,
			"%q needs %d bytes, heap %d has %d of %d used",
			label, size, heapIndex, a.heapUsed[heapIndex], heap.Size)
		slogger().Error("memory: heap exhausted",
			"resource", label,
			"size", size,
			"heap", heapIndex,
			"used", a.heapUsed[heapIndex],
			"capacity", heap.Size)
		return nil, err
	}

	mem, err := a.device.AllocateMemory(blockSize, typeIndex)
	if err != nil {
		slogger().Error("memory: device allocation failed",
			"size", blockSize, "type", typeIndex, "err", err)
		return nil, errors.WithSecondaryError(
			errors.Wrapf(ErrOutOfDeviceMemory, "allocate block of %d bytes", blockSize), err)
	}

	b := newBlock(a.device, mem, blockSize, typeIndex, heapIndex)
	a.blocks[typeIndex] = append(a.blocks[typeIndex], b)
	a.heapUsed[heapIndex] += blockSize
	slogger().Debug("memory: block created",
		"size", blockSize,
		"type", typeIndex,
		"heap", heapIndex,
		"blocks", len(a.blocks[typeIndex]))
	return b, nil
}

// findMemoryType returns the first type allowed by typeBits whose
// properties contain required.
func (a *Allocator) findMemoryType(typeBits uint32, required PropertyFlags) (int, error) {
	for i, t := range a.props.Types {
		if i >= 32 {
			break
		}
		if typeBits&(1<<uint(i)) == 0 {
			continue
		}
		if t.Properties.Contains(required) {
			return i, nil
		}
	}
	return -1, ErrNoMemoryType
}

// DeallocateBuffer queues b for destruction once every frame that may still
// reference it has completed.
func (a *Allocator) DeallocateBuffer(b *Buffer) {
	if b == nil {
		return
	}
	a.enqueue(b.Desc.Label, func() error { return a.FreeBuffer(b) })
}

// DeallocateImage queues img for destruction once every frame that may still
// reference it has completed.
func (a *Allocator) DeallocateImage(img *Image) {
	if img == nil {
		return
	}
	a.enqueue(img.Desc.Label, func() error { return a.FreeImage(img) })
}

func (a *Allocator) enqueue(label string, release func() error) {
	a.pending = append(a.pending, pendingFree{
		label:    label,
		eligible: a.frame + uint64(a.framesInFlight),
		release:  release,
	})
}

// FreeBuffer destroys b and releases its range immediately.
// The caller must ensure the device no longer uses it.
func (a *Allocator) FreeBuffer(b *Buffer) error {
	if b == nil || b.Allocation == nil {
		return nil
	}
	a.device.DestroyBuffer(b.Handle)
	err := b.Allocation.block.FreeAllocation(b.Allocation)
	b.Allocation = nil
	return err
}

// FreeImage destroys img and releases its range immediately.
// The caller must ensure the device no longer uses it.
func (a *Allocator) FreeImage(img *Image) error {
	if img == nil || img.Allocation == nil {
		return nil
	}
	a.device.DestroyImage(img.Handle)
	err := img.Allocation.block.FreeAllocation(img.Allocation)
	img.Allocation = nil
	return err
}

// Pending returns the number of resources waiting for destruction.
func (a *Allocator) Pending() int { return len(a.pending) }

// EndFrame advances the frame counter and destroys every queued resource
// whose eligible frame has been reached.
func (a *Allocator) EndFrame() {
	a.frame++
	kept := a.pending[:0]
	for _, p := range a.pending {
		if p.eligible > a.frame {
			kept = append(kept, p)
			continue
		}
		if err := p.release(); err != nil {
			slogger().Warn("memory: deferred release failed", "resource", p.label, "err", err)
		}
	}
	clear(a.pending[len(kept):])
	a.pending = kept
}

// Destroy releases every pending resource and all blocks.
// Blocks that still hold live allocations are freed with a warning.
func (a *Allocator) Destroy() {
	if a.destroyed {
		return
	}
	for _, p := range a.pending {
		if err := p.release(); err != nil {
			slogger().Warn("memory: release failed", "resource", p.label, "err", err)
		}
	}
	a.pending = nil

	for typeIndex, blocks := range a.blocks {
		for _, b := range blocks {
			if n := b.InUse(); n > 0 {
				slogger().Warn("memory: freeing block with live allocations",
					"type", typeIndex, "live", n, "size", b.size)
			}
			if b.mapCount > 0 {
				a.device.UnmapMemory(b.memory)
			}
			a.device.FreeMemory(b.memory)
		}
		a.blocks[typeIndex] = nil
	}
	clear(a.heapUsed)
	a.destroyed = true
}

// Stats summarises the allocator's blocks.
type Stats struct {
	Blocks        int
	Allocations   int
	ReservedBytes uint64
	UsedBytes     uint64
	Pending       int
	Frame         uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	util := 0.0
	if s.ReservedBytes > 0 {
		util = float64(s.UsedBytes) / float64(s.ReservedBytes) * 100
	}
	return fmt.Sprintf("Memory[%d blocks, %d allocations, %d/%d KiB used (%.1f%%), %d pending, frame %d]",
		s.Blocks, s.Allocations, s.UsedBytes/1024, s.ReservedBytes/1024, util, s.Pending, s.Frame)
}

// Stats returns a snapshot of block usage.
func (a *Allocator) Stats() Stats {
	s := Stats{Pending: len(a.pending), Frame: a.frame}
	for _, blocks := range a.blocks {
		for _, b := range blocks {
			s.Blocks++
			s.ReservedBytes += b.size
			s.UsedBytes += b.size - b.free
			s.Allocations += b.InUse()
		}
	}
	return s
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("blocks", s.Blocks),
		slog.Int("allocations", s.Allocations),
		slog.Uint64("reserved", s.ReservedBytes),
		slog.Uint64("used", s.UsedBytes),
		slog.Int("pending", s.Pending),
		slog.Uint64("frame", s.Frame),
	)
}
