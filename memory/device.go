package memory

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// PropertyFlags describes the properties of a memory type.
type PropertyFlags uint32

const (
	// PropertyDeviceLocal memory is fastest for GPU access.
	PropertyDeviceLocal PropertyFlags = 1 << iota

	// PropertyHostVisible memory can be mapped into the CPU address space.
	PropertyHostVisible

	// PropertyHostCoherent memory needs no explicit flush or invalidate.
	PropertyHostCoherent

	// PropertyHostCached memory is cached on the CPU side.
	PropertyHostCached
)

// Contains reports whether all bits of other are set in p.
func (p PropertyFlags) Contains(other PropertyFlags) bool {
	return p&other == other
}

// String returns a "|"-joined list of flag names.
func (p PropertyFlags) String() string {
	if p == 0 {
		return "None"
	}
	var parts []string
	names := []struct {
		flag PropertyFlags
		name string
	}{
		{PropertyDeviceLocal, "DeviceLocal"},
		{PropertyHostVisible, "HostVisible"},
		{PropertyHostCoherent, "HostCoherent"},
		{PropertyHostCached, "HostCached"},
	}
	for _, n := range names {
		if p&n.flag != 0 {
			parts = append(parts, n.name)
			p &^= n.flag
		}
	}
	if p != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(p)))
	}
	return strings.Join(parts, "|")
}

// MemoryType is one entry of the device's memory type table.
type MemoryType struct {
	Properties PropertyFlags
	HeapIndex  int
}

// MemoryHeap is a physical memory pool. A Size of zero means the device does
// not report a limit.
type MemoryHeap struct {
	Size        uint64
	DeviceLocal bool
}

// Properties is the memory type and heap table reported by a device.
type Properties struct {
	Types []MemoryType
	Heaps []MemoryHeap
}

// Requirements describes what a resource needs from the memory it is bound
// to. Bit i of TypeBits is set when memory type i is acceptable.
type Requirements struct {
	Size      uint64
	Alignment uint64
	TypeBits  uint32
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// ImageDesc describes a 2D image to create.
type ImageDesc struct {
	Label         string
	Width         uint32
	Height        uint32
	Format        gputypes.TextureFormat
	Usage         gputypes.TextureUsage
	SampleCount   uint32
	MipLevelCount uint32
}

// Device is the subset of a GPU device the allocator needs.
//
// Handles returned by the device are opaque to the allocator and are passed
// back unchanged.
type Device interface {
	// MemoryProperties returns the memory type and heap table.
	MemoryProperties() Properties

	// AllocateMemory allocates a block of device memory of the given type.
	AllocateMemory(size uint64, typeIndex int) (any, error)
	// FreeMemory releases a block returned by AllocateMemory.
	FreeMemory(mem any)
	// MapMemory maps a range of host-visible memory.
	MapMemory(mem any, offset, size uint64) ([]byte, error)
	// UnmapMemory releases a mapping created by MapMemory.
	UnmapMemory(mem any)

	// CreateBuffer creates an unbound buffer and reports its requirements.
	CreateBuffer(desc BufferDesc) (any, Requirements, error)
	// BindBufferMemory binds buffer to mem at offset.
	BindBufferMemory(buffer, mem any, offset uint64) error
	// DestroyBuffer destroys a buffer created by CreateBuffer.
	DestroyBuffer(buffer any)

	// CreateImage creates an unbound image and reports its requirements.
	CreateImage(desc ImageDesc) (any, Requirements, error)
	// BindImageMemory binds image to mem at offset.
	BindImageMemory(image, mem any, offset uint64) error
	// DestroyImage destroys an image created by CreateImage.
	DestroyImage(image any)
}
