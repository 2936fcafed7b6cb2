package memory

import "github.com/cockroachdb/errors"

// Allocator errors.
var (
	// ErrOutOfDeviceMemory is returned when no block can satisfy a request and
	// the heap has no room for a new one.
	ErrOutOfDeviceMemory = errors.New("memory: out of device memory")

	// ErrNoMemoryType is returned when no memory type matches both the
	// resource's type bits and the requested property flags.
	ErrNoMemoryType = errors.New("memory: no compatible memory type")

	// ErrForeignAllocation is returned when an allocation is released into a
	// block that does not own it.
	ErrForeignAllocation = errors.New("memory: allocation belongs to another block")

	// ErrDoubleFree is returned when an allocation that is already free is
	// released again.
	ErrDoubleFree = errors.New("memory: allocation already free")

	// ErrInvalidFramesInFlight is returned by New for a non-positive ring size.
	ErrInvalidFramesInFlight = errors.New("memory: frames in flight must be positive")

	// ErrNotMapped is returned by Unmap on a block with no active mapping.
	ErrNotMapped = errors.New("memory: block is not mapped")

	// ErrDestroyed is returned when using an allocator after Destroy.
	ErrDestroyed = errors.New("memory: allocator destroyed")
)
