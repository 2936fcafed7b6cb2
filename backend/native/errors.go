package native

import "github.com/cockroachdb/errors"

// Native backend errors.
var (
	// ErrNilHAL is returned when a constructor receives a nil HAL device,
	// queue or surface.
	ErrNilHAL = errors.New("native: HAL object is nil")

	// ErrProvider is returned when a device provider does not expose HAL
	// types.
	ErrProvider = errors.New("native: provider does not expose HAL device and queue")

	// ErrForeignHandle is returned when a handle created by another backend
	// is passed to the device.
	ErrForeignHandle = errors.New("native: handle was not created by this device")

	// ErrUnknownMemoryType is returned for a memory type index outside the
	// device's table.
	ErrUnknownMemoryType = errors.New("native: unknown memory type")

	// ErrNotMappable is returned when mapping device-local memory.
	ErrNotMappable = errors.New("native: memory is not host visible")

	// ErrFrameTimeout is returned by WaitFrame when the GPU does not finish a
	// frame slot in time.
	ErrFrameTimeout = errors.New("native: timed out waiting for frame")

	// ErrNotRecording is returned when ending or submitting a command buffer
	// that was not begun.
	ErrNotRecording = errors.New("native: command buffer is not recording")

	// ErrUnsupportedFormat is returned when sizing a texture whose format has
	// no known texel size.
	ErrUnsupportedFormat = errors.New("native: unsupported texture format")
)
