package native

import "time"

// Default device settings.
const (
	DefaultDeviceLocalHeap = 2 << 30
	DefaultHostHeap        = 256 << 20
	DefaultPollInterval    = 100 * time.Microsecond
)

// DeviceOption configures a Device.
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	deviceLocalHeap uint64
	hostHeap        uint64
	pollInterval    time.Duration
	frameTimeout    time.Duration
}

func defaultDeviceOptions() deviceOptions {
	return deviceOptions{
		deviceLocalHeap: DefaultDeviceLocalHeap,
		hostHeap:        DefaultHostHeap,
		pollInterval:    DefaultPollInterval,
	}
}

// WithHeapSizes sets the budgets reported for the device-local and host
// heaps. Zero leaves a heap unlimited.
func WithHeapSizes(deviceLocal, host uint64) DeviceOption {
	return func(o *deviceOptions) {
		o.deviceLocalHeap = deviceLocal
		o.hostHeap = host
	}
}

// WithPollInterval sets how often WaitFrame polls the queue.
func WithPollInterval(d time.Duration) DeviceOption {
	return func(o *deviceOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithFrameTimeout makes WaitFrame fail with ErrFrameTimeout after d.
// By default, and for d <= 0, WaitFrame waits until the work completes.
func WithFrameTimeout(d time.Duration) DeviceOption {
	return func(o *deviceOptions) {
		o.frameTimeout = max(d, 0)
	}
}
