// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package memory implements a frame-aware sub-allocator for GPU resources.
//
// Device memory is requested from the driver in a small number of large
// blocks. Each [Block] is partitioned into an offset-ordered list of
// [Allocation] records that together cover the block exactly. Buffers and
// images are carved out of blocks with a best-fit search, and released
// ranges are coalesced with free neighbours.
//
// # Frames in flight
//
// The CPU records frame N+1 while the GPU may still be executing frame N.
// A resource released with [Allocator.DeallocateBuffer] or
// [Allocator.DeallocateImage] therefore stays alive until the ring has
// wrapped around:
//
//	alloc, _ := memory.New(device, 3)
//	buf, _ := alloc.AllocateBuffer(desc, memory.PropertyDeviceLocal)
//	alloc.DeallocateBuffer(buf) // still valid for the next two frames
//	alloc.EndFrame()
//
// [Allocator.EndFrame] advances the frame counter and destroys every queued
// resource whose eligible frame has been reached. [Allocator.FreeBuffer] and
// [Allocator.FreeImage] release immediately and are meant for teardown when
// the device is idle.
//
// # Thread Safety
//
// The allocator is driven by the render thread and is not safe for
// concurrent use.
package memory
