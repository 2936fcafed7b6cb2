// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements framegraph.Device on top of gogpu/wgpu/hal.
//
// The HAL has no explicit device memory, so the device exposes a small
// synthetic memory model to the frame-ring allocator:
//
//	type 0  device-local  heap 0  textures and GPU-only buffers
//	type 1  upload        heap 1  MapWrite|CopySrc staging buffers
//	type 2  readback      heap 1  MapRead|CopyDst readback buffers
//
// Blocks of the upload and readback types are backed by one mappable
// hal.Buffer each, and buffers allocated from them are ranges of that
// buffer. Device-local resources get a dedicated HAL object; the block only
// accounts for their size against the heap budget.
//
// Layouts are translated to texture usage transitions, and render passes and
// framebuffers are plain descriptions resolved into a
// hal.RenderPassDescriptor when the pass begins.
//
// Usage:
//
//	device, err := native.NewDeviceFromProvider(provider)
//	swapchain, err := native.NewSurfaceSwapchain(device, surface, native.SurfaceConfig{...})
//	allocator, err := memory.New(device, swapchain.FramesInFlight())
//	b := framegraph.NewGraphBuilder(device, swapchain, allocator)
package native
