// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/memory"
)

// MaxColorAttachments is the number of color attachments a pass may write.
const MaxColorAttachments = 8

// ImageView, RenderPass and Framebuffer are opaque backend handles. They must
// be comparable because they take part in cache keys.
type (
	ImageView   any
	RenderPass  any
	Framebuffer any
)

// ImageViewDesc describes a view over a whole 2D image.
type ImageViewDesc struct {
	Label  string
	Format gputypes.TextureFormat
	Aspect gputypes.TextureAspect
}

// AttachmentKey is the structural part of one render-pass attachment.
type AttachmentKey struct {
	Format        gputypes.TextureFormat
	SampleCount   uint32
	LoadOp        gputypes.LoadOp
	StoreOp       gputypes.StoreOp
	InitialLayout Layout
	FinalLayout   Layout
}

// RenderPassKey identifies a render pass by its attachment structure.
type RenderPassKey struct {
	ColorCount int
	Colors     [MaxColorAttachments]AttachmentKey
	HasDepth   bool
	Depth      AttachmentKey
}

// FramebufferKey identifies a framebuffer by its render pass, views and
// extent. Views holds the color views followed by the depth view.
type FramebufferKey struct {
	RenderPass RenderPass
	ViewCount  int
	Views      [MaxColorAttachments + 1]ImageView
	Extent     Extent
}

// RenderPassBegin carries the per-use parameters of a render pass.
type RenderPassBegin struct {
	Label        string
	Extent       Extent
	ClearColors  [MaxColorAttachments]gputypes.Color
	ClearDepth   float32
	ClearStencil uint32
}

// Barrier is a synchronization point for one resource between two accesses.
type Barrier struct {
	Resource string
	Kind     ResourceKind

	// Image or Buffer is the physical handle for the frame being recorded.
	// Both are nil in the compiled templates returned by RenderGraph.Barriers.
	Image  any
	Buffer any
	// Offset and Size are the byte range of Buffer the barrier covers.
	Offset uint64
	Size   uint64

	SrcStages PipelineStage
	DstStages PipelineStage
	SrcAccess AccessFlags
	DstAccess AccessFlags
	OldLayout Layout
	NewLayout Layout
}

// CommandBuffer records GPU work for one queue family and frame slot.
type CommandBuffer interface {
	Begin(label string) error
	End() error
	// Discard abandons the recording. It does nothing when the buffer is
	// not recording.
	Discard()
	PipelineBarrier(barriers []Barrier)
	BeginRenderPass(rp RenderPass, fb Framebuffer, begin RenderPassBegin) error
	EndRenderPass()
}

// CommandPool owns a fixed number of command buffers per frame slot.
type CommandPool interface {
	CommandBuffer(slot, index int) CommandBuffer
	Destroy()
}

// Device is the GPU device a graph compiles against.
type Device interface {
	memory.Device

	CreateImageView(image any, desc ImageViewDesc) (ImageView, error)
	DestroyImageView(view ImageView)

	CreateRenderPass(key RenderPassKey) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(key FramebufferKey) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	// CreateCommandPool creates a pool with buffers command buffers for each
	// of slots frame slots.
	CreateCommandPool(family QueueFamily, slots, buffers int) (CommandPool, error)

	// WaitFrame blocks until the GPU has finished the work last submitted
	// for slot.
	WaitFrame(slot int) error
	// Submit queues a finished command buffer on family for slot.
	Submit(family QueueFamily, cmd CommandBuffer, slot int) error
}

// Swapchain is the presentable image ring.
type Swapchain interface {
	Extent() Extent
	Format() gputypes.TextureFormat
	FramesInFlight() int
	ImageCount() int
	// Image and ImageView return the image at index. The view must stay the
	// same value across frames so framebuffers can be cached.
	Image(index int) any
	ImageView(index int) ImageView
	// AcquireNextImage returns the index of the next presentable image.
	// It returns an error matching ErrSurfaceOutdated when the surface
	// must be reconfigured.
	AcquireNextImage(slot int) (int, error)
	Present(slot, imageIndex int) error
}
