package framegraph

import "github.com/gogpu/framegraph/memory"

// ExecutionContext is passed to a pass's record callback once per frame.
// It is only valid for the duration of the callback.
type ExecutionContext struct {
	// Frame is the frame-ring slot being recorded.
	Frame int
	// FrameNumber counts executed frames since the graph was compiled.
	FrameNumber uint64
	// ImageIndex is the acquired swapchain image, or -1 when no pass
	// writes the backbuffer.
	ImageIndex int

	// Cmd is the command buffer of the pass's queue family.
	Cmd CommandBuffer
	// RenderPass and Framebuffer are nil for passes without attachments.
	RenderPass  RenderPass
	Framebuffer Framebuffer
	// Extent is the render area of the pass, or the swapchain extent for
	// passes without attachments.
	Extent Extent

	Caches *Caches

	graph *RenderGraph
	pass  *PassDescription
}

// Pass returns the pass being recorded.
func (c *ExecutionContext) Pass() *PassDescription { return c.pass }

// SwapchainExtent returns the current swapchain extent.
func (c *ExecutionContext) SwapchainExtent() Extent { return c.graph.extent }

// Image returns the physical image of name for this frame.
func (c *ExecutionContext) Image(name string) *memory.Image {
	return c.graph.physical.image(name, c.Frame)
}

// ImageView returns the view of name for this frame. The backbuffer
// resolves to the acquired swapchain image.
func (c *ExecutionContext) ImageView(name string) ImageView {
	if name == Backbuffer {
		if c.ImageIndex < 0 {
			return nil
		}
		return c.graph.swapchain.ImageView(c.ImageIndex)
	}
	return c.graph.physical.view(name, c.Frame)
}

// Buffer returns the physical buffer of name for this frame.
func (c *ExecutionContext) Buffer(name string) *memory.Buffer {
	return c.graph.physical.buffer(name, c.Frame)
}

// InitContext is passed to a pass's initialisation callback.
type InitContext struct {
	Device    Device
	Allocator *memory.Allocator
	Caches    *Caches
	// RenderPass is the pass's render pass, or nil.
	RenderPass     RenderPass
	FramesInFlight int
	// Extent is the swapchain extent at compile time.
	Extent Extent

	pass     *PassDescription
	physical *physicalResources
}

// Pass returns the pass being initialised.
func (c *InitContext) Pass() *PassDescription { return c.pass }

// Image returns the physical image of name for slot.
func (c *InitContext) Image(name string, slot int) *memory.Image { return c.physical.image(name, slot) }

// ImageView returns the view of name for slot.
func (c *InitContext) ImageView(name string, slot int) ImageView { return c.physical.view(name, slot) }

// Buffer returns the physical buffer of name for slot.
func (c *InitContext) Buffer(name string, slot int) *memory.Buffer {
	return c.physical.buffer(name, slot)
}
