package native

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph"
)

// CommandPool owns the command buffers of a queue family, perSlot of them
// for every frame slot.
type CommandPool struct {
	family  framegraph.QueueFamily
	perSlot int
	buffers []*CommandBuffer
}

// CommandBuffer returns command buffer index of slot.
func (p *CommandPool) CommandBuffer(slot, index int) framegraph.CommandBuffer {
	return p.buffers[slot*p.perSlot+index]
}

// Destroy destroys every encoder of the pool.
func (p *CommandPool) Destroy() {
	for _, c := range p.buffers {
		c.Discard()
		c.encoder.Destroy()
	}
	p.buffers = nil
}

// CommandBuffer records into a HAL command encoder. Record callbacks reach
// the encoder through Encoder and the open render pass through
// RenderPassEncoder.
type CommandBuffer struct {
	encoder hal.CommandEncoder
	family  framegraph.QueueFamily
	slot    int

	recording bool
	pass      hal.RenderPassEncoder
	// after holds the attachment transitions recorded when the open render
	// pass ends.
	after    []hal.TextureBarrier
	finished hal.CommandBuffer
}

var _ framegraph.CommandBuffer = (*CommandBuffer)(nil)

// Encoder returns the HAL command encoder.
func (c *CommandBuffer) Encoder() hal.CommandEncoder { return c.encoder }

// RenderPassEncoder returns the open render pass, or nil outside one.
func (c *CommandBuffer) RenderPassEncoder() hal.RenderPassEncoder { return c.pass }

// Family returns the queue family the buffer records for.
func (c *CommandBuffer) Family() framegraph.QueueFamily { return c.family }

// Begin starts recording.
func (c *CommandBuffer) Begin(label string) error {
	if err := c.encoder.BeginEncoding(label); err != nil {
		return errors.Wrapf(err, "native: begin %s slot %d", c.family, c.slot)
	}
	c.recording = true
	c.finished = nil
	return nil
}

// End finishes recording. The result is submitted by Device.Submit.
func (c *CommandBuffer) End() error {
	if !c.recording {
		return errors.Wrapf(ErrNotRecording, "end %s slot %d", c.family, c.slot)
	}
	if c.pass != nil {
		c.EndRenderPass()
	}
	cb, err := c.encoder.EndEncoding()
	c.recording = false
	if err != nil {
		return errors.Wrapf(err, "native: end %s slot %d", c.family, c.slot)
	}
	c.finished = cb
	return nil
}

// Discard abandons the recording and any open render pass.
func (c *CommandBuffer) Discard() {
	if !c.recording {
		return
	}
	if c.pass != nil {
		c.pass.End()
		c.pass = nil
	}
	c.after = nil
	c.encoder.DiscardEncoding()
	c.recording = false
}

// PipelineBarrier translates layouts into texture usage transitions and
// accesses into buffer usage transitions.
func (c *CommandBuffer) PipelineBarrier(barriers []framegraph.Barrier) {
	var textures []hal.TextureBarrier
	var buffers []hal.BufferBarrier
	for _, br := range barriers {
		switch h := br.Image.(type) {
		case *Texture:
			if h.raw == nil {
				continue
			}
			textures = append(textures, hal.TextureBarrier{
				Texture: h.raw,
				Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
				Usage: hal.TextureUsageTransition{
					OldUsage: br.OldLayout.Usage(),
					NewUsage: br.NewLayout.Usage(),
				},
			})
			continue
		case nil:
		default:
			framegraph.Logger().Warn("native: barrier on foreign image", "resource", br.Resource, "type", h)
			continue
		}
		b, ok := br.Buffer.(*Buffer)
		if !ok || b.raw == nil {
			continue
		}
		buffers = append(buffers, hal.BufferBarrier{
			Buffer: b.raw,
			Usage: hal.BufferUsageTransition{
				OldUsage: accessBufferUsage(br.SrcAccess),
				NewUsage: accessBufferUsage(br.DstAccess),
			},
		})
	}
	if len(buffers) > 0 {
		c.encoder.TransitionBuffers(buffers)
	}
	if len(textures) > 0 {
		c.encoder.TransitionTextures(textures)
	}
}

// accessBufferUsage maps access flags to the buffer usages they exercise.
func accessBufferUsage(a framegraph.AccessFlags) gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if a&framegraph.AccessIndirectCommandRead != 0 {
		u |= gputypes.BufferUsageIndirect
	}
	if a&framegraph.AccessIndexRead != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if a&framegraph.AccessVertexAttributeRead != 0 {
		u |= gputypes.BufferUsageVertex
	}
	if a&framegraph.AccessUniformRead != 0 {
		u |= gputypes.BufferUsageUniform
	}
	if a&(framegraph.AccessShaderRead|framegraph.AccessShaderWrite) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if a&framegraph.AccessTransferRead != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	if a&framegraph.AccessTransferWrite != 0 {
		u |= gputypes.BufferUsageCopyDst
	}
	if a&framegraph.AccessHostRead != 0 {
		u |= gputypes.BufferUsageMapRead
	}
	if a&framegraph.AccessHostWrite != 0 {
		u |= gputypes.BufferUsageMapWrite
	}
	return u
}

// BeginRenderPass opens a HAL render pass over the framebuffer's views.
func (c *CommandBuffer) BeginRenderPass(rp framegraph.RenderPass, fb framegraph.Framebuffer, begin framegraph.RenderPassBegin) error {
	pass, ok := rp.(*RenderPass)
	if !ok {
		return errors.Wrapf(ErrForeignHandle, "BeginRenderPass(%T)", rp)
	}
	frame, ok := fb.(*Framebuffer)
	if !ok {
		return errors.Wrapf(ErrForeignHandle, "BeginRenderPass framebuffer %T", fb)
	}
	desc, err := renderPassDescriptor(pass.Key, frame.Key, begin)
	if err != nil {
		return err
	}
	before, after := attachmentTransitions(pass.Key, frame.Key)
	if len(before) > 0 {
		c.encoder.TransitionTextures(before)
	}
	c.after = after
	c.pass = c.encoder.BeginRenderPass(desc)
	return nil
}

// attachmentTransitions returns the texture transitions into the attachment
// usage before a render pass and into each attachment's final layout after
// it. HAL render passes do not transition their attachments.
func attachmentTransitions(key framegraph.RenderPassKey, fb framegraph.FramebufferKey) (before, after []hal.TextureBarrier) {
	add := func(view framegraph.ImageView, a framegraph.AttachmentKey) {
		v, ok := view.(*View)
		if !ok || v.texture == nil || v.texture.raw == nil {
			return
		}
		attachment := gputypes.TextureUsageRenderAttachment
		if old := a.InitialLayout.Usage(); old != attachment {
			before = append(before, hal.TextureBarrier{
				Texture: v.texture.raw,
				Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
				Usage:   hal.TextureUsageTransition{OldUsage: old, NewUsage: attachment},
			})
		}
		// Presentation is handled by the surface.
		if final := a.FinalLayout.Usage(); final != attachment && final != gputypes.TextureUsageNone {
			after = append(after, hal.TextureBarrier{
				Texture: v.texture.raw,
				Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
				Usage:   hal.TextureUsageTransition{OldUsage: attachment, NewUsage: final},
			})
		}
	}
	for i := range key.ColorCount {
		add(fb.Views[i], key.Colors[i])
	}
	if key.HasDepth {
		add(fb.Views[key.ColorCount], key.Depth)
	}
	return before, after
}

func renderPassDescriptor(key framegraph.RenderPassKey, fb framegraph.FramebufferKey, begin framegraph.RenderPassBegin) (*hal.RenderPassDescriptor, error) {
	desc := &hal.RenderPassDescriptor{
		Label:            begin.Label,
		ColorAttachments: make([]hal.RenderPassColorAttachment, 0, key.ColorCount),
	}
	for i := range key.ColorCount {
		v, err := rawView(fb.Views[i], begin.Label)
		if err != nil {
			return nil, err
		}
		a := key.Colors[i]
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       v,
			LoadOp:     a.LoadOp,
			StoreOp:    a.StoreOp,
			ClearValue: begin.ClearColors[i],
		})
	}
	if key.HasDepth {
		v, err := rawView(fb.Views[key.ColorCount], begin.Label)
		if err != nil {
			return nil, err
		}
		a := key.Depth
		ds := &hal.RenderPassDepthStencilAttachment{View: v}
		if a.Format.HasDepth() {
			ds.DepthLoadOp = a.LoadOp
			ds.DepthStoreOp = a.StoreOp
			ds.DepthClearValue = begin.ClearDepth
		}
		if a.Format.HasStencil() {
			ds.StencilLoadOp = a.LoadOp
			ds.StencilStoreOp = a.StoreOp
			ds.StencilClearValue = begin.ClearStencil
		}
		desc.DepthStencilAttachment = ds
	}
	return desc, nil
}

func rawView(v framegraph.ImageView, pass string) (hal.TextureView, error) {
	view, ok := v.(*View)
	if !ok {
		return nil, errors.Wrapf(ErrForeignHandle, "pass %q view %T", pass, v)
	}
	if view.raw == nil {
		return nil, errors.Newf("native: pass %q uses view %q with no texture", pass, view.label)
	}
	return view.raw, nil
}

// EndRenderPass closes the open render pass and moves its attachments into
// their final layouts.
func (c *CommandBuffer) EndRenderPass() {
	if c.pass == nil {
		return
	}
	c.pass.End()
	c.pass = nil
	if len(c.after) > 0 {
		c.encoder.TransitionTextures(c.after)
		c.after = nil
	}
}
