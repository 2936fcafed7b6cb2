// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/memory"
)

// frameSlot tracks the work submitted for one frame slot.
type frameSlot struct {
	submission uint64
	submitted  []hal.CommandBuffer
}

// DeviceStats counts the live objects of a device.
type DeviceStats struct {
	Blocks       int
	Buffers      int
	Textures     int
	Views        int
	RenderPasses int
	Framebuffers int
	Submissions  uint64
}

// Device implements framegraph.Device over a HAL device and queue.
//
// Every queue family is submitted to the single HAL queue. The device is
// driven by the render thread and is not safe for concurrent use.
type Device struct {
	device hal.Device
	queue  hal.Queue
	opts   deviceOptions
	props  memory.Properties

	slots []frameSlot
	stats DeviceStats
}

var _ framegraph.Device = (*Device)(nil)

// NewDevice wraps a HAL device and queue.
func NewDevice(device hal.Device, queue hal.Queue, opts ...DeviceOption) (*Device, error) {
	if device == nil || queue == nil {
		return nil, errors.Wrap(ErrNilHAL, "NewDevice")
	}
	o := defaultDeviceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		device: device,
		queue:  queue,
		opts:   o,
		props: memory.Properties{
			Types: []memory.MemoryType{
				TypeDeviceLocal: {Properties: memory.PropertyDeviceLocal, HeapIndex: 0},
				TypeUpload:      {Properties: memory.PropertyHostVisible | memory.PropertyHostCoherent, HeapIndex: 1},
				TypeReadback:    {Properties: memory.PropertyHostVisible | memory.PropertyHostCoherent | memory.PropertyHostCached, HeapIndex: 1},
			},
			Heaps: []memory.MemoryHeap{
				{Size: o.deviceLocalHeap, DeviceLocal: true},
				{Size: o.hostHeap},
			},
		},
	}
	return d, nil
}

// NewDeviceFromProvider uses the HAL device and queue of a shared device
// provider. The provider must implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func NewDeviceFromProvider(provider gpucontext.DeviceProvider, opts ...DeviceOption) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, errors.Wrap(ErrProvider, "HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.Wrap(ErrProvider, "HalQueue is not hal.Queue")
	}
	info := provider.AdapterInfo()
	framegraph.Logger().Info("native: using provider device",
		"adapter", info.Name,
		"type", info.Type.String(),
		"surface_format", provider.SurfaceFormat().String())
	return NewDevice(device, queue, opts...)
}

// HAL returns the wrapped HAL device.
func (d *Device) HAL() hal.Device { return d.device }

// Queue returns the wrapped HAL queue.
func (d *Device) Queue() hal.Queue { return d.queue }

// Stats returns the live object counts.
func (d *Device) Stats() DeviceStats { return d.stats }

// MemoryProperties returns the synthetic memory table.
func (d *Device) MemoryProperties() memory.Properties { return d.props }

// AllocateMemory creates a block. Host-visible blocks are backed by a
// mappable HAL buffer of the full block size.
func (d *Device) AllocateMemory(size uint64, typeIndex int) (any, error) {
	if typeIndex < 0 || typeIndex >= len(d.props.Types) {
		return nil, errors.Wrapf(ErrUnknownMemoryType, "type %d", typeIndex)
	}
	b := &Block{typeIndex: typeIndex, size: size}
	if typeIndex != TypeDeviceLocal {
		buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "framegraph block",
			Size:  alignUp(size, bufferAlignment),
			Usage: hostBufferUsage(typeIndex),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "native: create block buffer of %d bytes", size)
		}
		b.buffer = buf
	}
	d.stats.Blocks++
	return b, nil
}

// FreeMemory releases a block.
func (d *Device) FreeMemory(mem any) {
	b, ok := mem.(*Block)
	if !ok {
		return
	}
	if b.buffer != nil {
		d.device.DestroyBuffer(b.buffer)
		b.buffer = nil
	}
	d.stats.Blocks--
}

// MapMemory maps a range of a host-visible block.
func (d *Device) MapMemory(mem any, offset, size uint64) ([]byte, error) {
	b, ok := mem.(*Block)
	if !ok {
		return nil, errors.Wrapf(ErrForeignHandle, "MapMemory(%T)", mem)
	}
	if b.buffer == nil {
		return nil, ErrNotMappable
	}
	mapping, err := d.device.MapBuffer(b.buffer, offset, size)
	if err != nil {
		return nil, errors.Wrapf(err, "native: map %d bytes at %d", size, offset)
	}
	b.mapped++
	if size == 0 {
		return []byte{}, nil
	}
	return unsafe.Slice((*byte)(mapping.Ptr), size), nil
}

// UnmapMemory releases a mapping created by MapMemory.
func (d *Device) UnmapMemory(mem any) {
	b, ok := mem.(*Block)
	if !ok || b.buffer == nil || b.mapped == 0 {
		return
	}
	b.mapped--
	if err := d.device.UnmapBuffer(b.buffer); err != nil {
		framegraph.Logger().Warn("native: unmap failed", "err", err)
	}
}

// CreateBuffer creates a buffer. Buffers living in device-local memory get a
// dedicated HAL buffer; mappable buffers become a range of their block's
// buffer when bound.
func (d *Device) CreateBuffer(desc memory.BufferDesc) (any, memory.Requirements, error) {
	req := bufferRequirements(desc)
	b := &Buffer{label: desc.Label, size: desc.Size, usage: desc.Usage}
	if req.TypeBits == 1<<TypeDeviceLocal {
		raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: desc.Label,
			Size:  req.Size,
			Usage: desc.Usage,
		})
		if err != nil {
			return nil, memory.Requirements{}, errors.Wrapf(err, "native: create buffer %q", desc.Label)
		}
		b.raw = raw
		b.dedicated = true
	}
	d.stats.Buffers++
	return b, req, nil
}

// BindBufferMemory binds a buffer to a block range.
func (d *Device) BindBufferMemory(buffer, mem any, offset uint64) error {
	b, ok := buffer.(*Buffer)
	if !ok {
		return errors.Wrapf(ErrForeignHandle, "BindBufferMemory(%T)", buffer)
	}
	blk, ok := mem.(*Block)
	if !ok {
		return errors.Wrapf(ErrForeignHandle, "BindBufferMemory memory %T", mem)
	}
	b.block = blk
	if !b.dedicated {
		if blk.buffer == nil {
			return errors.Wrapf(ErrNotMappable, "bind %q", b.label)
		}
		b.raw = blk.buffer
		b.offset = offset
	}
	return nil
}

// DestroyBuffer destroys a buffer created by CreateBuffer.
func (d *Device) DestroyBuffer(buffer any) {
	b, ok := buffer.(*Buffer)
	if !ok {
		return
	}
	if b.dedicated && b.raw != nil {
		d.device.DestroyBuffer(b.raw)
	}
	b.raw = nil
	b.block = nil
	d.stats.Buffers--
}

// CreateImage creates a dedicated 2D HAL texture.
func (d *Device) CreateImage(desc memory.ImageDesc) (any, memory.Requirements, error) {
	req, err := imageRequirements(desc)
	if err != nil {
		return nil, memory.Requirements{}, err
	}
	raw, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              max(desc.Width, 1),
			Height:             max(desc.Height, 1),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: max(desc.MipLevelCount, 1),
		SampleCount:   max(desc.SampleCount, 1),
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, memory.Requirements{}, errors.Wrapf(err, "native: create texture %q", desc.Label)
	}
	d.stats.Textures++
	return &Texture{label: desc.Label, desc: desc, raw: raw}, req, nil
}

// BindImageMemory records the block range accounting for the texture.
func (d *Device) BindImageMemory(image, mem any, offset uint64) error {
	t, ok := image.(*Texture)
	if !ok {
		return errors.Wrapf(ErrForeignHandle, "BindImageMemory(%T)", image)
	}
	blk, ok := mem.(*Block)
	if !ok {
		return errors.Wrapf(ErrForeignHandle, "BindImageMemory memory %T", mem)
	}
	t.block = blk
	t.offset = offset
	return nil
}

// DestroyImage destroys a texture created by CreateImage.
func (d *Device) DestroyImage(image any) {
	t, ok := image.(*Texture)
	if !ok || t.raw == nil {
		return
	}
	d.device.DestroyTexture(t.raw)
	t.raw = nil
	t.block = nil
	d.stats.Textures--
}

// CreateImageView creates a 2D view over the whole texture.
func (d *Device) CreateImageView(image any, desc framegraph.ImageViewDesc) (framegraph.ImageView, error) {
	t, ok := image.(*Texture)
	if !ok {
		return nil, errors.Wrapf(ErrForeignHandle, "CreateImageView(%T)", image)
	}
	v := &View{label: desc.Label, texture: t}
	if t.raw != nil {
		raw, err := d.createView(t.raw, desc)
		if err != nil {
			return nil, err
		}
		v.raw = raw
	}
	d.stats.Views++
	return v, nil
}

func (d *Device) createView(tex hal.Texture, desc framegraph.ImageViewDesc) (hal.TextureView, error) {
	aspect := desc.Aspect
	if aspect == gputypes.TextureAspectUndefined {
		aspect = gputypes.TextureAspectAll
	}
	raw, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           desc.Label,
		Format:          desc.Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          aspect,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "native: create view %q", desc.Label)
	}
	return raw, nil
}

// DestroyImageView destroys a view created by CreateImageView.
func (d *Device) DestroyImageView(view framegraph.ImageView) {
	v, ok := view.(*View)
	if !ok {
		return
	}
	if v.raw != nil {
		d.device.DestroyTextureView(v.raw)
		v.raw = nil
	}
	d.stats.Views--
}

// RenderPass is the attachment structure a pass begins with. The HAL
// creates no object for it.
type RenderPass struct {
	Key framegraph.RenderPassKey
}

// Framebuffer binds views to a render pass.
type Framebuffer struct {
	Key framegraph.FramebufferKey
}

// CreateRenderPass records the attachment structure.
func (d *Device) CreateRenderPass(key framegraph.RenderPassKey) (framegraph.RenderPass, error) {
	d.stats.RenderPasses++
	return &RenderPass{Key: key}, nil
}

// DestroyRenderPass releases a render pass.
func (d *Device) DestroyRenderPass(rp framegraph.RenderPass) {
	if _, ok := rp.(*RenderPass); ok {
		d.stats.RenderPasses--
	}
}

// CreateFramebuffer validates and records the attachment views.
func (d *Device) CreateFramebuffer(key framegraph.FramebufferKey) (framegraph.Framebuffer, error) {
	if _, ok := key.RenderPass.(*RenderPass); !ok {
		return nil, errors.Wrapf(ErrForeignHandle, "framebuffer render pass %T", key.RenderPass)
	}
	for i := range key.ViewCount {
		if _, ok := key.Views[i].(*View); !ok {
			return nil, errors.Wrapf(ErrForeignHandle, "framebuffer view %d is %T", i, key.Views[i])
		}
	}
	d.stats.Framebuffers++
	return &Framebuffer{Key: key}, nil
}

// DestroyFramebuffer releases a framebuffer.
func (d *Device) DestroyFramebuffer(fb framegraph.Framebuffer) {
	if _, ok := fb.(*Framebuffer); ok {
		d.stats.Framebuffers--
	}
}

// CreateCommandPool creates buffers HAL command encoders per frame slot.
func (d *Device) CreateCommandPool(family framegraph.QueueFamily, slots, buffers int) (framegraph.CommandPool, error) {
	buffers = max(buffers, 1)
	p := &CommandPool{family: family, perSlot: buffers, buffers: make([]*CommandBuffer, 0, slots*buffers)}
	for slot := range slots {
		for range buffers {
			enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
				Label: family.String(),
			})
			if err != nil {
				p.Destroy()
				return nil, errors.Wrapf(err, "native: create %s encoder for slot %d", family, slot)
			}
			p.buffers = append(p.buffers, &CommandBuffer{encoder: enc, family: family, slot: slot})
		}
	}
	return p, nil
}

func (d *Device) slot(i int) *frameSlot {
	for len(d.slots) <= i {
		d.slots = append(d.slots, frameSlot{})
	}
	return &d.slots[i]
}

// Submit queues a finished command buffer.
func (d *Device) Submit(family framegraph.QueueFamily, cmd framegraph.CommandBuffer, slot int) error {
	c, ok := cmd.(*CommandBuffer)
	if !ok {
		return errors.Wrapf(ErrForeignHandle, "Submit(%T)", cmd)
	}
	if c.finished == nil {
		return errors.Wrapf(ErrNotRecording, "submit %s slot %d", family, slot)
	}
	index, err := d.queue.Submit([]hal.CommandBuffer{c.finished})
	if err != nil {
		return errors.Wrapf(err, "native: submit %s slot %d", family, slot)
	}
	s := d.slot(slot)
	s.submission = max(s.submission, index)
	s.submitted = append(s.submitted, c.finished)
	c.finished = nil
	d.stats.Submissions++
	return nil
}

// WaitFrame polls the queue until the last submission of slot completed,
// then frees the slot's command buffers. It only gives up when a frame
// timeout was configured with WithFrameTimeout.
func (d *Device) WaitFrame(slot int) error {
	s := d.slot(slot)
	if s.submission == 0 {
		return nil
	}
	start := time.Now()
	for d.queue.PollCompleted() < s.submission {
		if d.opts.frameTimeout > 0 && time.Since(start) > d.opts.frameTimeout {
			framegraph.Logger().Error("native: frame timeout",
				"slot", slot,
				"submission", s.submission,
				"completed", d.queue.PollCompleted())
			return errors.Wrapf(ErrFrameTimeout, "slot %d after %v", slot, d.opts.frameTimeout)
		}
		time.Sleep(d.opts.pollInterval)
	}
	for _, cb := range s.submitted {
		d.device.FreeCommandBuffer(cb)
	}
	s.submitted = s.submitted[:0]
	return nil
}

// WaitIdle waits for every frame slot, then for the device.
func (d *Device) WaitIdle() error {
	for i := range d.slots {
		if err := d.WaitFrame(i); err != nil {
			return err
		}
	}
	return d.device.WaitIdle()
}
