package framegraph

import (
	"fmt"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/memory"
)

// fakeDevice records every call the graph makes.
type fakeDevice struct {
	log []string

	live           map[string]bool
	views          int
	renderPasses   int
	framebuffers   int
	destroyedFBs   int
	pools          []*fakePool
	waits          []int
	submits        []string
	failRenderPass bool
	failFramebuf   bool
	failImages     bool
}

type fakeMemory struct {
	size uint64
	data []byte
}

type fakeHandle struct{ label string }

type fakeRenderPass struct{ key RenderPassKey }

type fakeFramebuffer struct{ key FramebufferKey }

func newFakeDevice() *fakeDevice {
	return &fakeDevice{live: make(map[string]bool)}
}

func (d *fakeDevice) MemoryProperties() memory.Properties {
	return memory.Properties{
		Types: []memory.MemoryType{
			{Properties: memory.PropertyDeviceLocal, HeapIndex: 0},
			{Properties: memory.PropertyHostVisible | memory.PropertyHostCoherent, HeapIndex: 1},
		},
		Heaps: []memory.MemoryHeap{
			{Size: 1 << 30, DeviceLocal: true},
			{Size: 256 << 20},
		},
	}
}

func (d *fakeDevice) AllocateMemory(size uint64, typeIndex int) (any, error) {
	m := &fakeMemory{size: size}
	if typeIndex == 1 {
		m.data = make([]byte, size)
	}
	return m, nil
}

func (d *fakeDevice) FreeMemory(any) {}

func (d *fakeDevice) MapMemory(mem any, offset, size uint64) ([]byte, error) {
	m := mem.(*fakeMemory)
	if m.data == nil {
		return nil, fmt.Errorf("memory not host visible")
	}
	return m.data[offset : offset+size], nil
}

func (d *fakeDevice) UnmapMemory(any) {}

func (d *fakeDevice) CreateBuffer(desc memory.BufferDesc) (any, memory.Requirements, error) {
	d.live[desc.Label] = true
	return &fakeHandle{label: desc.Label}, memory.Requirements{Size: desc.Size, Alignment: 16, TypeBits: 0b11}, nil
}

func (d *fakeDevice) BindBufferMemory(any, any, uint64) error { return nil }

func (d *fakeDevice) DestroyBuffer(buffer any) {
	delete(d.live, buffer.(*fakeHandle).label)
}

func (d *fakeDevice) CreateImage(desc memory.ImageDesc) (any, memory.Requirements, error) {
	if d.failImages {
		return nil, memory.Requirements{}, fmt.Errorf("image %q refused", desc.Label)
	}
	d.live[desc.Label] = true
	size := uint64(desc.Width) * uint64(desc.Height) * 4
	return &fakeHandle{label: desc.Label}, memory.Requirements{Size: size, Alignment: 256, TypeBits: 0b01}, nil
}

func (d *fakeDevice) BindImageMemory(any, any, uint64) error { return nil }

func (d *fakeDevice) DestroyImage(image any) {
	delete(d.live, image.(*fakeHandle).label)
}

func (d *fakeDevice) CreateImageView(_ any, desc ImageViewDesc) (ImageView, error) {
	d.views++
	return &fakeHandle{label: "view:" + desc.Label}, nil
}

func (d *fakeDevice) DestroyImageView(ImageView) { d.views-- }

func (d *fakeDevice) CreateRenderPass(key RenderPassKey) (RenderPass, error) {
	if d.failRenderPass {
		return nil, fmt.Errorf("render pass refused")
	}
	d.renderPasses++
	return &fakeRenderPass{key: key}, nil
}

func (d *fakeDevice) DestroyRenderPass(RenderPass) { d.renderPasses-- }

func (d *fakeDevice) CreateFramebuffer(key FramebufferKey) (Framebuffer, error) {
	if d.failFramebuf {
		return nil, fmt.Errorf("framebuffer refused")
	}
	d.framebuffers++
	return &fakeFramebuffer{key: key}, nil
}

func (d *fakeDevice) DestroyFramebuffer(Framebuffer) {
	d.framebuffers--
	d.destroyedFBs++
}

func (d *fakeDevice) CreateCommandPool(family QueueFamily, slots, buffers int) (CommandPool, error) {
	p := &fakePool{device: d, family: family, perSlot: buffers}
	for range slots * buffers {
		p.cmds = append(p.cmds, &fakeCmd{device: d, family: family})
	}
	d.pools = append(d.pools, p)
	return p, nil
}

func (d *fakeDevice) WaitFrame(slot int) error {
	d.waits = append(d.waits, slot)
	return nil
}

func (d *fakeDevice) Submit(family QueueFamily, _ CommandBuffer, slot int) error {
	d.submits = append(d.submits, fmt.Sprintf("%s@%d", family, slot))
	return nil
}

type fakePool struct {
	device    *fakeDevice
	family    QueueFamily
	perSlot   int
	cmds      []*fakeCmd
	destroyed bool
}

func (p *fakePool) CommandBuffer(slot, index int) CommandBuffer { return p.cmds[slot*p.perSlot+index] }
func (p *fakePool) Destroy()                                    { p.destroyed = true }

type fakeCmd struct {
	device    *fakeDevice
	family    QueueFamily
	recording bool
}

func (c *fakeCmd) Begin(string) error {
	c.device.log = append(c.device.log, "begin "+c.family.String())
	c.recording = true
	return nil
}

func (c *fakeCmd) End() error {
	c.device.log = append(c.device.log, "end "+c.family.String())
	c.recording = false
	return nil
}

func (c *fakeCmd) Discard() {
	if c.recording {
		c.device.log = append(c.device.log, "discard "+c.family.String())
		c.recording = false
	}
}

func (c *fakeCmd) PipelineBarrier(barriers []Barrier) {
	for _, b := range barriers {
		c.device.log = append(c.device.log, fmt.Sprintf("barrier %s %s->%s", b.Resource, b.OldLayout, b.NewLayout))
	}
}

func (c *fakeCmd) BeginRenderPass(_ RenderPass, _ Framebuffer, begin RenderPassBegin) error {
	c.device.log = append(c.device.log, "renderpass "+begin.Label)
	return nil
}

func (c *fakeCmd) EndRenderPass() {
	c.device.log = append(c.device.log, "endrenderpass")
}

// fakeSwapchain hands out images round-robin.
type fakeSwapchain struct {
	extent   Extent
	frames   int
	images   []*fakeHandle
	views    []*fakeHandle
	next     int
	acquired []int
	presents []int
	outdated bool
}

func newFakeSwapchain(width, height uint32, frames int) *fakeSwapchain {
	s := &fakeSwapchain{extent: Extent{Width: width, Height: height}, frames: frames}
	for i := range frames {
		s.images = append(s.images, &fakeHandle{label: fmt.Sprintf("swap%d", i)})
		s.views = append(s.views, &fakeHandle{label: fmt.Sprintf("swapview%d", i)})
	}
	return s
}

func (s *fakeSwapchain) Extent() Extent                 { return s.extent }
func (s *fakeSwapchain) Format() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (s *fakeSwapchain) FramesInFlight() int            { return s.frames }
func (s *fakeSwapchain) ImageCount() int                { return len(s.images) }
func (s *fakeSwapchain) Image(index int) any            { return s.images[index] }
func (s *fakeSwapchain) ImageView(index int) ImageView  { return s.views[index] }
func (s *fakeSwapchain) Present(_ int, imageIndex int) error {
	s.presents = append(s.presents, imageIndex)
	return nil
}

func (s *fakeSwapchain) AcquireNextImage(int) (int, error) {
	if s.outdated {
		return 0, ErrSurfaceOutdated
	}
	i := s.next
	s.next = (s.next + 1) % len(s.images)
	s.acquired = append(s.acquired, i)
	return i, nil
}

// newTestBuilder returns a builder over fresh fakes with three frames in
// flight and an 800x600 swapchain.
func newTestBuilder(t testing.TB) (*GraphBuilder, *fakeDevice, *fakeSwapchain, *memory.Allocator) {
	device := newFakeDevice()
	swapchain := newFakeSwapchain(800, 600, 3)
	t.Helper()
	allocator, err := memory.New(device, 3)
	if err != nil {
		t.Fatalf("memory.New() error = %v", err)
	}
	return NewGraphBuilder(device, swapchain, allocator), device, swapchain, allocator
}

// colorTarget is a sampled render target.
func colorTarget(load gputypes.LoadOp) ImageWrite {
	return ImageWrite{Format: gputypes.TextureFormatRGBA8Unorm, LoadOp: load}
}

// passNames returns the names of passes in order.
func passNames(passes []*PassDescription) []string {
	out := make([]string, len(passes))
	for i, p := range passes {
		out[i] = p.Name()
	}
	return out
}

// orderOf returns the names of handles in order.
func orderOf(b *GraphBuilder, handles []PassHandle) []string {
	out := make([]string, len(handles))
	for i, h := range handles {
		out[i] = b.PassByHandle(h).Name()
	}
	return out
}
