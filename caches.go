package framegraph

import "github.com/gogpu/framegraph/internal/cache"

// Cache is a keyed store of lazily created GPU objects.
type Cache[K comparable, V any] = cache.Cache[K, V]

// PipelineKey identifies a pipeline built by a pass for a render pass.
type PipelineKey struct {
	Pass       string
	RenderPass RenderPass
	Variant    string
}

// DescriptorSetKey identifies a descriptor set built by a pass for a frame
// slot.
type DescriptorSetKey struct {
	Pass    string
	Set     int
	Slot    int
	Variant string
}

// Caches holds the structural caches shared by every graph of a session.
// Render passes and framebuffers are filled by the graph; pipelines and
// descriptor sets are filled by pass callbacks.
type Caches struct {
	RenderPasses   *Cache[RenderPassKey, RenderPass]
	Framebuffers   *Cache[FramebufferKey, Framebuffer]
	Pipelines      *Cache[PipelineKey, any]
	DescriptorSets *Cache[DescriptorSetKey, any]
}

// NewCaches creates an empty set of caches.
func NewCaches() *Caches {
	return &Caches{
		RenderPasses:   cache.New[RenderPassKey, RenderPass](),
		Framebuffers:   cache.New[FramebufferKey, Framebuffer](),
		Pipelines:      cache.New[PipelineKey, any](),
		DescriptorSets: cache.New[DescriptorSetKey, any](),
	}
}

// destroyer is implemented by cached pipeline and descriptor objects that
// own GPU memory.
type destroyer interface {
	Destroy()
}

// Release destroys every cached object. Call it once all graphs using the
// caches are destroyed and the device is idle.
func (c *Caches) Release(device Device) {
	for _, fb := range c.Framebuffers.Drain() {
		device.DestroyFramebuffer(fb)
	}
	for _, rp := range c.RenderPasses.Drain() {
		device.DestroyRenderPass(rp)
	}
	for _, v := range c.Pipelines.Drain() {
		if d, ok := v.(destroyer); ok {
			d.Destroy()
		}
	}
	for _, v := range c.DescriptorSets.Drain() {
		if d, ok := v.(destroyer); ok {
			d.Destroy()
		}
	}
}
