// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/framegraph/memory"
)

// RenderGraph is a compiled graph. It owns its physical resources and
// command pools and replays the passes every frame in a fixed order.
//
// A RenderGraph is driven from a single goroutine.
type RenderGraph struct {
	device    Device
	swapchain Swapchain
	allocator *memory.Allocator
	caches    *Caches
	ownCaches bool
	label     string

	passes       []*PassDescription
	byName       map[string]*PassDescription
	resources    map[string]*ResourceDescription
	resourceList []*ResourceDescription
	levels       int
	batches      []BarrierBatch

	physical *physicalResources
	extent   Extent

	families     []QueueFamily
	runs         []commandRun
	pools        map[QueueFamily]CommandPool
	framebuffers map[FramebufferKey]struct{}

	frames         int
	slot           int
	frameNumber    uint64
	usesBackbuffer bool
	// stale is set when a Resize failed to recreate the physical resources.
	stale     bool
	destroyed bool
}

// commandRun is a contiguous span of execution order on one queue family.
// Each run records into its own command buffer and runs are submitted in
// order, so submission order follows pass order when families interleave.
type commandRun struct {
	family QueueFamily
	// index selects the run's command buffer in the family's pool.
	index       int
	first, last int
}

func newRenderGraph(b *GraphBuilder) (*RenderGraph, error) {
	g := &RenderGraph{
		device:       b.device,
		swapchain:    b.swapchain,
		allocator:    b.allocator,
		caches:       b.caches,
		ownCaches:    b.ownCaches,
		label:        b.label,
		byName:       make(map[string]*PassDescription, len(b.passes)),
		resources:    b.resources,
		resourceList: b.Resources(),
		levels:       b.levels,
		batches:      b.barriers,
		physical:     b.physical,
		extent:       b.extent,
		pools:        make(map[QueueFamily]CommandPool),
		framebuffers: make(map[FramebufferKey]struct{}),
		frames:       b.swapchain.FramesInFlight(),
	}
	perFamily := make(map[QueueFamily]int)
	for i, h := range b.order {
		p := b.passes[h]
		g.passes = append(g.passes, p)
		g.byName[p.name] = p
		f := p.queue.Family()
		if !slices.Contains(g.families, f) {
			g.families = append(g.families, f)
		}
		if n := len(g.runs); n > 0 && g.runs[n-1].family == f {
			g.runs[n-1].last = i
		} else {
			g.runs = append(g.runs, commandRun{family: f, index: perFamily[f], first: i, last: i})
			perFamily[f]++
		}
		if p.writesResource(Backbuffer) {
			g.usesBackbuffer = true
		}
	}
	for _, f := range g.families {
		pool, err := g.device.CreateCommandPool(f, g.frames, perFamily[f])
		if err != nil {
			for _, created := range g.pools {
				created.Destroy()
			}
			return nil, errors.Wrapf(err, "create %s command pool", f)
		}
		g.pools[f] = pool
	}
	return g, nil
}

// Execute records and submits one frame:
//
//  1. wait for the work last submitted in the current ring slot
//  2. acquire a swapchain image when a pass writes the backbuffer
//  3. record every pass in execution order, emitting each barrier batch
//     before the first pass of its level and family and wrapping attachment
//     passes in their render pass
//  4. submit each run of same-family passes as it ends, present, and
//     advance the allocator and ring
//
// Execute returns an error matching ErrSurfaceOutdated when the swapchain
// must be recreated; call Resize afterwards.
func (g *RenderGraph) Execute() error {
	if g.destroyed {
		return ErrGraphDestroyed
	}
	if g.stale {
		return ErrResizeRequired
	}
	slot := g.slot
	if err := g.device.WaitFrame(slot); err != nil {
		return errors.Wrapf(err, "wait for frame slot %d", slot)
	}

	imageIndex := -1
	if g.usesBackbuffer {
		idx, err := g.swapchain.AcquireNextImage(slot)
		if err != nil {
			if errors.Is(err, ErrSurfaceOutdated) {
				Logger().Warn("framegraph: surface outdated on acquire", "frame", g.frameNumber)
			}
			return err
		}
		imageIndex = idx
	}

	emitted := make([]bool, len(g.batches))
	for _, run := range g.runs {
		cmd := g.pools[run.family].CommandBuffer(slot, run.index)
		if err := cmd.Begin(g.label); err != nil {
			return errors.Wrapf(err, "begin %s commands", run.family)
		}
		if err := g.recordRun(run, cmd, slot, imageIndex, emitted); err != nil {
			cmd.Discard()
			return err
		}
		if err := cmd.End(); err != nil {
			cmd.Discard()
			return errors.Wrapf(err, "end %s commands", run.family)
		}
		if err := g.device.Submit(run.family, cmd, slot); err != nil {
			return errors.Wrapf(err, "submit %s commands", run.family)
		}
	}

	var presentErr error
	if g.usesBackbuffer {
		presentErr = g.swapchain.Present(slot, imageIndex)
		if errors.Is(presentErr, ErrSurfaceOutdated) {
			Logger().Warn("framegraph: surface outdated on present", "frame", g.frameNumber)
		}
	}

	// The work is submitted, so the ring advances even when present fails.
	g.allocator.EndFrame()
	g.slot = (slot + 1) % g.frames
	g.frameNumber++
	return presentErr
}

// recordRun records the passes of run. A barrier batch is recorded before
// the first pass of its level on its family.
func (g *RenderGraph) recordRun(run commandRun, cmd CommandBuffer, slot, imageIndex int, emitted []bool) error {
	for _, p := range g.passes[run.first : run.last+1] {
		for i, batch := range g.batches {
			if !emitted[i] && batch.Level == p.level && batch.Family == run.family {
				cmd.PipelineBarrier(g.resolveBarriers(batch.Barriers, slot, imageIndex))
				emitted[i] = true
			}
		}
		if err := g.recordPass(p, cmd, slot, imageIndex); err != nil {
			return err
		}
	}
	return nil
}

func (g *RenderGraph) recordPass(p *PassDescription, cmd CommandBuffer, slot, imageIndex int) error {
	ctx := &ExecutionContext{
		Frame:       slot,
		FrameNumber: g.frameNumber,
		ImageIndex:  imageIndex,
		Cmd:         cmd,
		Extent:      g.extent,
		Caches:      g.caches,
		graph:       g,
		pass:        p,
	}
	if !p.IsRenderPass() {
		if p.record != nil {
			p.record(ctx)
		}
		return nil
	}

	fb, err := g.framebuffer(p, slot, imageIndex)
	if err != nil {
		return err
	}
	begin := RenderPassBegin{Label: p.name, Extent: p.extent}
	for i, c := range p.colors {
		begin.ClearColors[i] = c.ClearColor
	}
	if p.depth != nil {
		begin.ClearDepth = p.depth.ClearDepth
		begin.ClearStencil = p.depth.ClearStencil
	}
	if err := cmd.BeginRenderPass(p.renderPass, fb, begin); err != nil {
		return errors.Wrapf(err, "begin render pass %q", p.name)
	}
	ctx.RenderPass = p.renderPass
	ctx.Framebuffer = fb
	ctx.Extent = p.extent
	if p.record != nil {
		p.record(ctx)
	}
	cmd.EndRenderPass()
	return nil
}

// framebuffer resolves the framebuffer of p for the frame, creating it on
// first use.
func (g *RenderGraph) framebuffer(p *PassDescription, slot, imageIndex int) (Framebuffer, error) {
	key := FramebufferKey{RenderPass: p.renderPass, Extent: p.extent}
	attachments := p.colors
	if p.depth != nil {
		attachments = append(slices.Clip(attachments), *p.depth)
	}
	for _, a := range attachments {
		var view ImageView
		if a.Resource == Backbuffer {
			view = g.swapchain.ImageView(imageIndex)
		} else {
			view = g.physical.view(a.Resource, slot)
		}
		key.Views[key.ViewCount] = view
		key.ViewCount++
	}
	fb, err := g.caches.Framebuffers.GetOrCreate(key, func() (Framebuffer, error) {
		g.framebuffers[key] = struct{}{}
		return g.device.CreateFramebuffer(key)
	})
	if err != nil {
		delete(g.framebuffers, key)
		return nil, errors.Wrapf(err, "create framebuffer for pass %q", p.name)
	}
	return fb, nil
}

// resolveBarriers fills the physical handles of a barrier batch for slot.
func (g *RenderGraph) resolveBarriers(templates []Barrier, slot, imageIndex int) []Barrier {
	out := make([]Barrier, 0, len(templates))
	for _, br := range templates {
		switch {
		case br.Kind == ResourceBuffer:
			buf := g.physical.buffer(br.Resource, slot)
			if buf == nil {
				continue
			}
			br.Buffer = buf.Handle
			br.Size = buf.Desc.Size
		case br.Resource == Backbuffer:
			if imageIndex < 0 {
				continue
			}
			br.Image = g.swapchain.Image(imageIndex)
		default:
			img := g.physical.image(br.Resource, slot)
			if img == nil {
				continue
			}
			br.Image = img.Handle
		}
		out = append(out, br)
	}
	return out
}

// Resize recreates the physical resources against a new swapchain extent.
// Framebuffers created by the graph are destroyed. The device must be idle.
//
// The old resources are released before the new ones are allocated. When
// allocation fails, Execute returns ErrResizeRequired until a later Resize
// succeeds.
func (g *RenderGraph) Resize(extent Extent) error {
	if g.destroyed {
		return ErrGraphDestroyed
	}
	g.dropFramebuffers()
	g.physical.release(g.device, g.allocator)
	g.physical = nil
	g.stale = true

	pr, err := allocatePhysical(g.device, g.allocator, g.resourceList, extent, g.frames)
	if err != nil {
		Logger().Error("framegraph: resize failed", "label", g.label, "extent", extent.String(), "err", err)
		return err
	}
	g.physical = pr
	g.extent = extent
	g.stale = false

	for _, p := range g.passes {
		if !p.IsRenderPass() {
			continue
		}
		if len(p.colors) > 0 {
			p.extent = g.attachmentExtent(p.colors[0].Resource)
		} else {
			p.extent = g.attachmentExtent(p.depth.Resource)
		}
	}
	Logger().Info("framegraph: graph resized", "label", g.label, "extent", extent.String())
	return nil
}

func (g *RenderGraph) attachmentExtent(name string) Extent {
	if name == Backbuffer {
		return g.extent
	}
	return g.resources[name].Image.Size.Resolve(g.extent)
}

func (g *RenderGraph) dropFramebuffers() {
	for key := range g.framebuffers {
		if fb, ok := g.caches.Framebuffers.Delete(key); ok {
			g.device.DestroyFramebuffer(fb)
		}
	}
	clear(g.framebuffers)
}

// Destroy releases every physical resource, framebuffer and command pool of
// the graph, and the caches when the graph created them. It does not wait
// for the device; the caller must ensure it is idle.
func (g *RenderGraph) Destroy() {
	if g.destroyed {
		return
	}
	g.dropFramebuffers()
	g.physical.release(g.device, g.allocator)
	g.physical = nil
	for _, f := range g.families {
		g.pools[f].Destroy()
	}
	clear(g.pools)
	if g.ownCaches {
		g.caches.Release(g.device)
	}
	g.destroyed = true
	Logger().Info("framegraph: graph destroyed", "label", g.label, "frames", g.frameNumber)
}

// Passes returns the passes in execution order.
func (g *RenderGraph) Passes() []*PassDescription { return slices.Clone(g.passes) }

// Pass returns the pass named name.
func (g *RenderGraph) Pass(name string) (*PassDescription, bool) {
	p, ok := g.byName[name]
	return p, ok
}

// Levels returns the number of dependency levels.
func (g *RenderGraph) Levels() int { return g.levels }

// Families returns the queue families used, in first-use order.
func (g *RenderGraph) Families() []QueueFamily { return slices.Clone(g.families) }

// Image returns the physical image of name for slot.
func (g *RenderGraph) Image(name string, slot int) *memory.Image { return g.physical.image(name, slot) }

// ImageView returns the view of name for slot.
func (g *RenderGraph) ImageView(name string, slot int) ImageView { return g.physical.view(name, slot) }

// Buffer returns the physical buffer of name for slot.
func (g *RenderGraph) Buffer(name string, slot int) *memory.Buffer { return g.physical.buffer(name, slot) }

// Frame returns the ring slot the next Execute records into.
func (g *RenderGraph) Frame() int { return g.slot }

// FrameNumber returns the number of executed frames.
func (g *RenderGraph) FrameNumber() uint64 { return g.frameNumber }

// FramesInFlight returns the ring size.
func (g *RenderGraph) FramesInFlight() int { return g.frames }

// Extent returns the swapchain extent the resources are sized against.
func (g *RenderGraph) Extent() Extent { return g.extent }

// Caches returns the structural caches the graph uses.
func (g *RenderGraph) Caches() *Caches { return g.caches }

// Barriers returns the barrier batches with unresolved handles.
func (g *RenderGraph) Barriers() []BarrierBatch {
	out := make([]BarrierBatch, len(g.batches))
	for i, b := range g.batches {
		out[i] = BarrierBatch{Level: b.Level, Family: b.Family, Barriers: slices.Clone(b.Barriers)}
	}
	return out
}
