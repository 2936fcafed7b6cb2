package framegraph

import "github.com/cockroachdb/errors"

// CreateRenderPasses resolves every pass's render pass through the render
// pass cache, then runs the initialisation callbacks in execution order.
// Callbacks run only after every pass has its physical resources, so a
// callback may use resources written by any pass.
func (b *GraphBuilder) CreateRenderPasses() error {
	if b.stage < stagePhysical {
		return errors.Wrap(ErrNotCompiled, "CreateRenderPasses before CreatePhysicalResources")
	}
	created := 0
	for _, h := range b.order {
		p := b.passes[h]
		if !p.IsRenderPass() {
			p.renderPass = nil
			continue
		}
		key := p.renderPassKey
		before := b.caches.RenderPasses.Len()
		rp, err := b.caches.RenderPasses.GetOrCreate(key, func() (RenderPass, error) {
			return b.device.CreateRenderPass(key)
		})
		if err != nil {
			return errors.Wrapf(err, "create render pass for pass %q", p.name)
		}
		if b.caches.RenderPasses.Len() > before {
			created++
		}
		p.renderPass = rp
	}
	Logger().Debug("framegraph: render passes resolved", "created", created, "cached", b.caches.RenderPasses.Len())

	for _, h := range b.order {
		p := b.passes[h]
		if p.init == nil {
			continue
		}
		ctx := &InitContext{
			Device:         b.device,
			Allocator:      b.allocator,
			Caches:         b.caches,
			RenderPass:     p.renderPass,
			FramesInFlight: b.swapchain.FramesInFlight(),
			Extent:         b.extent,
			pass:           p,
			physical:       b.physical,
		}
		if err := p.init(ctx); err != nil {
			Logger().Error("framegraph: pass initialisation failed", "pass", p.name, "err", err)
			return errors.Wrapf(err, "initialise pass %q", p.name)
		}
	}
	b.stage = stageRenderPasses
	return nil
}

// CreateGraph runs every compilation step and returns the executable graph.
// The builder must not be used afterwards; the graph owns the physical
// resources.
func (b *GraphBuilder) CreateGraph() (*RenderGraph, error) {
	if b.err != nil {
		return nil, b.err
	}
	steps := []func() error{
		b.CreateAdjacencyList,
		b.TopologicalSort,
		b.DependencyLevelSort,
		b.CreatePhysicalResources,
		b.CreateRenderPasses,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			b.abandon()
			return nil, err
		}
	}

	g, err := newRenderGraph(b)
	if err != nil {
		b.abandon()
		return nil, err
	}
	b.physical = nil
	Logger().Info("framegraph: graph compiled",
		"label", b.label,
		"passes", len(g.passes),
		"levels", g.levels,
		"families", len(g.families),
		"frames_in_flight", g.frames)
	return g, nil
}

// abandon releases what a failed CreateGraph created.
func (b *GraphBuilder) abandon() {
	b.physical.release(b.device, b.allocator)
	b.physical = nil
	if b.ownCaches {
		b.caches.Release(b.device)
	}
}
