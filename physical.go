package framegraph

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/memory"
)

// physicalImage is the per-slot backing of one image resource.
type physicalImage struct {
	info   ImageInfo
	extent Extent
	images []*memory.Image
	views  []ImageView
}

// physicalBuffer is the per-slot backing of one buffer resource.
type physicalBuffer struct {
	buffers []*memory.Buffer
}

// physicalResources owns every physical image and buffer of a graph.
type physicalResources struct {
	images  map[string]*physicalImage
	buffers map[string]*physicalBuffer
	order   []string
}

// needsPhysicalImage reports whether the graph allocates r. The backbuffer
// belongs to the swapchain and storage-only images belong to their passes.
func needsPhysicalImage(r *ResourceDescription) bool {
	return r.Kind == ResourceImage && r.Name != Backbuffer && r.Written() && !r.Image.StorageOnly()
}

func allocatePhysical(device Device, allocator *memory.Allocator, resources []*ResourceDescription, swapchain Extent, frames int) (*physicalResources, error) {
	pr := &physicalResources{
		images:  make(map[string]*physicalImage),
		buffers: make(map[string]*physicalBuffer),
	}
	for _, r := range resources {
		var err error
		switch {
		case needsPhysicalImage(r):
			err = pr.allocateImage(device, allocator, r, swapchain, frames)
		case r.Kind == ResourceBuffer && r.Written():
			err = pr.allocateBuffer(allocator, r, frames)
		default:
			continue
		}
		if err != nil {
			pr.release(device, allocator)
			return nil, err
		}
	}
	return pr, nil
}

func (pr *physicalResources) allocateImage(device Device, allocator *memory.Allocator, r *ResourceDescription, swapchain Extent, frames int) error {
	if r.Image.Format == gputypes.TextureFormatUndefined {
		return configError(errors.Wrapf(ErrInvalidAttachment, "image %q written without a format", r.Name))
	}
	pi := &physicalImage{info: r.Image, extent: r.Image.Size.Resolve(swapchain)}
	pr.images[r.Name] = pi
	pr.order = append(pr.order, r.Name)

	aspect := gputypes.TextureAspectAll
	for slot := range frames {
		label := fmt.Sprintf("%s[%d]", r.Name, slot)
		img, err := allocator.AllocateImage(memory.ImageDesc{
			Label:         label,
			Width:         pi.extent.Width,
			Height:        pi.extent.Height,
			Format:        r.Image.Format,
			Usage:         r.Image.Usage,
			SampleCount:   r.Image.SampleCount,
			MipLevelCount: 1,
		}, memory.PropertyDeviceLocal)
		if err != nil {
			return errors.Wrapf(err, "allocate image %s", label)
		}
		pi.images = append(pi.images, img)

		view, err := device.CreateImageView(img.Handle, ImageViewDesc{
			Label:  label,
			Format: r.Image.Format,
			Aspect: aspect,
		})
		if err != nil {
			return errors.Wrapf(err, "create view %s", label)
		}
		pi.views = append(pi.views, view)
	}
	Logger().Debug("framegraph: image allocated",
		"name", r.Name, "format", r.Image.Format.String(), "extent", pi.extent.String(), "slots", frames)
	return nil
}

func (pr *physicalResources) allocateBuffer(allocator *memory.Allocator, r *ResourceDescription, frames int) error {
	if r.Buffer.Size == 0 {
		return configError(errors.Newf("framegraph: buffer %q written without a size", r.Name))
	}
	usage := r.Buffer.Usage
	if usage == gputypes.BufferUsageNone {
		usage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	}
	pb := &physicalBuffer{}
	pr.buffers[r.Name] = pb
	pr.order = append(pr.order, r.Name)

	for slot := range frames {
		label := fmt.Sprintf("%s[%d]", r.Name, slot)
		buf, err := allocator.AllocateBuffer(memory.BufferDesc{
			Label: label,
			Size:  r.Buffer.Size,
			Usage: usage,
		}, r.Buffer.Properties)
		if err != nil {
			return errors.Wrapf(err, "allocate buffer %s", label)
		}
		pb.buffers = append(pb.buffers, buf)
	}
	Logger().Debug("framegraph: buffer allocated", "name", r.Name, "size", r.Buffer.Size, "slots", frames)
	return nil
}

// release frees every resource immediately. The device must be idle.
func (pr *physicalResources) release(device Device, allocator *memory.Allocator) {
	if pr == nil {
		return
	}
	for _, name := range pr.order {
		if pi, ok := pr.images[name]; ok {
			for _, v := range pi.views {
				device.DestroyImageView(v)
			}
			for _, img := range pi.images {
				if err := allocator.FreeImage(img); err != nil {
					Logger().Warn("framegraph: free image", "name", name, "err", err)
				}
			}
		}
		if pb, ok := pr.buffers[name]; ok {
			for _, buf := range pb.buffers {
				if err := allocator.FreeBuffer(buf); err != nil {
					Logger().Warn("framegraph: free buffer", "name", name, "err", err)
				}
			}
		}
	}
	clear(pr.images)
	clear(pr.buffers)
	pr.order = nil
}

func (pr *physicalResources) image(name string, slot int) *memory.Image {
	if pr == nil {
		return nil
	}
	pi, ok := pr.images[name]
	if !ok || slot < 0 || slot >= len(pi.images) {
		return nil
	}
	return pi.images[slot]
}

func (pr *physicalResources) view(name string, slot int) ImageView {
	if pr == nil {
		return nil
	}
	pi, ok := pr.images[name]
	if !ok || slot < 0 || slot >= len(pi.views) {
		return nil
	}
	return pi.views[slot]
}

func (pr *physicalResources) buffer(name string, slot int) *memory.Buffer {
	if pr == nil {
		return nil
	}
	pb, ok := pr.buffers[name]
	if !ok || slot < 0 || slot >= len(pb.buffers) {
		return nil
	}
	return pb.buffers[slot]
}

// passUse merges every access one pass makes to a resource.
type passUse struct {
	pass   *PassDescription
	stages PipelineStage
	access AccessFlags
	// layout is the write's layout when the pass writes, else the read's.
	layout Layout
	write  *Access
}

// uses returns the per-pass uses of r in execution order.
func (b *GraphBuilder) uses(r *ResourceDescription) []passUse {
	var out []passUse
	for _, a := range r.Accesses {
		p, _ := b.Pass(a.Pass)
		i := slices.IndexFunc(out, func(u passUse) bool { return u.pass == p })
		if i < 0 {
			out = append(out, passUse{pass: p, layout: a.Layout})
			i = len(out) - 1
		}
		u := &out[i]
		u.stages |= a.Stages
		u.access |= a.Access
		if a.IsWrite() && u.write == nil {
			w := a
			u.write = &w
			u.layout = a.Layout
		}
	}
	slices.SortStableFunc(out, func(x, y passUse) int { return x.pass.order - y.pass.order })
	return out
}

// isAttachment reports whether u is written through a render pass, which
// transitions the image itself.
func isAttachment(r *ResourceDescription, u passUse) bool {
	if u.write == nil || r.Kind != ResourceImage || u.pass.queue.Family() != FamilyGraphics {
		return false
	}
	return r.Name == Backbuffer || r.Image.Usage.Contains(gputypes.TextureUsageRenderAttachment)
}

// CreatePhysicalResources allocates the per-slot physical images and
// buffers, infers every pass's attachments with their initial and final
// layouts, and computes the barrier batches.
func (b *GraphBuilder) CreatePhysicalResources() error {
	if b.stage < stageLevelled {
		return errors.Wrap(ErrNotCompiled, "CreatePhysicalResources before DependencyLevelSort")
	}
	frames := b.swapchain.FramesInFlight()
	if n := b.allocator.FramesInFlight(); n != frames {
		return configError(errors.Wrapf(ErrFramesInFlight, "allocator has %d, swapchain has %d", n, frames))
	}
	if err := b.inferAttachments(); err != nil {
		return err
	}

	b.physical.release(b.device, b.allocator)
	b.extent = b.swapchain.Extent()
	pr, err := allocatePhysical(b.device, b.allocator, b.Resources(), b.extent, frames)
	if err != nil {
		return err
	}
	b.physical = pr
	b.barriers = b.inferBarriers()
	b.stage = stagePhysical
	Logger().Debug("framegraph: physical resources created",
		"images", len(pr.images), "buffers", len(pr.buffers), "extent", b.extent.String())
	return nil
}

func (b *GraphBuilder) inferAttachments() error {
	swapExtent := b.swapchain.Extent()
	for _, h := range b.order {
		p := b.passes[h]
		p.colors = p.colors[:0]
		p.depth = nil
		p.renderPassKey = RenderPassKey{}
		p.extent = Extent{}

		for _, name := range p.writes {
			r := b.resources[name]
			uses := b.uses(r)
			i := slices.IndexFunc(uses, func(u passUse) bool { return u.pass == p })
			if !isAttachment(r, uses[i]) {
				continue
			}
			w := uses[i].write

			initial := LayoutUndefined
			if i > 0 {
				initial = uses[i-1].layout
			}
			var final Layout
			switch {
			case i+1 < len(uses):
				final = uses[i+1].layout
			case r.Name == Backbuffer:
				final = LayoutPresentSrc
			case w.Layout != LayoutUndefined:
				final = w.Layout
			default:
				final = LayoutAttachmentOptimal
			}

			att := AttachmentDesc{
				Resource:      name,
				Format:        r.Image.Format,
				SampleCount:   max(r.Image.SampleCount, 1),
				LoadOp:        w.LoadOp,
				StoreOp:       w.StoreOp,
				InitialLayout: initial,
				FinalLayout:   final,
				ClearColor:    r.Image.ClearColor,
				ClearDepth:    r.Image.ClearDepth,
				ClearStencil:  r.Image.ClearStencil,
			}
			extent := r.Image.Size.Resolve(swapExtent)
			if r.Name == Backbuffer {
				att.Format = b.swapchain.Format()
				extent = swapExtent
			}
			if err := p.addAttachment(att, r.Image.IsDepth(), extent); err != nil {
				return configError(err)
			}
		}
		p.renderPassKey = p.buildRenderPassKey()
		if p.IsRenderPass() {
			Logger().Debug("framegraph: render pass inferred",
				"pass", p.name, "colors", len(p.colors), "depth", p.depth != nil, "extent", p.extent.String())
		}
	}
	return nil
}

func (p *PassDescription) addAttachment(att AttachmentDesc, depth bool, extent Extent) error {
	if p.IsRenderPass() && extent != p.extent {
		return errors.Wrapf(ErrInvalidAttachment, "pass %q: %q is %s, other attachments are %s",
			p.name, att.Resource, extent, p.extent)
	}
	switch {
	case depth && p.depth != nil:
		return errors.Wrapf(ErrInvalidAttachment, "pass %q writes depth images %q and %q",
			p.name, p.depth.Resource, att.Resource)
	case depth:
		p.depth = &att
	case len(p.colors) == MaxColorAttachments:
		return errors.Wrapf(ErrInvalidAttachment, "pass %q writes more than %d color attachments",
			p.name, MaxColorAttachments)
	default:
		p.colors = append(p.colors, att)
	}
	p.extent = extent
	return nil
}

func (p *PassDescription) buildRenderPassKey() RenderPassKey {
	var key RenderPassKey
	key.ColorCount = len(p.colors)
	for i, c := range p.colors {
		key.Colors[i] = c.key()
	}
	if p.depth != nil {
		key.HasDepth = true
		key.Depth = p.depth.key()
	}
	return key
}

// BarrierBatch is the set of barriers recorded before the first pass of a
// dependency level on one queue family.
type BarrierBatch struct {
	Level    int
	Family   QueueFamily
	Barriers []Barrier
}

// inferBarriers emits a barrier for every non-attachment use whose previous
// use ran at an earlier level and either side writes, and a layout
// transition out of Undefined for an image's first non-attachment use.
func (b *GraphBuilder) inferBarriers() []BarrierBatch {
	var batches []BarrierBatch
	add := func(level int, family QueueFamily, br Barrier) {
		i := slices.IndexFunc(batches, func(bb BarrierBatch) bool {
			return bb.Level == level && bb.Family == family
		})
		if i < 0 {
			batches = append(batches, BarrierBatch{Level: level, Family: family})
			i = len(batches) - 1
		}
		batches[i].Barriers = append(batches[i].Barriers, br)
	}

	for _, r := range b.Resources() {
		if r.Kind == ResourceImage && r.Name != Backbuffer && !needsPhysicalImage(r) {
			continue
		}
		uses := b.uses(r)
		for i, u := range uses {
			if isAttachment(r, u) {
				continue
			}
			br := Barrier{
				Resource:  r.Name,
				Kind:      r.Kind,
				DstStages: u.stages,
				DstAccess: u.access,
			}
			if r.Kind == ResourceImage {
				br.NewLayout = u.layout
			}
			if i == 0 {
				if r.Kind != ResourceImage || u.layout == LayoutUndefined {
					continue
				}
				br.SrcStages = StageTopOfPipe
				br.OldLayout = LayoutUndefined
				add(u.pass.level, u.pass.queue.Family(), br)
				continue
			}
			prev := uses[i-1]
			if prev.pass.level >= u.pass.level {
				continue
			}
			if prev.write == nil && u.write == nil && (r.Kind != ResourceImage || prev.layout == u.layout) {
				continue
			}
			br.SrcStages = prev.stages
			br.SrcAccess = prev.access
			if r.Kind == ResourceImage {
				br.OldLayout = prev.layout
				if isAttachment(r, prev) {
					// The render pass already left the image in this use's layout.
					br.OldLayout = u.layout
				}
			}
			add(u.pass.level, u.pass.queue.Family(), br)
		}
	}
	slices.SortStableFunc(batches, func(x, y BarrierBatch) int { return x.Level - y.Level })
	return batches
}
