package framegraph

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/memory"
)

// ImageRead describes a pass reading an image. Zero fields take defaults:
// fragment-shader sampling in the shader-read-only layout (compute-shader
// sampling for compute passes).
type ImageRead struct {
	Stages PipelineStage
	Access AccessFlags
	Layout Layout
}

// ImageWrite describes a pass writing an image and stamps the image's
// metadata. Zero fields take defaults: a color or depth attachment write
// matching the format (a storage write on compute queues), cleared and
// stored, one sample, swapchain-sized. A write without a Format only
// declares the access and keeps the metadata of an earlier writer.
type ImageWrite struct {
	Stages  PipelineStage
	Access  AccessFlags
	Layout  Layout
	LoadOp  gputypes.LoadOp
	StoreOp gputypes.StoreOp

	Format       gputypes.TextureFormat
	Usage        gputypes.TextureUsage
	Size         SizeSpec
	SampleCount  uint32
	ClearColor   gputypes.Color
	ClearDepth   float32
	ClearStencil uint32
}

// BufferRead describes a pass reading a buffer. Zero fields take defaults:
// shader reads from the stages of the pass's queue.
type BufferRead struct {
	Stages PipelineStage
	Access AccessFlags
}

// BufferWrite describes a pass writing a buffer and stamps the buffer's
// metadata. LoadOp defaults to clear and Properties to device-local.
type BufferWrite struct {
	Stages PipelineStage
	Access AccessFlags
	LoadOp gputypes.LoadOp

	Size       uint64
	Usage      gputypes.BufferUsage
	Properties memory.PropertyFlags
}

// BackbufferWrite describes a pass rendering into the swapchain image.
type BackbufferWrite struct {
	Stages     PipelineStage
	Access     AccessFlags
	Layout     Layout
	LoadOp     gputypes.LoadOp
	StoreOp    gputypes.StoreOp
	ClearColor gputypes.Color
}

// GraphBuilder collects passes and resources and compiles them into a
// RenderGraph.
//
// The compilation steps can be run one at a time (CreateAdjacencyList,
// TopologicalSort, DependencyLevelSort, CreatePhysicalResources,
// CreateRenderPasses) or all at once with CreateGraph.
type GraphBuilder struct {
	device    Device
	swapchain Swapchain
	allocator *memory.Allocator
	caches    *Caches
	ownCaches bool
	label     string

	resources     map[string]*ResourceDescription
	resourceOrder []string

	passes []*PassDescription
	byName map[string]PassHandle

	adjacency [][]PassHandle
	topo      []PassHandle
	order     []PassHandle
	levels    int

	extent   Extent
	physical *physicalResources
	barriers []BarrierBatch

	stage compileStage
	err   error
}

// NewGraphBuilder creates a builder that compiles against device and
// swapchain and allocates physical resources from allocator.
func NewGraphBuilder(device Device, swapchain Swapchain, allocator *memory.Allocator, opts ...BuilderOption) *GraphBuilder {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	b := &GraphBuilder{
		device:    device,
		swapchain: swapchain,
		allocator: allocator,
		caches:    o.caches,
		label:     o.label,
		resources: make(map[string]*ResourceDescription),
		byName:    make(map[string]PassHandle),
	}
	if b.caches == nil {
		b.caches = NewCaches()
		b.ownCaches = true
	}
	return b
}

// Err returns the first error recorded while declaring passes.
func (b *GraphBuilder) Err() error { return b.err }

func (b *GraphBuilder) fail(err error) {
	if b.err == nil {
		b.err = configError(err)
	}
}

// AddPass registers a pass, or returns the builder of the existing pass with
// that name. The queue of an existing pass is not changed.
func (b *GraphBuilder) AddPass(name string, queue QueueType) *PassBuilder {
	if h, ok := b.byName[name]; ok {
		return &PassBuilder{b: b, pass: b.passes[h]}
	}
	h := PassHandle(len(b.passes))
	p := newPassDescription(name, h, queue)
	b.passes = append(b.passes, p)
	b.byName[name] = h
	return &PassBuilder{b: b, pass: p}
}

// Pass returns the pass registered under name.
func (b *GraphBuilder) Pass(name string) (*PassDescription, bool) {
	h, ok := b.byName[name]
	if !ok {
		return nil, false
	}
	return b.passes[h], true
}

// PassHandle returns the handle of the pass named name, or InvalidPass.
func (b *GraphBuilder) PassHandle(name string) PassHandle {
	h, ok := b.byName[name]
	if !ok {
		return InvalidPass
	}
	return h
}

// PassByHandle returns the pass with handle h.
func (b *GraphBuilder) PassByHandle(h PassHandle) *PassDescription {
	if h < 0 || int(h) >= len(b.passes) {
		return nil
	}
	return b.passes[h]
}

// Passes returns every pass in registration order.
func (b *GraphBuilder) Passes() []*PassDescription { return b.passes }

// Resource returns the resource registered under name.
func (b *GraphBuilder) Resource(name string) (*ResourceDescription, bool) {
	r, ok := b.resources[name]
	return r, ok
}

// Resources returns every resource in first-reference order.
func (b *GraphBuilder) Resources() []*ResourceDescription {
	out := make([]*ResourceDescription, 0, len(b.resourceOrder))
	for _, name := range b.resourceOrder {
		out = append(out, b.resources[name])
	}
	return out
}

// resource looks up or creates a resource of the given kind.
func (b *GraphBuilder) resource(name string, kind ResourceKind) (*ResourceDescription, error) {
	if r, ok := b.resources[name]; ok {
		if r.Kind != kind {
			return nil, errors.Wrapf(ErrResourceKind, "%q is a %s, used as %s", name, r.Kind, kind)
		}
		return r, nil
	}
	r := &ResourceDescription{Name: name, Kind: kind}
	b.resources[name] = r
	b.resourceOrder = append(b.resourceOrder, name)
	return r, nil
}

// PassBuilder declares the resources and callbacks of one pass.
// Errors are recorded on the GraphBuilder and returned by CreateGraph.
type PassBuilder struct {
	b    *GraphBuilder
	pass *PassDescription
}

// Description returns the pass being built.
func (pb *PassBuilder) Description() *PassDescription { return pb.pass }

// Err returns the first error recorded on the graph builder.
func (pb *PassBuilder) Err() error { return pb.b.err }

func (pb *PassBuilder) computeLike() bool {
	return pb.pass.queue.Family() == FamilyCompute
}

func (pb *PassBuilder) shaderStages() PipelineStage {
	if pb.computeLike() {
		return StageComputeShader
	}
	return StageVertexShader | StageFragmentShader
}

// ReadBuffer declares a buffer read.
func (pb *PassBuilder) ReadBuffer(name string, r BufferRead) *PassBuilder {
	res, err := pb.b.resource(name, ResourceBuffer)
	if err != nil {
		pb.b.fail(err)
		return pb
	}
	if r.Stages == 0 {
		r.Stages = pb.shaderStages()
		if pb.pass.queue == QueueTransfer {
			r.Stages = StageTransfer
		}
	}
	if r.Access == 0 {
		r.Access = AccessShaderRead
		if pb.pass.queue == QueueTransfer {
			r.Access = AccessTransferRead
		}
	}
	res.Accesses = append(res.Accesses, Access{
		Pass:   pb.pass.name,
		Stages: r.Stages,
		Access: r.Access &^ writeAccess,
	})
	pb.pass.reads = addUnique(pb.pass.reads, name)
	return pb
}

// ReadImage declares an image read.
func (pb *PassBuilder) ReadImage(name string, r ImageRead) *PassBuilder {
	res, err := pb.b.resource(name, ResourceImage)
	if err != nil {
		pb.b.fail(err)
		return pb
	}
	if r.Stages == 0 {
		r.Stages = StageFragmentShader
		if pb.computeLike() {
			r.Stages = StageComputeShader
		}
	}
	if r.Access == 0 {
		r.Access = AccessShaderRead
	}
	if r.Layout == LayoutUndefined {
		r.Layout = LayoutShaderReadOnly
	}
	res.Accesses = append(res.Accesses, Access{
		Pass:   pb.pass.name,
		Stages: r.Stages,
		Access: r.Access &^ writeAccess,
		Layout: r.Layout,
	})
	pb.pass.reads = addUnique(pb.pass.reads, name)
	return pb
}

// WriteBuffer declares a buffer write and stamps its metadata.
func (pb *PassBuilder) WriteBuffer(name string, w BufferWrite) *PassBuilder {
	res, err := pb.b.resource(name, ResourceBuffer)
	if err != nil {
		pb.b.fail(err)
		return pb
	}
	if w.Stages == 0 {
		w.Stages = pb.shaderStages()
		if pb.pass.queue == QueueTransfer {
			w.Stages = StageTransfer
		}
	}
	if !w.Access.HasWrite() {
		if pb.pass.queue == QueueTransfer {
			w.Access |= AccessTransferWrite
		} else {
			w.Access |= AccessShaderWrite
		}
	}
	if w.LoadOp == gputypes.LoadOpUndefined {
		w.LoadOp = gputypes.LoadOpClear
	}
	if w.Properties == 0 {
		w.Properties = memory.PropertyDeviceLocal
	}
	res.Accesses = append(res.Accesses, Access{
		Pass:   pb.pass.name,
		Stages: w.Stages,
		Access: w.Access,
		LoadOp: w.LoadOp,
	})
	res.Buffer = BufferInfo{Size: w.Size, Usage: w.Usage, Properties: w.Properties}
	pb.pass.writes = addUnique(pb.pass.writes, name)
	return pb
}

// WriteImage declares an image write and stamps its metadata.
func (pb *PassBuilder) WriteImage(name string, w ImageWrite) *PassBuilder {
	if name == Backbuffer {
		return pb.WriteToBackbuffer(BackbufferWrite{
			Stages:     w.Stages,
			Access:     w.Access,
			Layout:     w.Layout,
			LoadOp:     w.LoadOp,
			StoreOp:    w.StoreOp,
			ClearColor: w.ClearColor,
		})
	}
	res, err := pb.b.resource(name, ResourceImage)
	if err != nil {
		pb.b.fail(err)
		return pb
	}
	pb.appendImageWrite(res, res.Image.IsDepth() || w.Format.HasDepth() || w.Format.HasStencil(),
		w.Stages, w.Access, w.Layout, w.LoadOp, w.StoreOp)
	if w.Format == gputypes.TextureFormatUndefined {
		return pb
	}
	info := ImageInfo{
		Format:       w.Format,
		Usage:        w.Usage,
		Size:         w.Size,
		SampleCount:  max(w.SampleCount, 1),
		ClearColor:   w.ClearColor,
		ClearDepth:   w.ClearDepth,
		ClearStencil: w.ClearStencil,
	}
	if info.Usage == gputypes.TextureUsageNone {
		info.Usage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
		if pb.computeLike() {
			info.Usage = gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding
		}
	}
	res.Image = info
	return pb
}

// WriteToBackbuffer declares a write to the swapchain image.
func (pb *PassBuilder) WriteToBackbuffer(w BackbufferWrite) *PassBuilder {
	res, err := pb.b.resource(Backbuffer, ResourceImage)
	if err != nil {
		pb.b.fail(err)
		return pb
	}
	res.Image = ImageInfo{
		Format:      pb.b.swapchain.Format(),
		Usage:       gputypes.TextureUsageRenderAttachment,
		Size:        SizeSwapchain(),
		SampleCount: 1,
		ClearColor:  w.ClearColor,
	}
	pb.appendImageWrite(res, false, w.Stages, w.Access, w.Layout, w.LoadOp, w.StoreOp)
	return pb
}

func (pb *PassBuilder) appendImageWrite(res *ResourceDescription, depth bool, stages PipelineStage,
	access AccessFlags, layout Layout, load gputypes.LoadOp, store gputypes.StoreOp,
) {
	var (
		defStages PipelineStage
		defAccess AccessFlags
		defLayout Layout
	)
	switch {
	case pb.pass.queue == QueueTransfer:
		defStages, defAccess, defLayout = StageTransfer, AccessTransferWrite, LayoutTransferDst
	case pb.computeLike():
		defStages, defAccess, defLayout = StageComputeShader, AccessShaderWrite, LayoutGeneral
	case depth:
		defStages = StageEarlyFragmentTests | StageLateFragmentTests
		defAccess, defLayout = AccessDepthStencilWrite, LayoutDepthStencilAttachment
	default:
		defStages, defAccess, defLayout = StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment
	}
	if stages == 0 {
		stages = defStages
	}
	if !access.HasWrite() {
		access |= defAccess
	}
	if layout == LayoutUndefined {
		layout = defLayout
	}
	if load == gputypes.LoadOpUndefined {
		load = gputypes.LoadOpClear
	}
	if store == gputypes.StoreOpUndefined {
		store = gputypes.StoreOpStore
	}
	res.Accesses = append(res.Accesses, Access{
		Pass:    pb.pass.name,
		Stages:  stages,
		Access:  access,
		Layout:  layout,
		LoadOp:  load,
		StoreOp: store,
	})
	pb.pass.writes = addUnique(pb.pass.writes, res.Name)
}

// SetRecordFunc sets the per-frame record callback.
func (pb *PassBuilder) SetRecordFunc(fn RecordFunc) *PassBuilder {
	pb.pass.record = fn
	return pb
}

// SetInitialisationFunc sets the one-time initialise callback.
func (pb *PassBuilder) SetInitialisationFunc(fn InitFunc) *PassBuilder {
	pb.pass.init = fn
	return pb
}
