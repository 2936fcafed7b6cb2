package framegraph

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
)

// PassHandle is a stable reference to a pass. It stays valid after the
// execution order is computed.
type PassHandle int32

// InvalidPass is returned by GraphBuilder.PassHandle for unknown passes.
const InvalidPass PassHandle = -1

// String returns "pass#N".
func (h PassHandle) String() string { return fmt.Sprintf("pass#%d", int32(h)) }

// RecordFunc records a pass's commands for one frame.
type RecordFunc func(ctx *ExecutionContext)

// InitFunc runs once after every physical resource and render pass exists.
// Passes use it to create pipelines and pass-owned resources.
type InitFunc func(ctx *InitContext) error

// AttachmentDesc is a render-pass attachment derived from an image write.
type AttachmentDesc struct {
	Resource      string
	Format        gputypes.TextureFormat
	SampleCount   uint32
	LoadOp        gputypes.LoadOp
	StoreOp       gputypes.StoreOp
	InitialLayout Layout
	FinalLayout   Layout
	ClearColor    gputypes.Color
	ClearDepth    float32
	ClearStencil  uint32
}

func (a AttachmentDesc) key() AttachmentKey {
	return AttachmentKey{
		Format:        a.Format,
		SampleCount:   a.SampleCount,
		LoadOp:        a.LoadOp,
		StoreOp:       a.StoreOp,
		InitialLayout: a.InitialLayout,
		FinalLayout:   a.FinalLayout,
	}
}

// PassDescription is a registered pass.
type PassDescription struct {
	name   string
	handle PassHandle
	queue  QueueType

	reads  []string
	writes []string

	init   InitFunc
	record RecordFunc

	order int
	level int

	colors        []AttachmentDesc
	depth         *AttachmentDesc
	renderPassKey RenderPassKey
	renderPass    RenderPass
	extent        Extent
}

func newPassDescription(name string, handle PassHandle, queue QueueType) *PassDescription {
	return &PassDescription{
		name:   name,
		handle: handle,
		queue:  queue,
		order:  -1,
		level:  -1,
	}
}

// Name returns the unique pass name.
func (p *PassDescription) Name() string { return p.name }

// Handle returns the stable handle.
func (p *PassDescription) Handle() PassHandle { return p.handle }

// Queue returns the queue affinity.
func (p *PassDescription) Queue() QueueType { return p.queue }

// Reads returns the names of resources the pass reads, in declaration order.
func (p *PassDescription) Reads() []string { return slices.Clone(p.reads) }

// Writes returns the names of resources the pass writes, in declaration order.
func (p *PassDescription) Writes() []string { return slices.Clone(p.writes) }

// Order returns the position in the execution order, or -1 before
// DependencyLevelSort.
func (p *PassDescription) Order() int { return p.order }

// Level returns the dependency level, or -1 before DependencyLevelSort.
func (p *PassDescription) Level() int { return p.level }

// ColorAttachments returns the color attachments in write order.
func (p *PassDescription) ColorAttachments() []AttachmentDesc { return slices.Clone(p.colors) }

// DepthAttachment returns the depth attachment, if any.
func (p *PassDescription) DepthAttachment() (AttachmentDesc, bool) {
	if p.depth == nil {
		return AttachmentDesc{}, false
	}
	return *p.depth, true
}

// IsRenderPass reports whether the pass records inside a render pass.
func (p *PassDescription) IsRenderPass() bool {
	return len(p.colors) > 0 || p.depth != nil
}

// RenderPassKey returns the key of the pass's render pass.
func (p *PassDescription) RenderPassKey() RenderPassKey { return p.renderPassKey }

// Extent returns the render area of the pass's attachments.
func (p *PassDescription) Extent() Extent { return p.extent }

func (p *PassDescription) readsResource(name string) bool  { return slices.Contains(p.reads, name) }
func (p *PassDescription) writesResource(name string) bool { return slices.Contains(p.writes, name) }

func addUnique(set []string, name string) []string {
	if slices.Contains(set, name) {
		return set
	}
	return append(set, name)
}
