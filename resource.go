package framegraph

import (
	"fmt"
	"math"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/memory"
)

// Backbuffer is the reserved name of the swapchain image.
const Backbuffer = "backbuffer"

// ResourceKind distinguishes buffers from images.
type ResourceKind uint8

const (
	// ResourceBuffer is a linear GPU buffer.
	ResourceBuffer ResourceKind = iota
	// ResourceImage is a 2D GPU image.
	ResourceImage
)

// String returns the kind name.
func (k ResourceKind) String() string {
	switch k {
	case ResourceBuffer:
		return "buffer"
	case ResourceImage:
		return "image"
	default:
		return fmt.Sprintf("ResourceKind(%d)", int(k))
	}
}

// QueueType is the queue a pass prefers to run on.
type QueueType uint8

const (
	// QueueGraphics runs raster and compute work.
	QueueGraphics QueueType = iota
	// QueueCompute runs compute work.
	QueueCompute
	// QueueTransfer runs copies.
	QueueTransfer
	// QueueAsyncCompute runs compute work overlapping graphics.
	// It shares the compute queue family.
	QueueAsyncCompute
)

// String returns the queue name.
func (q QueueType) String() string {
	switch q {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueTransfer:
		return "transfer"
	case QueueAsyncCompute:
		return "async-compute"
	default:
		return fmt.Sprintf("QueueType(%d)", int(q))
	}
}

// Family returns the queue family the pass is submitted to.
func (q QueueType) Family() QueueFamily {
	switch q {
	case QueueCompute, QueueAsyncCompute:
		return FamilyCompute
	case QueueTransfer:
		return FamilyTransfer
	default:
		return FamilyGraphics
	}
}

// QueueFamily is a group of queues sharing a command pool.
type QueueFamily uint8

const (
	FamilyGraphics QueueFamily = iota
	FamilyCompute
	FamilyTransfer
)

// String returns the family name.
func (f QueueFamily) String() string {
	switch f {
	case FamilyGraphics:
		return "graphics"
	case FamilyCompute:
		return "compute"
	case FamilyTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("QueueFamily(%d)", int(f))
	}
}

// PipelineStage is a set of pipeline stages.
type PipelineStage uint32

const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
	StageHost
)

var stageNames = []string{
	"TopOfPipe", "DrawIndirect", "VertexInput", "VertexShader", "FragmentShader",
	"EarlyFragmentTests", "LateFragmentTests", "ColorAttachmentOutput",
	"ComputeShader", "Transfer", "BottomOfPipe", "Host",
}

// String returns a "|"-joined list of stage names.
func (s PipelineStage) String() string { return flagString(uint32(s), stageNames) }

// AccessFlags is a set of memory access types.
type AccessFlags uint32

const (
	AccessIndirectCommandRead AccessFlags = 1 << iota
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessInputAttachmentRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
)

// writeAccess holds every access bit that modifies memory.
const writeAccess = AccessShaderWrite | AccessColorAttachmentWrite |
	AccessDepthStencilWrite | AccessTransferWrite | AccessHostWrite

var accessNames = []string{
	"IndirectCommandRead", "IndexRead", "VertexAttributeRead", "UniformRead",
	"InputAttachmentRead", "ShaderRead", "ShaderWrite", "ColorAttachmentRead",
	"ColorAttachmentWrite", "DepthStencilRead", "DepthStencilWrite",
	"TransferRead", "TransferWrite", "HostRead", "HostWrite",
}

// String returns a "|"-joined list of access names.
func (a AccessFlags) String() string { return flagString(uint32(a), accessNames) }

// HasWrite reports whether any write bit is set.
func (a AccessFlags) HasWrite() bool { return a&writeAccess != 0 }

func flagString(v uint32, names []string) string {
	if v == 0 {
		return "None"
	}
	var parts []string
	for i, name := range names {
		if v&(1<<uint(i)) != 0 {
			parts = append(parts, name)
			v &^= 1 << uint(i)
		}
	}
	if v != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", v))
	}
	return strings.Join(parts, "|")
}

// Layout is the expected image layout for an access.
type Layout uint8

const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutAttachmentOptimal
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresentSrc
)

var layoutNames = [...]string{
	LayoutUndefined:              "undefined",
	LayoutGeneral:                "general",
	LayoutAttachmentOptimal:      "attachment_optimal",
	LayoutColorAttachment:        "color_attachment",
	LayoutDepthStencilAttachment: "depth_stencil_attachment",
	LayoutDepthStencilReadOnly:   "depth_stencil_read_only",
	LayoutShaderReadOnly:         "shader_read_only",
	LayoutTransferSrc:            "transfer_src",
	LayoutTransferDst:            "transfer_dst",
	LayoutPresentSrc:             "present_src",
}

// String returns the snake_case layout name.
func (l Layout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// ParseLayout returns the layout with the given snake_case name.
func ParseLayout(name string) (Layout, bool) {
	for i, n := range layoutNames {
		if n == name {
			return Layout(i), true
		}
	}
	return LayoutUndefined, false
}

// Usage maps the layout to the texture usage a usage-tracking backend
// transitions to.
func (l Layout) Usage() gputypes.TextureUsage {
	switch l {
	case LayoutGeneral:
		return gputypes.TextureUsageStorageBinding
	case LayoutAttachmentOptimal, LayoutColorAttachment,
		LayoutDepthStencilAttachment, LayoutDepthStencilReadOnly:
		return gputypes.TextureUsageRenderAttachment
	case LayoutShaderReadOnly:
		return gputypes.TextureUsageTextureBinding
	case LayoutTransferSrc:
		return gputypes.TextureUsageCopySrc
	case LayoutTransferDst:
		return gputypes.TextureUsageCopyDst
	default:
		return gputypes.TextureUsageNone
	}
}

// Extent is a 2D size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// String returns "WxH".
func (e Extent) String() string { return fmt.Sprintf("%dx%d", e.Width, e.Height) }

// SizeMode selects how a SizeSpec is resolved.
type SizeMode uint8

const (
	// SizeModeSwapchain matches the swapchain extent.
	SizeModeSwapchain SizeMode = iota
	// SizeModeFixed uses an absolute extent.
	SizeModeFixed
	// SizeModeSwapchainRelative scales the swapchain extent.
	SizeModeSwapchainRelative
)

// SizeSpec describes an image size relative to the swapchain.
// The zero value matches the swapchain.
type SizeSpec struct {
	Mode   SizeMode
	Width  uint32
	Height uint32
	Scale  float32
}

// SizeSwapchain returns a spec matching the swapchain extent.
func SizeSwapchain() SizeSpec { return SizeSpec{Mode: SizeModeSwapchain} }

// SizeFixed returns a spec with an absolute extent.
func SizeFixed(width, height uint32) SizeSpec {
	return SizeSpec{Mode: SizeModeFixed, Width: width, Height: height}
}

// SizeRelative returns a spec scaling the swapchain extent.
func SizeRelative(scale float32) SizeSpec {
	return SizeSpec{Mode: SizeModeSwapchainRelative, Scale: scale}
}

// Resolve returns the extent for a swapchain of the given size.
// Resolved dimensions are never smaller than one pixel.
func (s SizeSpec) Resolve(swapchain Extent) Extent {
	var e Extent
	switch s.Mode {
	case SizeModeFixed:
		e = Extent{Width: s.Width, Height: s.Height}
	case SizeModeSwapchainRelative:
		e = Extent{
			Width:  uint32(math.Round(float64(swapchain.Width) * float64(s.Scale))),
			Height: uint32(math.Round(float64(swapchain.Height) * float64(s.Scale))),
		}
	default:
		e = swapchain
	}
	e.Width = max(e.Width, 1)
	e.Height = max(e.Height, 1)
	return e
}

// String describes the spec.
func (s SizeSpec) String() string {
	switch s.Mode {
	case SizeModeFixed:
		return fmt.Sprintf("%dx%d", s.Width, s.Height)
	case SizeModeSwapchainRelative:
		return fmt.Sprintf("swapchain*%g", s.Scale)
	default:
		return "swapchain"
	}
}

// Access is one declared use of a resource by a pass.
type Access struct {
	// Pass is the name of the pass making the access.
	Pass string
	// Stages are the pipeline stages that touch the resource.
	Stages PipelineStage
	// Access is the set of memory access types.
	Access AccessFlags
	// Layout is the layout an image must be in. Unused for buffers.
	Layout Layout
	// LoadOp describes what a write does with the previous contents.
	LoadOp gputypes.LoadOp
	// StoreOp describes whether an attachment write is kept.
	StoreOp gputypes.StoreOp
}

// IsWrite reports whether the access modifies the resource.
func (a Access) IsWrite() bool { return a.Access.HasWrite() }

// IsRead reports whether the access only reads the resource.
func (a Access) IsRead() bool { return !a.IsWrite() }

// RequiresPriorWrite reports whether a write depends on earlier contents,
// that is, whether it does not clear.
func (a Access) RequiresPriorWrite() bool {
	return a.IsWrite() && a.LoadOp != gputypes.LoadOpClear
}

// ImageInfo is the metadata of an image resource.
type ImageInfo struct {
	Format       gputypes.TextureFormat
	Usage        gputypes.TextureUsage
	Size         SizeSpec
	SampleCount  uint32
	ClearColor   gputypes.Color
	ClearDepth   float32
	ClearStencil uint32
}

// IsDepth reports whether the format has a depth or stencil aspect.
func (i ImageInfo) IsDepth() bool {
	return i.Format.HasDepth() || i.Format.HasStencil()
}

// StorageOnly reports whether the image is only ever bound as a storage
// image. Such images are owned by the passes that use them.
func (i ImageInfo) StorageOnly() bool {
	return i.Usage == gputypes.TextureUsageStorageBinding
}

// BufferInfo is the metadata of a buffer resource.
type BufferInfo struct {
	Size       uint64
	Usage      gputypes.BufferUsage
	Properties memory.PropertyFlags
}

// ResourceDescription is a named resource and every access declared on it,
// in declaration order.
type ResourceDescription struct {
	Name     string
	Kind     ResourceKind
	Accesses []Access
	Image    ImageInfo
	Buffer   BufferInfo
}

// Writes returns the write accesses in declaration order.
func (r *ResourceDescription) Writes() []Access {
	var out []Access
	for _, a := range r.Accesses {
		if a.IsWrite() {
			out = append(out, a)
		}
	}
	return out
}

// Written reports whether any pass writes the resource.
func (r *ResourceDescription) Written() bool {
	for _, a := range r.Accesses {
		if a.IsWrite() {
			return true
		}
	}
	return false
}

// accessIndex returns the index of pass's first access matching want.
func (r *ResourceDescription) accessIndex(pass string, write bool) int {
	for i, a := range r.Accesses {
		if a.Pass == pass && a.IsWrite() == write {
			return i
		}
	}
	return -1
}
