package native

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/memory"
)

// Memory type indices of the synthetic memory table.
const (
	TypeDeviceLocal = iota
	TypeUpload
	TypeReadback
)

// Alignments reported in resource requirements.
const (
	bufferAlignment        = 4
	bindingBufferAlignment = 256
	textureAlignment       = 256
)

// Block is a block of synthetic device memory.
type Block struct {
	typeIndex int
	size      uint64
	// buffer backs host-visible blocks and is nil for device-local ones.
	buffer hal.Buffer
	mapped int
}

// TypeIndex returns the memory type the block was allocated from.
func (b *Block) TypeIndex() int { return b.typeIndex }

// Size returns the block size in bytes.
func (b *Block) Size() uint64 { return b.size }

// Raw returns the mappable buffer behind a host-visible block.
func (b *Block) Raw() hal.Buffer { return b.buffer }

// Buffer is a buffer created by Device.CreateBuffer.
type Buffer struct {
	label string
	size  uint64
	usage gputypes.BufferUsage

	// raw is the dedicated HAL buffer, or the block's buffer once bound to
	// host-visible memory.
	raw       hal.Buffer
	dedicated bool
	block     *Block
	offset    uint64
}

// Raw returns the HAL buffer holding the data. Use Offset to address it.
func (b *Buffer) Raw() hal.Buffer { return b.raw }

// Offset returns the byte offset of the buffer inside Raw.
func (b *Buffer) Offset() uint64 { return b.offset }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// Texture is an image created by Device.CreateImage, an offscreen swapchain
// image, or a stable proxy for the current surface texture.
type Texture struct {
	label  string
	desc   memory.ImageDesc
	raw    hal.Texture
	block  *Block
	offset uint64
}

// Raw returns the HAL texture. It is nil for a surface proxy between
// present and the next acquire.
func (t *Texture) Raw() hal.Texture { return t.raw }

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// Format returns the texture format.
func (t *Texture) Format() gputypes.TextureFormat { return t.desc.Format }

// View is a texture view created by Device.CreateImageView.
type View struct {
	label   string
	raw     hal.TextureView
	texture *Texture
}

// Raw returns the HAL texture view.
func (v *View) Raw() hal.TextureView { return v.raw }

// Texture returns the texture the view was created from.
func (v *View) Texture() *Texture { return v.texture }

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}

// bufferTypeBits returns the memory types a buffer with usage may live in.
func bufferTypeBits(usage gputypes.BufferUsage) uint32 {
	switch {
	case usage&gputypes.BufferUsageMapWrite != 0:
		return 1 << TypeUpload
	case usage&gputypes.BufferUsageMapRead != 0:
		return 1 << TypeReadback
	default:
		return 1 << TypeDeviceLocal
	}
}

func bufferRequirements(desc memory.BufferDesc) memory.Requirements {
	alignment := uint64(bufferAlignment)
	if desc.Usage&(gputypes.BufferUsageUniform|gputypes.BufferUsageStorage) != 0 {
		alignment = bindingBufferAlignment
	}
	return memory.Requirements{
		Size:      alignUp(max(desc.Size, 1), bufferAlignment),
		Alignment: alignment,
		TypeBits:  bufferTypeBits(desc.Usage),
	}
}

func imageRequirements(desc memory.ImageDesc) (memory.Requirements, error) {
	texel, ok := texelSize(desc.Format)
	if !ok {
		return memory.Requirements{}, errors.Wrapf(ErrUnsupportedFormat, "%v", desc.Format)
	}
	samples := uint64(max(desc.SampleCount, 1))
	w, h := uint64(max(desc.Width, 1)), uint64(max(desc.Height, 1))
	var size uint64
	for range max(desc.MipLevelCount, 1) {
		size += alignUp(w*texel, textureAlignment) * h * samples
		w, h = max(w/2, 1), max(h/2, 1)
	}
	return memory.Requirements{
		Size:      size,
		Alignment: textureAlignment,
		TypeBits:  1 << TypeDeviceLocal,
	}, nil
}

// texelSize returns the bytes per texel of uncompressed formats.
func texelSize(f gputypes.TextureFormat) (uint64, bool) {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint,
		gputypes.TextureFormatStencil8:
		return 1, true
	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Snorm,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatR16Sint,
		gputypes.TextureFormatR16Float, gputypes.TextureFormatRG8Unorm,
		gputypes.TextureFormatRG8Snorm, gputypes.TextureFormatRG8Uint,
		gputypes.TextureFormatRG8Sint, gputypes.TextureFormatDepth16Unorm:
		return 2, true
	case gputypes.TextureFormatR32Float, gputypes.TextureFormatR32Uint,
		gputypes.TextureFormatR32Sint, gputypes.TextureFormatRG16Unorm,
		gputypes.TextureFormatRG16Snorm, gputypes.TextureFormatRG16Uint,
		gputypes.TextureFormatRG16Sint, gputypes.TextureFormatRG16Float,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatRGBA8Snorm, gputypes.TextureFormatRGBA8Uint,
		gputypes.TextureFormatRGBA8Sint, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatBGRA8UnormSrgb, gputypes.TextureFormatRGB10A2Uint,
		gputypes.TextureFormatRGB10A2Unorm, gputypes.TextureFormatRG11B10Ufloat,
		gputypes.TextureFormatRGB9E5Ufloat, gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32Float:
		return 4, true
	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRG32Uint,
		gputypes.TextureFormatRG32Sint, gputypes.TextureFormatRGBA16Unorm,
		gputypes.TextureFormatRGBA16Snorm, gputypes.TextureFormatRGBA16Uint,
		gputypes.TextureFormatRGBA16Sint, gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatDepth32FloatStencil8:
		return 8, true
	case gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Uint,
		gputypes.TextureFormatRGBA32Sint:
		return 16, true
	default:
		return 0, false
	}
}

// hostBufferUsage is the usage of the HAL buffer backing a host-visible
// block.
func hostBufferUsage(typeIndex int) gputypes.BufferUsage {
	if typeIndex == TypeReadback {
		return gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	}
	return gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
}
