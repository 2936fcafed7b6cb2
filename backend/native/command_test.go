package native

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/framegraph"
)

func newTestCommandBuffer(t *testing.T) (*CommandBuffer, *recordingEncoder) {
	t.Helper()
	d, raw := newTestDevice(t)
	pool, err := d.CreateCommandPool(framegraph.FamilyGraphics, 1, 1)
	if err != nil {
		t.Fatalf("CreateCommandPool() error = %v", err)
	}
	t.Cleanup(pool.Destroy)
	return pool.CommandBuffer(0, 0).(*CommandBuffer), raw.encoders[0]
}

func TestPipelineBarrier(t *testing.T) {
	cmd, enc := newTestCommandBuffer(t)
	tex := &Texture{label: "img", raw: &noop.Texture{}}
	buf := &Buffer{label: "particles", raw: &halView{label: "buf"}}

	cmd.PipelineBarrier([]framegraph.Barrier{
		{
			Resource:  "img",
			Kind:      framegraph.ResourceImage,
			Image:     tex,
			OldLayout: framegraph.LayoutColorAttachment,
			NewLayout: framegraph.LayoutShaderReadOnly,
		},
		{
			Resource:  "particles",
			Kind:      framegraph.ResourceBuffer,
			Buffer:    buf,
			SrcAccess: framegraph.AccessShaderWrite,
			DstAccess: framegraph.AccessVertexAttributeRead | framegraph.AccessIndirectCommandRead,
		},
		{Resource: "unbound", Kind: framegraph.ResourceImage, Image: &Texture{}},
	})

	if len(enc.textures) != 1 {
		t.Fatalf("texture barriers = %d, want 1", len(enc.textures))
	}
	tb := enc.textures[0]
	if tb.Usage.OldUsage != gputypes.TextureUsageRenderAttachment || tb.Usage.NewUsage != gputypes.TextureUsageTextureBinding {
		t.Errorf("texture transition = %v -> %v, want RenderAttachment -> TextureBinding", tb.Usage.OldUsage, tb.Usage.NewUsage)
	}
	if tb.Range.Aspect != gputypes.TextureAspectAll {
		t.Errorf("texture range aspect = %v, want All", tb.Range.Aspect)
	}
	if len(enc.buffers) != 1 {
		t.Fatalf("buffer barriers = %d, want 1", len(enc.buffers))
	}
	bb := enc.buffers[0]
	if bb.Usage.OldUsage != gputypes.BufferUsageStorage ||
		bb.Usage.NewUsage != gputypes.BufferUsageVertex|gputypes.BufferUsageIndirect {
		t.Errorf("buffer transition = %v -> %v, want Storage -> Vertex|Indirect", bb.Usage.OldUsage, bb.Usage.NewUsage)
	}
}

func TestAccessBufferUsage(t *testing.T) {
	tests := []struct {
		access framegraph.AccessFlags
		want   gputypes.BufferUsage
	}{
		{0, gputypes.BufferUsageNone},
		{framegraph.AccessUniformRead, gputypes.BufferUsageUniform},
		{framegraph.AccessShaderRead | framegraph.AccessShaderWrite, gputypes.BufferUsageStorage},
		{framegraph.AccessTransferRead | framegraph.AccessTransferWrite, gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst},
		{framegraph.AccessIndexRead, gputypes.BufferUsageIndex},
		{framegraph.AccessHostRead, gputypes.BufferUsageMapRead},
	}
	for _, tt := range tests {
		if got := accessBufferUsage(tt.access); got != tt.want {
			t.Errorf("accessBufferUsage(%v) = %v, want %v", tt.access, got, tt.want)
		}
	}
}

func TestRenderPassDescriptor(t *testing.T) {
	color := &View{label: "color", raw: &halView{label: "color"}}
	normal := &View{label: "normal", raw: &halView{label: "normal"}}
	depth := &View{label: "depth", raw: &halView{label: "depth"}}

	key := framegraph.RenderPassKey{ColorCount: 2, HasDepth: true}
	key.Colors[0] = framegraph.AttachmentKey{
		Format:  gputypes.TextureFormatRGBA8Unorm,
		LoadOp:  gputypes.LoadOpClear,
		StoreOp: gputypes.StoreOpStore,
	}
	key.Colors[1] = framegraph.AttachmentKey{
		Format:  gputypes.TextureFormatRGBA16Float,
		LoadOp:  gputypes.LoadOpLoad,
		StoreOp: gputypes.StoreOpStore,
	}
	key.Depth = framegraph.AttachmentKey{
		Format:  gputypes.TextureFormatDepth32Float,
		LoadOp:  gputypes.LoadOpClear,
		StoreOp: gputypes.StoreOpDiscard,
	}
	fb := framegraph.FramebufferKey{ViewCount: 3}
	fb.Views[0], fb.Views[1], fb.Views[2] = color, normal, depth

	begin := framegraph.RenderPassBegin{Label: "geometry", ClearDepth: 1, ClearStencil: 7}
	begin.ClearColors[0] = gputypes.Color{R: 0.25, A: 1}

	got, err := renderPassDescriptor(key, fb, begin)
	if err != nil {
		t.Fatalf("renderPassDescriptor() error = %v", err)
	}
	want := &hal.RenderPassDescriptor{
		Label: "geometry",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{View: color.raw, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore, ClearValue: gputypes.Color{R: 0.25, A: 1}},
			{View: normal.raw, LoadOp: gputypes.LoadOpLoad, StoreOp: gputypes.StoreOpStore},
		},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:            depth.raw,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpDiscard,
			DepthClearValue: 1,
		},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(halView{})); diff != "" {
		t.Errorf("renderPassDescriptor() mismatch (-want +got):\n%s", diff)
	}

	fb.Views[1] = &View{label: "proxy"}
	if _, err := renderPassDescriptor(key, fb, begin); err == nil {
		t.Error("renderPassDescriptor() with an unbound view succeeded")
	}
}

func TestCommandBufferRenderPass(t *testing.T) {
	cmd, enc := newTestCommandBuffer(t)
	view := &View{label: "target", raw: &halView{label: "target"}}
	rp := &RenderPass{Key: framegraph.RenderPassKey{ColorCount: 1}}
	rp.Key.Colors[0].Format = gputypes.TextureFormatBGRA8Unorm
	fb := &Framebuffer{Key: framegraph.FramebufferKey{RenderPass: rp, ViewCount: 1}}
	fb.Key.Views[0] = view

	if err := cmd.Begin("frame"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := cmd.BeginRenderPass(rp, fb, framegraph.RenderPassBegin{Label: "ui"}); err != nil {
		t.Fatalf("BeginRenderPass() error = %v", err)
	}
	if cmd.RenderPassEncoder() == nil {
		t.Error("RenderPassEncoder() = nil inside a render pass")
	}
	cmd.EndRenderPass()
	if cmd.RenderPassEncoder() != nil {
		t.Error("RenderPassEncoder() != nil after EndRenderPass")
	}
	if err := cmd.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if len(enc.passes) != 1 || enc.passes[0].Label != "ui" {
		t.Errorf("render passes = %v, want one labelled ui", enc.passes)
	}
	if err := cmd.BeginRenderPass("foreign", fb, framegraph.RenderPassBegin{}); err == nil {
		t.Error("BeginRenderPass(foreign) succeeded")
	}
}

func TestCommandBufferAttachmentTransitions(t *testing.T) {
	cmd, enc := newTestCommandBuffer(t)
	color := &Texture{label: "color", raw: &noop.Texture{}}
	depth := &Texture{label: "depth", raw: &noop.Texture{}}
	rp := &RenderPass{Key: framegraph.RenderPassKey{ColorCount: 1, HasDepth: true}}
	rp.Key.Colors[0] = framegraph.AttachmentKey{
		Format:        gputypes.TextureFormatRGBA16Float,
		InitialLayout: framegraph.LayoutUndefined,
		FinalLayout:   framegraph.LayoutShaderReadOnly,
	}
	rp.Key.Depth = framegraph.AttachmentKey{
		Format:        gputypes.TextureFormatDepth32Float,
		InitialLayout: framegraph.LayoutDepthStencilAttachment,
		FinalLayout:   framegraph.LayoutDepthStencilAttachment,
	}
	fb := &Framebuffer{Key: framegraph.FramebufferKey{RenderPass: rp, ViewCount: 2}}
	fb.Key.Views[0] = &View{label: "color", raw: &halView{label: "color"}, texture: color}
	fb.Key.Views[1] = &View{label: "depth", raw: &halView{label: "depth"}, texture: depth}

	if err := cmd.Begin("frame"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := cmd.BeginRenderPass(rp, fb, framegraph.RenderPassBegin{Label: "scene"}); err != nil {
		t.Fatalf("BeginRenderPass() error = %v", err)
	}
	if len(enc.textures) != 1 {
		t.Fatalf("texture barriers after BeginRenderPass = %d, want 1", len(enc.textures))
	}
	cmd.EndRenderPass()
	if len(enc.textures) != 2 {
		t.Fatalf("texture barriers after EndRenderPass = %d, want 2", len(enc.textures))
	}

	type transition struct{ old, new gputypes.TextureUsage }
	var got []transition
	for _, b := range enc.textures {
		got = append(got, transition{b.Usage.OldUsage, b.Usage.NewUsage})
	}
	want := []transition{
		{gputypes.TextureUsageNone, gputypes.TextureUsageRenderAttachment},
		{gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageTextureBinding},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(transition{})); diff != "" {
		t.Errorf("attachment transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandBufferDiscard(t *testing.T) {
	cmd, enc := newTestCommandBuffer(t)
	view := &View{label: "target", raw: &halView{label: "target"}}
	rp := &RenderPass{Key: framegraph.RenderPassKey{ColorCount: 1}}
	rp.Key.Colors[0].Format = gputypes.TextureFormatBGRA8Unorm
	fb := &Framebuffer{Key: framegraph.FramebufferKey{RenderPass: rp, ViewCount: 1}}
	fb.Key.Views[0] = view

	cmd.Discard()
	if enc.discarded != 0 {
		t.Errorf("Discard() before Begin discarded %d encodings, want 0", enc.discarded)
	}
	if err := cmd.Begin("frame"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := cmd.BeginRenderPass(rp, fb, framegraph.RenderPassBegin{Label: "ui"}); err != nil {
		t.Fatalf("BeginRenderPass() error = %v", err)
	}
	cmd.Discard()
	if enc.discarded != 1 {
		t.Errorf("discarded encodings = %d, want 1", enc.discarded)
	}
	if cmd.RenderPassEncoder() != nil {
		t.Error("RenderPassEncoder() != nil after Discard")
	}
	if err := cmd.End(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("End() after Discard error = %v, want ErrNotRecording", err)
	}
	if err := cmd.Begin("retry"); err != nil {
		t.Errorf("Begin() after Discard error = %v", err)
	}
}
