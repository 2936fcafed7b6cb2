package framegraph

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
)

func TestAddPassIsIdempotent(t *testing.T) {
	b, _, _, _ := newTestBuilder(t)

	first := b.AddPass("X", QueueGraphics)
	second := b.AddPass("X", QueueCompute)

	if first.Description() != second.Description() {
		t.Fatal("AddPass() returned a different pass for the same name")
	}
	if got := len(b.Passes()); got != 1 {
		t.Errorf("len(Passes()) = %d, want 1", got)
	}
	if got := second.Description().Queue(); got != QueueGraphics {
		t.Errorf("Queue() = %v, want %v", got, QueueGraphics)
	}

	first.WriteToBackbuffer(BackbufferWrite{})
	g, err := b.CreateGraph()
	if err != nil {
		t.Fatalf("CreateGraph() error = %v", err)
	}
	defer g.Destroy()
	if got := len(g.Passes()); got != 1 {
		t.Errorf("compiled passes = %d, want 1", got)
	}
}

func TestPassHandlesAreStable(t *testing.T) {
	b, _, _, _ := newTestBuilder(t)
	// Registered in reverse dependency order so sorting moves them.
	b.AddPass("present", QueueGraphics).
		ReadImage("scene", ImageRead{}).
		WriteToBackbuffer(BackbufferWrite{})
	b.AddPass("scene", QueueGraphics).
		WriteImage("scene", colorTarget(gputypes.LoadOpClear))

	before := map[string]PassHandle{}
	for _, p := range b.Passes() {
		before[p.Name()] = p.Handle()
	}
	g, err := b.CreateGraph()
	if err != nil {
		t.Fatalf("CreateGraph() error = %v", err)
	}
	defer g.Destroy()

	for name, h := range before {
		if got := b.PassByHandle(h).Name(); got != name {
			t.Errorf("PassByHandle(%v) = %q, want %q", h, got, name)
		}
		if got := b.PassHandle(name); got != h {
			t.Errorf("PassHandle(%q) = %v, want %v", name, got, h)
		}
	}
	if got := b.PassHandle("missing"); got != InvalidPass {
		t.Errorf("PassHandle(missing) = %v, want InvalidPass", got)
	}
	if b.PassByHandle(InvalidPass) != nil {
		t.Error("PassByHandle(InvalidPass) != nil")
	}
	p, _ := g.Pass("scene")
	if p.Order() != 0 || p.Handle() != before["scene"] {
		t.Errorf("scene Order() = %d Handle() = %v, want 0 and %v", p.Order(), p.Handle(), before["scene"])
	}
}

func TestResourceKindMismatch(t *testing.T) {
	b, _, _, _ := newTestBuilder(t)
	pb := b.AddPass("A", QueueGraphics).
		WriteImage("x", colorTarget(gputypes.LoadOpClear)).
		ReadBuffer("x", BufferRead{})

	if !errors.Is(pb.Err(), ErrResourceKind) {
		t.Fatalf("Err() = %v, want ErrResourceKind", pb.Err())
	}
	if _, err := b.CreateGraph(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("CreateGraph() error = %v, want ErrConfiguration", err)
	}
}

func TestWriteDefaults(t *testing.T) {
	b, _, _, _ := newTestBuilder(t)
	b.AddPass("gbuffer", QueueGraphics).
		WriteImage("albedo", colorTarget(gputypes.LoadOpUndefined)).
		WriteImage("depth", ImageWrite{Format: gputypes.TextureFormatDepth32Float})
	b.AddPass("sim", QueueAsyncCompute).
		WriteImage("field", ImageWrite{Format: gputypes.TextureFormatRGBA16Float}).
		WriteBuffer("particles", BufferWrite{Size: 1024})

	tests := []struct {
		resource string
		stages   PipelineStage
		access   AccessFlags
		layout   Layout
	}{
		{"albedo", StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment},
		{"depth", StageEarlyFragmentTests | StageLateFragmentTests, AccessDepthStencilWrite, LayoutDepthStencilAttachment},
		{"field", StageComputeShader, AccessShaderWrite, LayoutGeneral},
		{"particles", StageComputeShader, AccessShaderWrite, LayoutUndefined},
	}
	for _, tt := range tests {
		t.Run(tt.resource, func(t *testing.T) {
			r, ok := b.Resource(tt.resource)
			if !ok {
				t.Fatalf("Resource(%q) not found", tt.resource)
			}
			a := r.Accesses[0]
			if a.Stages != tt.stages {
				t.Errorf("Stages = %v, want %v", a.Stages, tt.stages)
			}
			if a.Access != tt.access {
				t.Errorf("Access = %v, want %v", a.Access, tt.access)
			}
			if a.Layout != tt.layout {
				t.Errorf("Layout = %v, want %v", a.Layout, tt.layout)
			}
			if a.LoadOp != gputypes.LoadOpClear {
				t.Errorf("LoadOp = %v, want Clear", a.LoadOp)
			}
		})
	}

	field, _ := b.Resource("field")
	want := gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding
	if field.Image.Usage != want {
		t.Errorf("compute image Usage = %v, want %v", field.Image.Usage, want)
	}
	particles, _ := b.Resource("particles")
	if particles.Buffer.Size != 1024 {
		t.Errorf("buffer Size = %d, want 1024", particles.Buffer.Size)
	}
}

func TestWriteWithoutFormatKeepsMetadata(t *testing.T) {
	b, _, _, _ := newTestBuilder(t)
	b.AddPass("clear", QueueGraphics).
		WriteImage("hdr", ImageWrite{Format: gputypes.TextureFormatRGBA16Float, Size: SizeRelative(0.5)})
	b.AddPass("blend", QueueGraphics).
		WriteImage("hdr", ImageWrite{LoadOp: gputypes.LoadOpLoad})

	r, _ := b.Resource("hdr")
	if r.Image.Format != gputypes.TextureFormatRGBA16Float {
		t.Errorf("Format = %v, want RGBA16Float", r.Image.Format)
	}
	if r.Image.Size != SizeRelative(0.5) {
		t.Errorf("Size = %v, want swapchain*0.5", r.Image.Size)
	}
	if got := len(r.Writes()); got != 2 {
		t.Errorf("len(Writes()) = %d, want 2", got)
	}
}

func TestReadIsNeverAWrite(t *testing.T) {
	b, _, _, _ := newTestBuilder(t)
	b.AddPass("A", QueueGraphics).ReadBuffer("buf", BufferRead{Access: AccessShaderRead | AccessShaderWrite})

	r, _ := b.Resource("buf")
	if r.Accesses[0].IsWrite() {
		t.Error("ReadBuffer() recorded a write access")
	}
	if r.Written() {
		t.Error("Written() = true, want false")
	}
}
