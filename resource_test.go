package framegraph

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestSizeSpecResolve(t *testing.T) {
	swap := Extent{Width: 1920, Height: 1080}
	tests := []struct {
		name string
		spec SizeSpec
		want Extent
	}{
		{"zero value", SizeSpec{}, swap},
		{"swapchain", SizeSwapchain(), swap},
		{"fixed", SizeFixed(512, 256), Extent{Width: 512, Height: 256}},
		{"half", SizeRelative(0.5), Extent{Width: 960, Height: 540}},
		{"quarter rounds", SizeRelative(0.25), Extent{Width: 480, Height: 270}},
		{"never zero", SizeRelative(0), Extent{Width: 1, Height: 1}},
		{"fixed zero", SizeFixed(0, 8), Extent{Width: 1, Height: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.Resolve(swap); got != tt.want {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLayout(t *testing.T) {
	for l := LayoutUndefined; l <= LayoutPresentSrc; l++ {
		got, ok := ParseLayout(l.String())
		if !ok || got != l {
			t.Errorf("ParseLayout(%q) = %v, %v, want %v", l.String(), got, ok, l)
		}
	}
	if _, ok := ParseLayout("optimal"); ok {
		t.Error("ParseLayout(optimal) succeeded")
	}
}

func TestLayoutUsage(t *testing.T) {
	tests := []struct {
		layout Layout
		want   gputypes.TextureUsage
	}{
		{LayoutColorAttachment, gputypes.TextureUsageRenderAttachment},
		{LayoutDepthStencilReadOnly, gputypes.TextureUsageRenderAttachment},
		{LayoutShaderReadOnly, gputypes.TextureUsageTextureBinding},
		{LayoutGeneral, gputypes.TextureUsageStorageBinding},
		{LayoutTransferDst, gputypes.TextureUsageCopyDst},
		{LayoutPresentSrc, gputypes.TextureUsageNone},
	}
	for _, tt := range tests {
		if got := tt.layout.Usage(); got != tt.want {
			t.Errorf("%v.Usage() = %v, want %v", tt.layout, got, tt.want)
		}
	}
}

func TestAccessRequiresPriorWrite(t *testing.T) {
	tests := []struct {
		name   string
		access Access
		want   bool
	}{
		{"read", Access{Access: AccessShaderRead, LoadOp: gputypes.LoadOpLoad}, false},
		{"clearing write", Access{Access: AccessColorAttachmentWrite, LoadOp: gputypes.LoadOpClear}, false},
		{"loading write", Access{Access: AccessColorAttachmentWrite, LoadOp: gputypes.LoadOpLoad}, true},
		{"undefined load", Access{Access: AccessShaderWrite}, true},
	}
	for _, tt := range tests {
		if got := tt.access.RequiresPriorWrite(); got != tt.want {
			t.Errorf("%s: RequiresPriorWrite() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFlagStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{PipelineStage(0).String(), "None"},
		{(StageVertexShader | StageFragmentShader).String(), "VertexShader|FragmentShader"},
		{(AccessShaderRead | AccessShaderWrite).String(), "ShaderRead|ShaderWrite"},
		{AccessFlags(1 << 20).String(), "0x100000"},
		{QueueAsyncCompute.String(), "async-compute"},
		{QueueAsyncCompute.Family().String(), "compute"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}
