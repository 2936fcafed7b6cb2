// Package framegraph schedules GPU rendering passes and the resources they
// share.
//
// # Overview
//
// A frame is described as a set of named passes that read and write named
// buffers and images. The graph infers the order in which passes must run,
// groups them into dependency levels, allocates per-frame copies of every
// resource a pass produces, derives render-pass attachments with their image
// layouts, and records the whole frame each time [RenderGraph.Execute] is
// called.
//
// # Quick Start
//
//	b := framegraph.NewGraphBuilder(device, swapchain, allocator)
//
//	b.AddPass("gbuffer", framegraph.QueueGraphics).
//	    WriteImage("albedo", framegraph.ImageWrite{
//	        Format: gputypes.TextureFormatRGBA8Unorm,
//	        Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
//	        Size:   framegraph.SizeSwapchain(),
//	    }).
//	    SetRecordFunc(drawScene)
//
//	b.AddPass("compose", framegraph.QueueGraphics).
//	    ReadImage("albedo", framegraph.ImageRead{}).
//	    WriteToBackbuffer(framegraph.BackbufferWrite{}).
//	    SetRecordFunc(drawFullscreen)
//
//	graph, err := b.CreateGraph()
//	if err != nil {
//	    return err
//	}
//	defer graph.Destroy()
//
//	for running {
//	    if err := graph.Execute(); err != nil {
//	        return err
//	    }
//	}
//
// # Ordering rules
//
// Pass Q runs after pass P when Q reads a resource P writes, or when both
// write it and P's write clears while Q's write loads the previous contents.
// A resource may have at most two writers; when it has a clearing and a
// loading writer, readers declared before the loading writer see the cleared
// contents and readers declared after it see the final contents.
//
// # Frames in flight
//
// The graph keeps one physical copy of every produced resource per frame in
// flight and rotates through them. The [memory.Allocator] handed to the
// builder must use the same ring size as the swapchain's frames in flight.
//
// # Backends
//
// The graph talks to the GPU through the [Device] and [Swapchain]
// interfaces. Package backend/native implements them on top of
// gogpu/wgpu's HAL.
package framegraph

// Version information
const (
	// Version is the current version of the library
	Version = "0.4.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 4

	// VersionPatch is the patch version
	VersionPatch = 0
)
