package config

import (
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/memory"
)

var queueNames = map[string]framegraph.QueueType{
	"graphics":      framegraph.QueueGraphics,
	"compute":       framegraph.QueueCompute,
	"transfer":      framegraph.QueueTransfer,
	"async_compute": framegraph.QueueAsyncCompute,
}

var stageNames = map[string]framegraph.PipelineStage{
	"top_of_pipe":             framegraph.StageTopOfPipe,
	"draw_indirect":           framegraph.StageDrawIndirect,
	"vertex_input":            framegraph.StageVertexInput,
	"vertex_shader":           framegraph.StageVertexShader,
	"fragment_shader":         framegraph.StageFragmentShader,
	"early_fragment_tests":    framegraph.StageEarlyFragmentTests,
	"late_fragment_tests":     framegraph.StageLateFragmentTests,
	"color_attachment_output": framegraph.StageColorAttachmentOutput,
	"compute_shader":          framegraph.StageComputeShader,
	"transfer":                framegraph.StageTransfer,
	"bottom_of_pipe":          framegraph.StageBottomOfPipe,
	"host":                    framegraph.StageHost,
}

var accessNames = map[string]framegraph.AccessFlags{
	"indirect_command_read":  framegraph.AccessIndirectCommandRead,
	"index_read":             framegraph.AccessIndexRead,
	"vertex_attribute_read":  framegraph.AccessVertexAttributeRead,
	"uniform_read":           framegraph.AccessUniformRead,
	"input_attachment_read":  framegraph.AccessInputAttachmentRead,
	"shader_read":            framegraph.AccessShaderRead,
	"shader_write":           framegraph.AccessShaderWrite,
	"color_attachment_read":  framegraph.AccessColorAttachmentRead,
	"color_attachment_write": framegraph.AccessColorAttachmentWrite,
	"depth_stencil_read":     framegraph.AccessDepthStencilRead,
	"depth_stencil_write":    framegraph.AccessDepthStencilWrite,
	"transfer_read":          framegraph.AccessTransferRead,
	"transfer_write":         framegraph.AccessTransferWrite,
	"host_read":              framegraph.AccessHostRead,
	"host_write":             framegraph.AccessHostWrite,
}

var loadOpNames = map[string]gputypes.LoadOp{
	"load":  gputypes.LoadOpLoad,
	"clear": gputypes.LoadOpClear,
}

var storeOpNames = map[string]gputypes.StoreOp{
	"store":   gputypes.StoreOpStore,
	"discard": gputypes.StoreOpDiscard,
}

var textureUsageNames = map[string]gputypes.TextureUsage{
	"copy_src":          gputypes.TextureUsageCopySrc,
	"copy_dst":          gputypes.TextureUsageCopyDst,
	"texture_binding":   gputypes.TextureUsageTextureBinding,
	"storage_binding":   gputypes.TextureUsageStorageBinding,
	"render_attachment": gputypes.TextureUsageRenderAttachment,
}

var bufferUsageNames = map[string]gputypes.BufferUsage{
	"map_read":      gputypes.BufferUsageMapRead,
	"map_write":     gputypes.BufferUsageMapWrite,
	"copy_src":      gputypes.BufferUsageCopySrc,
	"copy_dst":      gputypes.BufferUsageCopyDst,
	"index":         gputypes.BufferUsageIndex,
	"vertex":        gputypes.BufferUsageVertex,
	"uniform":       gputypes.BufferUsageUniform,
	"storage":       gputypes.BufferUsageStorage,
	"indirect":      gputypes.BufferUsageIndirect,
	"query_resolve": gputypes.BufferUsageQueryResolve,
}

var memoryNames = map[string]memory.PropertyFlags{
	"device_local":  memory.PropertyDeviceLocal,
	"host_visible":  memory.PropertyHostVisible,
	"host_coherent": memory.PropertyHostCoherent,
	"host_cached":   memory.PropertyHostCached,
}

// lastFormat is the highest TextureFormat value gputypes defines.
const lastFormat = gputypes.TextureFormatASTC12x12UnormSrgb

// parseFormat matches name case-insensitively against the gputypes format
// names, so "rgba16float" and "RGBA16Float" are the same format.
func parseFormat(name string) (gputypes.TextureFormat, bool) {
	for f := gputypes.TextureFormat(1); f <= lastFormat; f++ {
		s := f.String()
		if s != "Unknown" && strings.EqualFold(s, name) {
			return f, true
		}
	}
	return gputypes.TextureFormatUndefined, false
}

// parseFlags ORs the flags named in names. It returns the first unknown name.
func parseFlags[T ~uint32 | ~uint64](table map[string]T, names []string) (T, string) {
	var out T
	for _, n := range names {
		v, ok := table[n]
		if !ok {
			return 0, n
		}
		out |= v
	}
	return out, ""
}
