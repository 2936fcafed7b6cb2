package config

import "github.com/hashicorp/hcl/v2"

// fileSchema is the top-level structure of a graph description file.
type fileSchema struct {
	FramesInFlight      *int             `hcl:"frames_in_flight,optional"`
	FramesInFlightRange hcl.Range        `hcl:"frames_in_flight,attr_value_range"`
	Resources           []*resourceBlock `hcl:"resource,block"`
	Passes              []*passBlock     `hcl:"pass,block"`
}

// resourceBlock is a `resource "image"|"buffer" "name"` block.
type resourceBlock struct {
	Kind         string         `hcl:"kind,label"`
	Name         string         `hcl:"name,label"`
	Format       string         `hcl:"format,optional"`
	FormatRange  hcl.Range      `hcl:"format,attr_value_range"`
	Size         hcl.Expression `hcl:"size,optional"`
	Usage        []string       `hcl:"usage,optional"`
	SampleCount  int            `hcl:"sample_count,optional"`
	ClearColor   []float64      `hcl:"clear_color,optional"`
	ClearDepth   float64        `hcl:"clear_depth,optional"`
	ClearStencil int            `hcl:"clear_stencil,optional"`
	Memory       []string       `hcl:"memory,optional"`
	DefRange     hcl.Range      `hcl:",def_range"`
	KindRange    hcl.Range      `hcl:"kind,label_range"`
}

// passBlock is a `pass "name"` block.
type passBlock struct {
	Name       string           `hcl:"name,label"`
	Queue      string           `hcl:"queue,optional"`
	QueueRange hcl.Range        `hcl:"queue,attr_value_range"`
	Writes     []*accessBlock   `hcl:"write,block"`
	Reads      []*accessBlock   `hcl:"read,block"`
	Backbuffer *backbufferBlock `hcl:"write_backbuffer,block"`
	DefRange   hcl.Range        `hcl:",def_range"`
}

// accessBlock is a `read "res"` or `write "res"` block.
type accessBlock struct {
	Resource string    `hcl:"resource,label"`
	LoadOp   string    `hcl:"load_op,optional"`
	StoreOp  string    `hcl:"store_op,optional"`
	Layout   string    `hcl:"layout,optional"`
	Stages   []string  `hcl:"stages,optional"`
	Access   []string  `hcl:"access,optional"`
	DefRange hcl.Range `hcl:",def_range"`
}

// backbufferBlock is a `write_backbuffer` block.
type backbufferBlock struct {
	LoadOp     string    `hcl:"load_op,optional"`
	StoreOp    string    `hcl:"store_op,optional"`
	Layout     string    `hcl:"layout,optional"`
	Stages     []string  `hcl:"stages,optional"`
	Access     []string  `hcl:"access,optional"`
	ClearColor []float64 `hcl:"clear_color,optional"`
	DefRange   hcl.Range `hcl:",def_range"`
}
