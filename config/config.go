// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"cmp"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/gogpu/framegraph"
)

// ErrInvalid marks every error caused by a malformed description.
var ErrInvalid = errors.New("config: invalid graph description")

// fileExt is the extension Load looks for when walking directories.
const fileExt = ".hcl"

// Description is a decoded graph description.
type Description struct {
	// FramesInFlight is zero when no file sets frames_in_flight.
	FramesInFlight int
	Resources      []*Resource
	Passes         []*Pass
}

// Resource returns the declared resource with the given name.
func (d *Description) Resource(name string) (*Resource, bool) {
	for _, r := range d.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Resource is a declared image or buffer. Only the metadata fields of Image
// or Buffer are set; access fields come from each pass.
type Resource struct {
	Name   string
	Kind   framegraph.ResourceKind
	Image  framegraph.ImageWrite
	Buffer framegraph.BufferWrite
	Range  hcl.Range
}

// Pass is a declared pass and its accesses in source order.
type Pass struct {
	Name     string
	Queue    framegraph.QueueType
	Accesses []*Access
	Range    hcl.Range
}

// AccessKind distinguishes the access blocks of a pass.
type AccessKind uint8

const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessBackbuffer
)

// String returns the block name of the access.
func (k AccessKind) String() string {
	switch k {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessBackbuffer:
		return "write_backbuffer"
	default:
		return fmt.Sprintf("AccessKind(%d)", int(k))
	}
}

// Access is one read, write or write_backbuffer block. Zero fields take the
// builder defaults.
type Access struct {
	Resource   string
	Kind       AccessKind
	Stages     framegraph.PipelineStage
	Access     framegraph.AccessFlags
	Layout     framegraph.Layout
	LoadOp     gputypes.LoadOp
	StoreOp    gputypes.StoreOp
	ClearColor gputypes.Color
	Range      hcl.Range
}

// Parse decodes a single description held in src. filename is used in
// source ranges only.
func Parse(src []byte, filename string) (*Description, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, invalid(diags)
	}
	d := newDecoder()
	d.decodeFile(file, filename)
	return d.finish()
}

// Load decodes the description spread over paths. A directory contributes
// every .hcl file below it in lexical order. Declarations may reference
// resources from any of the files.
func Load(paths ...string) (*Description, error) {
	files, err := collectFiles(paths)
	if err != nil {
		return nil, err
	}
	parser := hclparse.NewParser()
	d := newDecoder()
	for _, path := range files {
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, invalid(diags)
		}
		d.decodeFile(file, path)
	}
	return d.finish()
}

func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.Wrap(err, "config: load")
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, e fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !e.IsDir() && filepath.Ext(path) == fileExt {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "config: walk %s", p)
		}
	}
	if len(files) == 0 {
		return nil, errors.Mark(errors.Newf("config: no %s files in %v", fileExt, paths), ErrInvalid)
	}
	return files, nil
}

func invalid(diags hcl.Diagnostics) error {
	return errors.Mark(errors.Mark(diags, ErrInvalid), framegraph.ErrConfiguration)
}

type decoder struct {
	desc        *Description
	resources   map[string]*Resource
	passes      map[string]*Pass
	framesRange *hcl.Range
	diags       hcl.Diagnostics
	unknown     bool
}

func newDecoder() *decoder {
	return &decoder{
		desc:      &Description{},
		resources: make(map[string]*Resource),
		passes:    make(map[string]*Pass),
	}
}

func (d *decoder) errorf(rng hcl.Range, summary, format string, args ...any) {
	d.diags = append(d.diags, &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   fmt.Sprintf(format, args...),
		Subject:  rng.Ptr(),
	})
}

// rangeOr returns r, or fallback when the attribute r belongs to was absent.
func rangeOr(r, fallback hcl.Range) hcl.Range {
	if r.Filename == "" {
		return fallback
	}
	return r
}

func (d *decoder) decodeFile(file *hcl.File, name string) {
	var f fileSchema
	diags := gohcl.DecodeBody(file.Body, nil, &f)
	d.diags = append(d.diags, diags...)
	if diags.HasErrors() {
		return
	}
	framegraph.Logger().Debug("decoded graph file", "path", name,
		"resources", len(f.Resources), "passes", len(f.Passes))

	if f.FramesInFlight != nil {
		switch {
		case d.framesRange != nil:
			d.errorf(f.FramesInFlightRange, "Duplicate frames_in_flight",
				"frames_in_flight is already set at %s.", d.framesRange)
		case *f.FramesInFlight < 1:
			d.errorf(f.FramesInFlightRange, "Invalid frames_in_flight",
				"frames_in_flight must be at least 1, got %d.", *f.FramesInFlight)
		default:
			d.desc.FramesInFlight = *f.FramesInFlight
			d.framesRange = f.FramesInFlightRange.Ptr()
		}
	}
	for _, rb := range f.Resources {
		d.resource(rb)
	}
	for _, pb := range f.Passes {
		d.pass(pb)
	}
}

func (d *decoder) resource(rb *resourceBlock) {
	if rb.Name == framegraph.Backbuffer {
		d.errorf(rb.DefRange, "Reserved resource name",
			"%q names the swapchain image and cannot be declared.", rb.Name)
		return
	}
	if prev, ok := d.resources[rb.Name]; ok {
		d.errorf(rb.DefRange, "Duplicate resource",
			"Resource %q is already declared at %s.", rb.Name, prev.Range)
		return
	}
	r := &Resource{Name: rb.Name, Range: rb.DefRange}
	switch rb.Kind {
	case "image":
		r.Kind = framegraph.ResourceImage
		d.image(r, rb)
	case "buffer":
		r.Kind = framegraph.ResourceBuffer
		d.buffer(r, rb)
	default:
		d.errorf(rb.KindRange, "Unknown resource kind",
			"Resource kind must be \"image\" or \"buffer\", got %q.", rb.Kind)
		return
	}
	d.resources[r.Name] = r
	d.desc.Resources = append(d.desc.Resources, r)
}

func (d *decoder) image(r *Resource, rb *resourceBlock) {
	switch format, ok := parseFormat(rb.Format); {
	case rb.Format == "":
		d.errorf(rb.DefRange, "Missing format", "Image %q needs a format.", rb.Name)
	case !ok:
		d.errorf(rangeOr(rb.FormatRange, rb.DefRange), "Unknown format",
			"%q is not a texture format.", rb.Format)
	default:
		r.Image.Format = format
	}
	usage, bad := parseFlags(textureUsageNames, rb.Usage)
	if bad != "" {
		d.errorf(rb.DefRange, "Unknown usage", "%q is not a texture usage.", bad)
	}
	if rb.SampleCount < 0 {
		d.errorf(rb.DefRange, "Invalid sample_count", "sample_count must be positive, got %d.", rb.SampleCount)
	}
	if len(rb.Memory) > 0 {
		d.errorf(rb.DefRange, "Unsupported argument", "memory applies to buffers only.")
	}
	r.Image.Usage = usage
	r.Image.Size = d.imageSize(rb.Size)
	r.Image.SampleCount = uint32(max(rb.SampleCount, 1))
	r.Image.ClearColor = d.color(rb.ClearColor, rb.DefRange)
	r.Image.ClearDepth = float32(rb.ClearDepth)
	r.Image.ClearStencil = uint32(max(rb.ClearStencil, 0))
}

func (d *decoder) buffer(r *Resource, rb *resourceBlock) {
	if rb.Format != "" || len(rb.ClearColor) > 0 || rb.SampleCount != 0 {
		d.errorf(rb.DefRange, "Unsupported argument",
			"format, sample_count and clear_color apply to images only.")
	}
	usage, bad := parseFlags(bufferUsageNames, rb.Usage)
	if bad != "" {
		d.errorf(rb.DefRange, "Unknown usage", "%q is not a buffer usage.", bad)
	}
	props, bad := parseFlags(memoryNames, rb.Memory)
	if bad != "" {
		d.errorf(rb.DefRange, "Unknown memory property", "%q is not a memory property.", bad)
	}
	r.Buffer.Usage = usage
	r.Buffer.Properties = props
	r.Buffer.Size = d.bufferSize(rb.Name, rb.Size, rb.DefRange)
}

// imageSize decodes "swapchain", a scale factor or a [width, height] pair.
// An absent size follows the swapchain.
func (d *decoder) imageSize(expr hcl.Expression) framegraph.SizeSpec {
	v, diags := expr.Value(nil)
	d.diags = append(d.diags, diags...)
	if diags.HasErrors() || v.IsNull() {
		return framegraph.SizeSwapchain()
	}
	rng := expr.Range()
	ty := v.Type()
	switch {
	case ty == cty.String:
		if v.AsString() != "swapchain" {
			d.errorf(rng, "Invalid size", "The only named size is \"swapchain\", got %q.", v.AsString())
		}
		return framegraph.SizeSwapchain()
	case ty == cty.Number:
		var scale float32
		if err := gocty.FromCtyValue(v, &scale); err != nil || scale <= 0 {
			d.errorf(rng, "Invalid size", "A relative size must be a positive scale factor.")
			return framegraph.SizeSwapchain()
		}
		return framegraph.SizeRelative(scale)
	case ty.IsTupleType() || ty.IsListType():
		var wh []uint32
		if lv, err := convert.Convert(v, cty.List(cty.Number)); err == nil {
			err = gocty.FromCtyValue(lv, &wh)
			if err == nil && len(wh) == 2 && wh[0] > 0 && wh[1] > 0 {
				return framegraph.SizeFixed(wh[0], wh[1])
			}
		}
		d.errorf(rng, "Invalid size", "A fixed size must be [width, height] in whole pixels.")
		return framegraph.SizeSwapchain()
	default:
		d.errorf(rng, "Invalid size", "size must be \"swapchain\", a number or [width, height], got %s.",
			ty.FriendlyName())
		return framegraph.SizeSwapchain()
	}
}

func (d *decoder) bufferSize(name string, expr hcl.Expression, def hcl.Range) uint64 {
	v, diags := expr.Value(nil)
	d.diags = append(d.diags, diags...)
	if diags.HasErrors() {
		return 0
	}
	if v.IsNull() {
		d.errorf(def, "Missing size", "Buffer %q needs a size in bytes.", name)
		return 0
	}
	var size uint64
	if err := gocty.FromCtyValue(v, &size); err != nil || size == 0 {
		d.errorf(expr.Range(), "Invalid size", "A buffer size must be a positive whole number of bytes.")
		return 0
	}
	return size
}

func (d *decoder) color(c []float64, rng hcl.Range) gputypes.Color {
	switch len(c) {
	case 0:
		return gputypes.Color{}
	case 3:
		return gputypes.Color{R: c[0], G: c[1], B: c[2], A: 1}
	case 4:
		return gputypes.Color{R: c[0], G: c[1], B: c[2], A: c[3]}
	default:
		d.errorf(rng, "Invalid clear_color", "clear_color takes 3 or 4 components, got %d.", len(c))
		return gputypes.Color{}
	}
}

func (d *decoder) pass(pb *passBlock) {
	if prev, ok := d.passes[pb.Name]; ok {
		d.errorf(pb.DefRange, "Duplicate pass", "Pass %q is already declared at %s.", pb.Name, prev.Range)
		return
	}
	p := &Pass{Name: pb.Name, Queue: framegraph.QueueGraphics, Range: pb.DefRange}
	if pb.Queue != "" {
		q, ok := queueNames[pb.Queue]
		if !ok {
			d.errorf(rangeOr(pb.QueueRange, pb.DefRange), "Unknown queue",
				"%q is not a queue; use graphics, compute, transfer or async_compute.", pb.Queue)
		}
		p.Queue = q
	}
	for _, ab := range pb.Reads {
		if ab.LoadOp != "" || ab.StoreOp != "" {
			d.errorf(ab.DefRange, "Unsupported argument", "load_op and store_op apply to writes only.")
		}
		p.Accesses = append(p.Accesses, d.access(ab.Resource, AccessRead, ab.DefRange,
			ab.LoadOp, ab.StoreOp, ab.Layout, ab.Stages, ab.Access))
	}
	for _, ab := range pb.Writes {
		p.Accesses = append(p.Accesses, d.access(ab.Resource, AccessWrite, ab.DefRange,
			ab.LoadOp, ab.StoreOp, ab.Layout, ab.Stages, ab.Access))
	}
	if bb := pb.Backbuffer; bb != nil {
		a := d.access(framegraph.Backbuffer, AccessBackbuffer, bb.DefRange,
			bb.LoadOp, bb.StoreOp, bb.Layout, bb.Stages, bb.Access)
		a.ClearColor = d.color(bb.ClearColor, bb.DefRange)
		p.Accesses = append(p.Accesses, a)
	}
	// gohcl groups blocks by type; restore the order they were written in.
	slices.SortStableFunc(p.Accesses, func(a, b *Access) int {
		return cmp.Compare(a.Range.Start.Byte, b.Range.Start.Byte)
	})
	d.passes[p.Name] = p
	d.desc.Passes = append(d.desc.Passes, p)
}

func (d *decoder) access(res string, kind AccessKind, rng hcl.Range,
	load, store, layout string, stages, access []string,
) *Access {
	a := &Access{Resource: res, Kind: kind, Range: rng}
	if load != "" {
		op, ok := loadOpNames[load]
		if !ok {
			d.errorf(rng, "Unknown load_op", "%q is not a load op; use load or clear.", load)
		}
		a.LoadOp = op
	}
	if store != "" {
		op, ok := storeOpNames[store]
		if !ok {
			d.errorf(rng, "Unknown store_op", "%q is not a store op; use store or discard.", store)
		}
		a.StoreOp = op
	}
	if layout != "" {
		l, ok := framegraph.ParseLayout(layout)
		if !ok || l == framegraph.LayoutUndefined {
			d.errorf(rng, "Unknown layout", "%q is not an image layout.", layout)
		}
		a.Layout = l
	}
	var bad string
	if a.Stages, bad = parseFlags(stageNames, stages); bad != "" {
		d.errorf(rng, "Unknown stage", "%q is not a pipeline stage.", bad)
	}
	if a.Access, bad = parseFlags(accessNames, access); bad != "" {
		d.errorf(rng, "Unknown access", "%q is not an access type.", bad)
	}
	return a
}

// finish resolves resource references once every file has been decoded.
func (d *decoder) finish() (*Description, error) {
	for _, p := range d.desc.Passes {
		for _, a := range p.Accesses {
			if a.Resource == framegraph.Backbuffer {
				continue
			}
			r, ok := d.resources[a.Resource]
			switch {
			case !ok:
				d.unknown = true
				d.errorf(a.Range, "Unknown resource",
					"Pass %q accesses %q, which is not declared.", p.Name, a.Resource)
			case r.Kind == framegraph.ResourceBuffer && (a.Layout != framegraph.LayoutUndefined || a.StoreOp != 0):
				d.errorf(a.Range, "Unsupported argument",
					"Buffer %q takes no layout or store_op.", a.Resource)
			}
		}
	}
	if d.diags.HasErrors() {
		err := invalid(d.diags)
		if d.unknown {
			err = errors.Mark(err, framegraph.ErrUnknownResource)
		}
		return nil, err
	}
	return d.desc, nil
}
