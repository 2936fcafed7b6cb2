package config

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/framegraph"
)

// ApplyOption configures Description.Apply.
type ApplyOption func(*applyOptions)

type applyOptions struct {
	record func(*Pass) framegraph.RecordFunc
	init   func(*Pass) framegraph.InitFunc
}

// WithRecordFuncs supplies the record callback of each pass. fn may return
// nil to leave a pass without one.
func WithRecordFuncs(fn func(*Pass) framegraph.RecordFunc) ApplyOption {
	return func(o *applyOptions) { o.record = fn }
}

// WithInitFuncs supplies the initialisation callback of each pass.
func WithInitFuncs(fn func(*Pass) framegraph.InitFunc) ApplyOption {
	return func(o *applyOptions) { o.init = fn }
}

// Apply registers the passes of d on b in file order, each with its accesses
// in source order. Resource metadata is stamped on every write of the
// resource. The builder's first declaration error is returned.
func (d *Description) Apply(b *framegraph.GraphBuilder, opts ...ApplyOption) error {
	var o applyOptions
	for _, opt := range opts {
		opt(&o)
	}
	resources := make(map[string]*Resource, len(d.Resources))
	for _, r := range d.Resources {
		resources[r.Name] = r
	}
	for _, p := range d.Passes {
		pb := b.AddPass(p.Name, p.Queue)
		for _, a := range p.Accesses {
			applyAccess(pb, resources[a.Resource], a)
		}
		if o.record != nil {
			if fn := o.record(p); fn != nil {
				pb.SetRecordFunc(fn)
			}
		}
		if o.init != nil {
			if fn := o.init(p); fn != nil {
				pb.SetInitialisationFunc(fn)
			}
		}
	}
	if err := b.Err(); err != nil {
		return errors.Mark(errors.Wrap(err, "config: apply"), ErrInvalid)
	}
	framegraph.Logger().Debug("applied graph description",
		"passes", len(d.Passes), "resources", len(d.Resources))
	return nil
}

// applyAccess declares a on pb. r is nil for the swapchain image.
func applyAccess(pb *framegraph.PassBuilder, r *Resource, a *Access) {
	if a.Kind == AccessBackbuffer {
		pb.WriteToBackbuffer(framegraph.BackbufferWrite{
			Stages:     a.Stages,
			Access:     a.Access,
			Layout:     a.Layout,
			LoadOp:     a.LoadOp,
			StoreOp:    a.StoreOp,
			ClearColor: a.ClearColor,
		})
		return
	}
	if r != nil && r.Kind == framegraph.ResourceBuffer {
		if a.Kind == AccessRead {
			pb.ReadBuffer(a.Resource, framegraph.BufferRead{Stages: a.Stages, Access: a.Access})
			return
		}
		w := r.Buffer
		w.Stages, w.Access, w.LoadOp = a.Stages, a.Access, a.LoadOp
		pb.WriteBuffer(a.Resource, w)
		return
	}
	if a.Kind == AccessRead {
		pb.ReadImage(a.Resource, framegraph.ImageRead{Stages: a.Stages, Access: a.Access, Layout: a.Layout})
		return
	}
	var w framegraph.ImageWrite
	if r != nil {
		w = r.Image
	}
	w.Stages, w.Access, w.Layout, w.LoadOp, w.StoreOp = a.Stages, a.Access, a.Layout, a.LoadOp, a.StoreOp
	pb.WriteImage(a.Resource, w)
}
