package framegraph

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// compileStage tracks which builder steps have run.
type compileStage uint8

const (
	stageDeclared compileStage = iota
	stageAdjacency
	stageSorted
	stageLevelled
	stagePhysical
	stageRenderPasses
)

// CreateAdjacencyList validates every resource and builds the dependency
// edges between passes. An edge P→Q means Q must run after P.
func (b *GraphBuilder) CreateAdjacencyList() error {
	if b.err != nil {
		return b.err
	}
	for _, name := range b.resourceOrder {
		if err := b.validateResource(b.resources[name]); err != nil {
			return configError(err)
		}
	}

	n := len(b.passes)
	b.adjacency = make([][]PassHandle, n)
	edges := 0
	for i := range n {
		for j := range n {
			if i == j {
				continue
			}
			if b.precedes(b.passes[i], b.passes[j]) {
				b.adjacency[i] = append(b.adjacency[i], PassHandle(j))
				edges++
			}
		}
	}
	b.stage = stageAdjacency
	Logger().Debug("framegraph: adjacency built", "passes", n, "edges", edges)
	return nil
}

// Adjacency returns the successors of h. It is empty before
// CreateAdjacencyList.
func (b *GraphBuilder) Adjacency(h PassHandle) []PassHandle {
	if int(h) < 0 || int(h) >= len(b.adjacency) {
		return nil
	}
	return slices.Clone(b.adjacency[h])
}

// validateResource rejects resources that are read but never written and
// resources whose writers cannot be ordered.
func (b *GraphBuilder) validateResource(r *ResourceDescription) error {
	writers := writerPasses(r)
	if len(writers) == 0 {
		if len(r.Accesses) == 0 {
			return nil
		}
		return errors.Wrapf(ErrUnwrittenResource, "%s %q read by pass %q", r.Kind, r.Name, r.Accesses[0].Pass)
	}
	if len(writers) > 2 {
		return errors.Wrapf(ErrAmbiguousWriters, "%s %q has %d writers %v", r.Kind, r.Name, len(writers), writers)
	}
	if len(writers) == 2 {
		first := r.Accesses[r.accessIndex(writers[0], true)]
		second := r.Accesses[r.accessIndex(writers[1], true)]
		if first.RequiresPriorWrite() && second.RequiresPriorWrite() {
			return errors.Wrapf(ErrAmbiguousWriters, "%s %q: passes %q and %q both load", r.Kind, r.Name, writers[0], writers[1])
		}
	}
	return nil
}

// writerPasses returns the distinct passes writing r in declaration order.
func writerPasses(r *ResourceDescription) []string {
	var out []string
	for _, a := range r.Accesses {
		if a.IsWrite() {
			out = addUnique(out, a.Pass)
		}
	}
	return out
}

// precedes reports whether q must run after p because of a shared resource.
func (b *GraphBuilder) precedes(p, q *PassDescription) bool {
	for _, name := range p.writes {
		r := b.resources[name]
		pw := r.Accesses[r.accessIndex(p.name, true)]
		writers := writerPasses(r)

		if qr := r.accessIndex(q.name, false); qr >= 0 {
			switch {
			case len(writers) == 1, !pw.RequiresPriorWrite():
				return true
			case qr > r.accessIndex(p.name, true):
				// The reader is declared after the loading write and sees
				// the final contents.
				return true
			}
		}

		if qw := r.accessIndex(q.name, true); qw >= 0 {
			qa := r.Accesses[qw]
			if !pw.RequiresPriorWrite() && qa.RequiresPriorWrite() {
				return true
			}
			// Two clearing writers run in declaration order.
			if !pw.RequiresPriorWrite() && !qa.RequiresPriorWrite() && r.accessIndex(p.name, true) < qw {
				return true
			}
		}
	}

	// A reader declared before the loading writer sees the cleared contents
	// and must finish before the load overwrites them.
	for _, name := range p.reads {
		r := b.resources[name]
		qw := r.accessIndex(q.name, true)
		if qw < 0 || !r.Accesses[qw].RequiresPriorWrite() || !hasClearingWriter(r) {
			continue
		}
		if pr := r.accessIndex(p.name, false); pr < qw && !p.writesResource(name) {
			return true
		}
	}
	return false
}

func hasClearingWriter(r *ResourceDescription) bool {
	for _, a := range r.Accesses {
		if a.IsWrite() && !a.RequiresPriorWrite() {
			return true
		}
	}
	return false
}

// TopologicalSort orders the passes so that no pass precedes one it depends
// on. Passes are visited in registration order, so independent passes keep
// their declaration order where possible.
func (b *GraphBuilder) TopologicalSort() error {
	if b.stage < stageAdjacency {
		return errors.Wrap(ErrNotCompiled, "TopologicalSort before CreateAdjacencyList")
	}
	const (
		white = iota
		grey
		black
	)
	colour := make([]uint8, len(b.passes))
	post := make([]PassHandle, 0, len(b.passes))

	var visit func(h PassHandle) error
	visit = func(h PassHandle) error {
		switch colour[h] {
		case grey:
			return errors.Wrapf(ErrDependencyCycle, "pass %q depends on itself", b.passes[h].name)
		case black:
			return nil
		}
		colour[h] = grey
		for _, next := range b.adjacency[h] {
			if err := visit(next); err != nil {
				return err
			}
		}
		colour[h] = black
		post = append(post, h)
		return nil
	}

	for h := range b.passes {
		if err := visit(PassHandle(h)); err != nil {
			return configError(err)
		}
	}
	slices.Reverse(post)
	b.topo = post
	b.stage = stageSorted
	return nil
}

// TopologicalOrder returns the result of TopologicalSort.
func (b *GraphBuilder) TopologicalOrder() []PassHandle { return slices.Clone(b.topo) }

// DependencyLevelSort assigns every pass its dependency level, the length of
// the longest edge path reaching it, and orders the passes by level. Handles
// are unchanged; Order and Level are set on each pass.
func (b *GraphBuilder) DependencyLevelSort() error {
	if b.stage < stageSorted {
		return errors.Wrap(ErrNotCompiled, "DependencyLevelSort before TopologicalSort")
	}
	levels := make([]int, len(b.passes))
	for _, h := range b.topo {
		for _, next := range b.adjacency[h] {
			levels[next] = max(levels[next], levels[h]+1)
		}
	}

	b.order = slices.Clone(b.topo)
	slices.SortStableFunc(b.order, func(x, y PassHandle) int {
		return levels[x] - levels[y]
	})
	b.levels = 0
	for i, h := range b.order {
		p := b.passes[h]
		p.order = i
		p.level = levels[h]
		b.levels = max(b.levels, p.level+1)
	}
	b.stage = stageLevelled
	Logger().Debug("framegraph: passes levelled", "passes", len(b.order), "levels", b.levels)
	return nil
}

// ExecutionOrder returns the pass handles in execution order.
func (b *GraphBuilder) ExecutionOrder() []PassHandle { return slices.Clone(b.order) }

// Levels returns the number of dependency levels.
func (b *GraphBuilder) Levels() int { return b.levels }
