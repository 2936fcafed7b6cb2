package framegraph

import "github.com/cockroachdb/errors"

// ErrConfiguration marks every error caused by an invalid graph description.
// Test for it with errors.Is from github.com/cockroachdb/errors.
var ErrConfiguration = errors.New("framegraph: invalid configuration")

// Graph description errors. Each is marked with ErrConfiguration.
var (
	// ErrUnwrittenResource is returned when a pass reads a resource that no
	// pass writes.
	ErrUnwrittenResource = errors.New("framegraph: resource is read but never written")

	// ErrUnknownResource is returned when a resource name is referenced that
	// was never declared.
	ErrUnknownResource = errors.New("framegraph: unknown resource")

	// ErrResourceKind is returned when a name is used both as a buffer and as
	// an image.
	ErrResourceKind = errors.New("framegraph: resource used with conflicting kinds")

	// ErrAmbiguousWriters is returned when the writers of a resource cannot be
	// ordered: more than two writers, or two writers that both load.
	ErrAmbiguousWriters = errors.New("framegraph: ambiguous writers")

	// ErrDependencyCycle is returned when pass dependencies form a cycle.
	ErrDependencyCycle = errors.New("framegraph: dependency cycle")

	// ErrFramesInFlight is returned when the allocator and the swapchain
	// disagree on the number of frames in flight.
	ErrFramesInFlight = errors.New("framegraph: frames in flight mismatch")

	// ErrInvalidAttachment is returned when a pass cannot form a render pass
	// from its image writes.
	ErrInvalidAttachment = errors.New("framegraph: invalid attachment")
)

// Runtime errors.
var (
	// ErrSurfaceOutdated is returned by Execute when the swapchain no longer
	// matches the surface. Recreate the swapchain, then call Resize.
	ErrSurfaceOutdated = errors.New("framegraph: surface outdated")

	// ErrGraphDestroyed is returned when using a graph after Destroy.
	ErrGraphDestroyed = errors.New("framegraph: graph destroyed")

	// ErrResizeRequired is returned by Execute after a failed Resize.
	ErrResizeRequired = errors.New("framegraph: graph needs a successful resize")

	// ErrNotCompiled is returned when a builder step runs before the steps it
	// depends on.
	ErrNotCompiled = errors.New("framegraph: graph not compiled")
)

// configError marks err as a configuration error and logs it.
func configError(err error) error {
	Logger().Error("framegraph: configuration error", "err", err)
	return errors.Mark(err, ErrConfiguration)
}
