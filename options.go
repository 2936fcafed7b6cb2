package framegraph

// BuilderOption configures a GraphBuilder during creation.
//
// Example:
//
//	caches := framegraph.NewCaches()
//	b := framegraph.NewGraphBuilder(device, swapchain, allocator,
//	    framegraph.WithCaches(caches),
//	    framegraph.WithLabel("main"))
type BuilderOption func(*builderOptions)

// builderOptions holds optional configuration for GraphBuilder creation.
type builderOptions struct {
	caches *Caches
	label  string
}

// defaultOptions returns the default builder options.
func defaultOptions() builderOptions {
	return builderOptions{
		caches: nil, // Will be created if nil
		label:  "framegraph",
	}
}

// WithCaches shares a session's structural caches with the graph.
// Without it each graph gets private caches, which it releases on Destroy.
func WithCaches(c *Caches) BuilderOption {
	return func(o *builderOptions) {
		o.caches = c
	}
}

// WithLabel sets the debug label used for command buffers and logs.
func WithLabel(label string) BuilderOption {
	return func(o *builderOptions) {
		if label != "" {
			o.label = label
		}
	}
}
