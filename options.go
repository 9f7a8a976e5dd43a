package framegraph

import (
	"github.com/gogpu/framegraph/internal/pool"
	"github.com/gogpu/framegraph/shader"
)

// PoolConfig holds the limits of the backing pool.
type PoolConfig = pool.Config

// PoolStats reports backing pool usage.
type PoolStats = pool.Stats

// Option configures a Graph during creation.
//
// Example:
//
//	g, err := framegraph.New(be,
//	    framegraph.WithDebug(true),
//	    framegraph.WithReordering(true),
//	)
type Option func(*options)

// options holds optional configuration for Graph creation.
type options struct {
	debug        bool
	aliasing     bool
	reordering   bool
	clearOnAlloc bool
	poolConfig   pool.Config
	shaders      *shader.Loader
}

// defaultOptions returns the default graph options.
func defaultOptions() options {
	return options{
		aliasing:     true,
		clearOnAlloc: true,
		poolConfig:   pool.DefaultConfig(),
	}
}

// WithDebug makes declaration and resolution errors panic instead of
// being logged and collected.
func WithDebug(enabled bool) Option {
	return func(o *options) {
		o.debug = enabled
	}
}

// WithAliasing enables sharing one backing between transient resources
// with disjoint lifetimes. Enabled by default.
func WithAliasing(enabled bool) Option {
	return func(o *options) {
		o.aliasing = enabled
	}
}

// WithReordering enables greedy node reordering that spreads dependent
// nodes apart. Disabled by default; nodes run in declaration order.
func WithReordering(enabled bool) Option {
	return func(o *options) {
		o.reordering = enabled
	}
}

// WithClearOnAlloc clears freshly allocated backings to their fallback
// color (buffers to zero) before first use. Enabled by default.
func WithClearOnAlloc(enabled bool) Option {
	return func(o *options) {
		o.clearOnAlloc = enabled
	}
}

// WithPoolConfig sets the limits of the backing pool.
func WithPoolConfig(cfg PoolConfig) Option {
	return func(o *options) {
		o.poolConfig = cfg
	}
}

// WithShaderLoader shares a shader loader with the graph. By default the
// graph creates its own.
func WithShaderLoader(l *shader.Loader) Option {
	return func(o *options) {
		o.shaders = l
	}
}
