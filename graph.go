package framegraph

import (
	"errors"
	"fmt"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/pool"
	"github.com/gogpu/framegraph/shader"
	"github.com/gogpu/gputypes"
)

// Graph is the long-lived owner of everything that outlives a frame: the
// backing pool, history pairs, persistent resources and the shared
// rasterizer state. It hands out one Builder per frame.
//
// Graph is safe for use from one goroutine at a time.
type Graph struct {
	be      backend.Backend
	pool    *pool.Pool
	shaders *shader.Loader
	opts    options
	raster  gpucore.RasterState

	history    map[string]*historyPair
	persistTex map[string]*backend.Texture
	persistBuf map[string]*backend.Buffer

	// Usage learned from previous frames, so the eager allocation in
	// Setup already picks a backing that covers every declared state.
	texUsage map[string]gputypes.TextureUsage
	bufUsage map[string]gputypes.BufferUsage

	frame   uint64
	current *Builder
	closed  bool
}

// New creates a graph allocating through be. The backend must already be
// initialized; the graph borrows it and never closes it.
func New(be backend.Backend, opts ...Option) (*Graph, error) {
	if be == nil {
		return nil, ErrNoBackend
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.shaders == nil {
		o.shaders = shader.NewLoader()
	}

	g := &Graph{
		be:         be,
		pool:       pool.New(be, o.poolConfig),
		shaders:    o.shaders,
		opts:       o,
		raster:     gpucore.DefaultRasterState(),
		history:    make(map[string]*historyPair),
		persistTex: make(map[string]*backend.Texture),
		persistBuf: make(map[string]*backend.Buffer),
		texUsage:   make(map[string]gputypes.TextureUsage),
		bufUsage:   make(map[string]gputypes.BufferUsage),
	}
	trackBackend(be)
	Logger().Info("framegraph: graph created",
		"backend", be.Name(),
		"kind", be.Kind().String(),
		"aliasing", o.aliasing,
		"reordering", o.reordering,
		"debug", o.debug)
	return g, nil
}

// BeginFrame opens a new frame and returns its builder. The previous
// frame must have ended.
func (g *Graph) BeginFrame() (*Builder, error) {
	if g.closed {
		return nil, ErrGraphClosed
	}
	if g.current != nil && g.current.phase != PhaseEnded {
		return nil, ErrFrameInProgress
	}
	if err := g.be.BeginFrame(); err != nil {
		return nil, fmt.Errorf("framegraph: begin frame %d: %w", g.frame, err)
	}
	b := newBuilder(g, g.frame)
	g.current = b
	return b, nil
}

// Frame returns the index of the frame the next BeginFrame opens.
func (g *Graph) Frame() uint64 { return g.frame }

// Backend returns the device backend.
func (g *Graph) Backend() backend.Backend { return g.be }

// Shaders returns the shader loader shared by all passes.
func (g *Graph) Shaders() *shader.Loader { return g.shaders }

// RasterState returns the rasterizer state shared by raster passes.
func (g *Graph) RasterState() *gpucore.RasterState { return &g.raster }

// PoolStats returns backing pool statistics.
func (g *Graph) PoolStats() PoolStats { return g.pool.Stats() }

// CreatePersistentTexture creates a texture that lives in the graph until
// DestroyPersistent or Close. Frames reach it by name: a read of a name no
// pass wrote imports it.
func (g *Graph) CreatePersistentTexture(name string, desc gpucore.TextureDesc) (*backend.Texture, error) {
	if g.closed {
		return nil, ErrGraphClosed
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("framegraph: persistent texture %q: %w", name, err)
	}
	if t, ok := g.persistTex[name]; ok {
		if !t.Desc().SameShape(desc) {
			return nil, fmt.Errorf("%w: persistent texture %q is %v, requested %v",
				ErrShapeConflict, name, t.Desc().Key(), desc.Key())
		}
		return t, nil
	}
	if g.opts.clearOnAlloc {
		desc.Usage |= gputypes.TextureUsageCopyDst
	}
	t, err := g.be.CreateTexture(name, desc)
	if err != nil {
		return nil, fmt.Errorf("framegraph: persistent texture %q: %w", name, err)
	}
	g.persistTex[name] = t
	return t, nil
}

// CreatePersistentBuffer creates a buffer that lives in the graph until
// DestroyPersistent or Close.
func (g *Graph) CreatePersistentBuffer(name string, desc gpucore.BufferDesc) (*backend.Buffer, error) {
	if g.closed {
		return nil, ErrGraphClosed
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("framegraph: persistent buffer %q: %w", name, err)
	}
	if b, ok := g.persistBuf[name]; ok {
		if !b.Desc().SameShape(desc) {
			return nil, fmt.Errorf("%w: persistent buffer %q is %v, requested %v",
				ErrShapeConflict, name, b.Desc().Key(), desc.Key())
		}
		return b, nil
	}
	desc.Usage |= desc.Kind.DefaultUsage()
	b, err := g.be.CreateBuffer(name, desc)
	if err != nil {
		return nil, fmt.Errorf("framegraph: persistent buffer %q: %w", name, err)
	}
	g.persistBuf[name] = b
	return b, nil
}

// DestroyPersistent destroys the persistent texture or buffer called name.
// It reports whether one existed. Must not be called while a frame is open.
func (g *Graph) DestroyPersistent(name string) bool {
	found := false
	if t, ok := g.persistTex[name]; ok {
		g.be.DestroyTexture(t)
		delete(g.persistTex, name)
		found = true
	}
	if b, ok := g.persistBuf[name]; ok {
		g.be.DestroyBuffer(b)
		delete(g.persistBuf, name)
		found = true
	}
	return found
}

// Close destroys every backing the graph owns. The backend stays open.
func (g *Graph) Close() error {
	if g.closed {
		return nil
	}
	var errs []error
	if g.current != nil && g.current.phase != PhaseEnded {
		errs = append(errs, g.current.EndFrame())
	}
	g.closed = true

	for name, p := range g.history {
		p.destroy(g.be)
		delete(g.history, name)
	}
	for name := range g.persistTex {
		g.DestroyPersistent(name)
	}
	for name := range g.persistBuf {
		g.DestroyPersistent(name)
	}
	g.pool.Close()
	untrackBackend(g.be)
	return errors.Join(errs...)
}

// learnTextureUsage remembers the usage a name needed this frame.
func (g *Graph) learnTextureUsage(name string, u gputypes.TextureUsage) {
	g.texUsage[name] |= u
}

func (g *Graph) learnBufferUsage(name string, u gputypes.BufferUsage) {
	g.bufUsage[name] |= u
}
