package framegraph

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/shader"
	"github.com/gogpu/gputypes"
)

// Phase is the lifecycle stage of a frame.
type Phase uint8

// Frame phases.
const (
	// PhaseDeclaring accepts nodes and Read/Write declarations.
	PhaseDeclaring Phase = iota
	// PhaseCompiled has a fixed node order and bound backings.
	PhaseCompiled
	// PhaseExecuting runs node bodies; GetRead/GetWrite are valid.
	PhaseExecuting
	// PhaseExecuted has run every live node.
	PhaseExecuted
	// PhaseEnded returned transients to the pool.
	PhaseEnded
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseDeclaring:
		return "Declaring"
	case PhaseCompiled:
		return "Compiled"
	case PhaseExecuting:
		return "Executing"
	case PhaseExecuted:
		return "Executed"
	case PhaseEnded:
		return "Ended"
	}
	return "Unknown"
}

// Builder is the resource graph of one frame. Passes declare their
// accesses against it during Setup and resolve them during Execute.
//
// A Builder is created by Graph.BeginFrame and is valid until EndFrame.
// It is not safe for concurrent use.
type Builder struct {
	g     *Graph
	frame uint64
	phase Phase

	nodes []*Node
	order []int

	textures  []*Texture
	buffers   []*Buffer
	texByName map[string]uint16
	bufByName map[string]uint16

	// current is the node whose body is running.
	current *Node

	errs     []error
	stalls   int
	barriers int
	total    time.Duration
	report   MemoryReport
}

func newBuilder(g *Graph, frame uint64) *Builder {
	return &Builder{
		g:         g,
		frame:     frame,
		texByName: make(map[string]uint16),
		bufByName: make(map[string]uint16),
	}
}

// Frame returns the frame index.
func (b *Builder) Frame() uint64 { return b.frame }

// Phase returns the current lifecycle stage.
func (b *Builder) Phase() Phase { return b.phase }

// Graph returns the graph the frame belongs to.
func (b *Builder) Graph() *Graph { return b.g }

// Backend returns the device backend.
func (b *Builder) Backend() backend.Backend { return b.g.be }

// Shaders returns the shader loader.
func (b *Builder) Shaders() *shader.Loader { return b.g.shaders }

// RasterState returns the rasterizer state shared by raster passes.
func (b *Builder) RasterState() *gpucore.RasterState { return &b.g.raster }

// Err returns every declaration and resolution error of the frame joined,
// or nil.
func (b *Builder) Err() error { return errors.Join(b.errs...) }

// Nodes returns every node in declaration order.
func (b *Builder) Nodes() []*Node { return b.nodes }

// Order returns the names of the live nodes in compiled order.
func (b *Builder) Order() []string {
	out := make([]string, 0, len(b.order))
	for _, i := range b.order {
		out = append(out, b.nodes[i].name)
	}
	return out
}

// Texture returns the record called name, or nil.
func (b *Builder) Texture(name string) *Texture {
	if i, ok := b.texByName[name]; ok {
		return b.textures[i]
	}
	return nil
}

// Buffer returns the record called name, or nil.
func (b *Builder) Buffer(name string) *Buffer {
	if i, ok := b.bufByName[name]; ok {
		return b.buffers[i]
	}
	return nil
}

// AddNode appends a node without an executor. Call SetExecutor before
// Compile, or the node runs as a no-op.
func (b *Builder) AddNode(name string) *Node {
	n := &Node{name: name, index: len(b.nodes), b: b}
	if b.phase != PhaseDeclaring {
		b.declError(fmt.Errorf("%w: add node %q in phase %v", ErrNotDeclaring, name, b.phase))
	}
	b.nodes = append(b.nodes, n)
	return n
}

// declError logs and collects a declaration error. Debug graphs panic.
func (b *Builder) declError(err error) {
	Logger().Error("framegraph: declaration error", "frame", b.frame, "err", err)
	b.errs = append(b.errs, err)
	if b.g.opts.debug {
		panic(err)
	}
}

// declaring checks that declarations are allowed and n belongs to b.
func (b *Builder) declaring(n *Node, what string) bool {
	if b.phase != PhaseDeclaring {
		b.declError(fmt.Errorf("%w: %s in phase %v", ErrNotDeclaring, what, b.phase))
		return false
	}
	if n == nil || n.b != b {
		b.declError(fmt.Errorf("%w: %s from a node of another frame", ErrNotDeclaring, what))
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Textures
// ---------------------------------------------------------------------------

// lookupTexture returns the record called name, importing a persistent
// texture of that name if no record exists yet.
func (b *Builder) lookupTexture(name string) *Texture {
	if i, ok := b.texByName[name]; ok {
		return b.textures[i]
	}
	if p, ok := b.g.persistTex[name]; ok {
		t := b.addTexture(name, p.Desc(), ownedPersistent)
		if t != nil {
			t.backing = p
		}
		return t
	}
	return nil
}

// maxResources bounds each of the texture and buffer tables of a frame;
// refs index them with 16 bits.
var maxResources = 1 << 16

// addTexture appends a record for name, or reports ErrTooManyResources
// and returns nil when the table is full.
func (b *Builder) addTexture(name string, desc gpucore.TextureDesc, owner ownership) *Texture {
	if len(b.textures) >= maxResources {
		b.declError(fmt.Errorf("%w: texture %q is number %d", ErrTooManyResources, name, len(b.textures)+1))
		return nil
	}
	idx := uint16(len(b.textures)) //nolint:gosec // bounded by maxResources
	t := &Texture{resource: newResource(name, idx), desc: desc.Normalized()}
	t.owner = owner
	b.textures = append(b.textures, t)
	b.texByName[name] = idx
	return t
}

// allocTexture binds a backing to a graph-owned record: the current half
// of a same-shaped history pair if there is one, otherwise a pooled one.
func (b *Builder) allocTexture(t *Texture, state gpucore.State) {
	if p := b.g.history[t.name]; p != nil && p.desc.SameShape(t.desc) {
		t.backing = p.current()
		t.owner = ownedHistory
		return
	}
	desc := t.desc
	desc.Usage |= gpucore.TexUsageFromState(state) | b.g.texUsage[t.name]
	if b.g.opts.clearOnAlloc {
		desc.Usage |= gputypes.TextureUsageCopyDst
	}
	tex, reused, err := b.g.pool.AcquireTexture(t.name, desc)
	if err != nil {
		if errors.Is(err, backend.ErrOutOfMemory) {
			panic(fmt.Errorf("framegraph: allocate texture %q: %w", t.name, err))
		}
		b.declError(fmt.Errorf("framegraph: allocate texture %q: %w", t.name, err))
		return
	}
	t.backing = tex
	t.owner = ownedTransient
	Logger().Debug("framegraph: texture bound",
		"name", t.name, "shape", t.desc.Key().String(), "reused", reused)
}

// releaseTexture returns a graph-owned backing to the pool.
func (b *Builder) releaseTexture(t *Texture) {
	if t.backing == nil || t.owner != ownedTransient {
		return
	}
	if err := b.g.pool.ReleaseTexture(t.backing); err != nil {
		Logger().Warn("framegraph: texture release failed", "name", t.name, "err", err)
	}
	t.backing = nil
}

// ReadTexture declares that node n reads the texture called name in state.
// Reading the same name twice from one node returns the same ref.
func (b *Builder) ReadTexture(name string, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	if !b.declaring(n, "read texture "+name) {
		return ResourceRef{}
	}
	t := b.lookupTexture(name)
	if t == nil {
		b.declError(fmt.Errorf("%w: texture %q read by %q", ErrUnknownResource, name, n.name))
		return ResourceRef{}
	}
	return b.readTexture(t, state, stages, n, t.writeCount)
}

// ReadTextureRef declares a read of the version r refers to.
func (b *Builder) ReadTextureRef(r ResourceRef, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	if !b.declaring(n, "read texture "+r.String()) {
		return ResourceRef{}
	}
	t := b.textureByRef(r)
	if t == nil {
		b.declError(fmt.Errorf("%w: read of %v by %q", ErrInvalidRef, r, n.name))
		return ResourceRef{}
	}
	return b.readTexture(t, state, stages, n, r.gen)
}

// ReadHistoryTexture declares that n reads the contents the texture called
// name had at the end of the previous frame. The graph keeps two backings
// for name and swaps them every frame; on the first frame the history is
// cleared to the fallback color. name itself must be written this frame.
func (b *Builder) ReadHistoryTexture(name string, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	if !b.declaring(n, "read history of "+name) {
		return ResourceRef{}
	}
	hn := historyName(name)
	t := b.Texture(hn)
	if t == nil {
		var desc gpucore.TextureDesc
		if p := b.g.history[name]; p != nil {
			desc = p.desc
		}
		t = b.addTexture(hn, desc, ownedHistory)
		if t == nil {
			return ResourceRef{}
		}
	}
	return b.readTexture(t, state, stages, n, 0)
}

// ReadExternalTexture declares a read of a caller-owned backing. The graph
// tracks its state but never pools, aliases or destroys it.
func (b *Builder) ReadExternalTexture(name string, tex *backend.Texture, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	if !b.declaring(n, "read external texture "+name) {
		return ResourceRef{}
	}
	t := b.importTexture(name, tex)
	if t == nil {
		return ResourceRef{}
	}
	return b.readTexture(t, state, stages, n, t.writeCount)
}

// WriteExternalTexture declares a write to a caller-owned backing.
// External writes keep their node alive through culling.
func (b *Builder) WriteExternalTexture(name string, tex *backend.Texture, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	if !b.declaring(n, "write external texture "+name) {
		return ResourceRef{}
	}
	t := b.importTexture(name, tex)
	if t == nil {
		return ResourceRef{}
	}
	return b.writeTexture(t, state, stages, n)
}

func (b *Builder) importTexture(name string, tex *backend.Texture) *Texture {
	if tex == nil {
		b.declError(fmt.Errorf("%w: external texture %q has no backing", ErrUnknownResource, name))
		return nil
	}
	if t := b.Texture(name); t != nil {
		if t.owner != ownedExternal || t.backing != tex {
			b.declError(fmt.Errorf("%w: %q already bound to another backing", ErrShapeConflict, name))
			return nil
		}
		return t
	}
	t := b.addTexture(name, tex.Desc(), ownedExternal)
	if t != nil {
		t.backing = tex
	}
	return t
}

// WriteTexture declares that node n writes the texture called name in
// state. A non-nil desc allocates a backing for an unseen name, reusing a
// pooled one of the same shape when possible; a different shape for a
// known name reallocates and reports ErrShapeConflict. A nil desc requires
// the name to exist already, either from an earlier write this frame or
// in the persistent store.
func (b *Builder) WriteTexture(name string, desc *gpucore.TextureDesc, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	if !b.declaring(n, "write texture "+name) {
		return ResourceRef{}
	}
	if desc != nil {
		if err := desc.Validate(); err != nil {
			b.declError(fmt.Errorf("framegraph: write %q: %w", name, err))
			return ResourceRef{}
		}
	}

	t := b.lookupTexture(name)
	switch {
	case t == nil && desc == nil:
		b.declError(fmt.Errorf("%w: texture %q written by %q without a descriptor", ErrUnknownResource, name, n.name))
		return ResourceRef{}
	case t == nil:
		if t = b.addTexture(name, *desc, ownedTransient); t == nil {
			return ResourceRef{}
		}
		b.allocTexture(t, state)
	case desc != nil && !t.desc.SameShape(*desc):
		if t.owner != ownedTransient && t.owner != ownedHistory {
			b.declError(fmt.Errorf("%w: %s texture %q is %v, %q wants %v",
				ErrShapeConflict, t.owner, name, t.desc.Key(), n.name, desc.Key()))
			break
		}
		b.declError(fmt.Errorf("%w: texture %q reallocated from %v to %v by %q",
			ErrShapeConflict, name, t.desc.Key(), desc.Key(), n.name))
		b.releaseTexture(t)
		t.backing = nil
		t.desc = desc.Normalized()
		b.allocTexture(t, state)
	case desc != nil:
		t.desc.Usage |= desc.Usage
	}
	return b.writeTexture(t, state, stages, n)
}

// WriteTextureRef declares a write producing the next version of the
// texture r refers to.
func (b *Builder) WriteTextureRef(r ResourceRef, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	if !b.declaring(n, "write texture "+r.String()) {
		return ResourceRef{}
	}
	t := b.textureByRef(r)
	if t == nil {
		b.declError(fmt.Errorf("%w: write of %v by %q", ErrInvalidRef, r, n.name))
		return ResourceRef{}
	}
	return b.writeTexture(t, state, stages, n)
}

func (b *Builder) textureByRef(r ResourceRef) *Texture {
	if r.typ != ResourceTexture || int(r.index) >= len(b.textures) {
		return nil
	}
	t := b.textures[r.index]
	if r.gen > t.writeCount {
		return nil
	}
	return t
}

func (b *Builder) readTexture(t *Texture, state gpucore.State, stages gpucore.StageBits, n *Node, gen uint16) ResourceRef {
	r := ResourceRef{typ: ResourceTexture, index: t.index}
	if o := n.output(r); o != nil {
		if o.state != state {
			b.declError(fmt.Errorf("%w: %q reads texture %q as %v and writes it as %v",
				ErrAccessConflict, n.name, t.name, state, o.state))
			return o.ref()
		}
		gen = min(gen, o.gen-1)
	}
	if a := n.input(r); a != nil {
		if a.state != state {
			b.declError(fmt.Errorf("%w: %q reads texture %q as %v and %v",
				ErrAccessConflict, n.name, t.name, a.state, state))
		} else {
			a.stages |= stages
		}
		return a.ref()
	}
	n.inputs = append(n.inputs, access{typ: ResourceTexture, index: t.index, gen: gen, state: state, stages: stages})
	t.readers = append(t.readers, slot{node: n.index, access: len(n.inputs) - 1})
	return n.inputs[len(n.inputs)-1].ref()
}

func (b *Builder) writeTexture(t *Texture, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	r := ResourceRef{typ: ResourceTexture, index: t.index}
	if o := n.output(r); o != nil {
		if o.state != state {
			b.declError(fmt.Errorf("%w: %q writes texture %q as %v and %v",
				ErrAccessConflict, n.name, t.name, o.state, state))
		} else {
			o.stages |= stages
		}
		return o.ref()
	}
	if in := n.input(r); in != nil && in.state != state {
		b.declError(fmt.Errorf("%w: %q reads texture %q as %v and writes it as %v",
			ErrAccessConflict, n.name, t.name, in.state, state))
		return in.ref()
	}
	t.writeCount++
	n.outputs = append(n.outputs, access{typ: ResourceTexture, index: t.index, gen: t.writeCount, state: state, stages: stages})
	t.writers = append(t.writers, slot{node: n.index, access: len(n.outputs) - 1})
	return n.outputs[len(n.outputs)-1].ref()
}

// ---------------------------------------------------------------------------
// Buffers
// ---------------------------------------------------------------------------

func (b *Builder) lookupBuffer(name string) *Buffer {
	if i, ok := b.bufByName[name]; ok {
		return b.buffers[i]
	}
	if p, ok := b.g.persistBuf[name]; ok {
		buf := b.addBuffer(name, p.Desc(), ownedPersistent)
		if buf != nil {
			buf.backing = p
		}
		return buf
	}
	return nil
}

func (b *Builder) addBuffer(name string, desc gpucore.BufferDesc, owner ownership) *Buffer {
	if len(b.buffers) >= maxResources {
		b.declError(fmt.Errorf("%w: buffer %q is number %d", ErrTooManyResources, name, len(b.buffers)+1))
		return nil
	}
	idx := uint16(len(b.buffers)) //nolint:gosec // bounded by maxResources
	buf := &Buffer{resource: newResource(name, idx), desc: desc}
	buf.owner = owner
	b.buffers = append(b.buffers, buf)
	b.bufByName[name] = idx
	return buf
}

func (b *Builder) allocBuffer(buf *Buffer, state gpucore.State) {
	desc := buf.desc
	desc.Usage |= desc.Kind.DefaultUsage() | gpucore.BufUsageFromState(state) | b.g.bufUsage[buf.name]
	bb, reused, err := b.g.pool.AcquireBuffer(buf.name, desc)
	if err != nil {
		if errors.Is(err, backend.ErrOutOfMemory) {
			panic(fmt.Errorf("framegraph: allocate buffer %q: %w", buf.name, err))
		}
		b.declError(fmt.Errorf("framegraph: allocate buffer %q: %w", buf.name, err))
		return
	}
	buf.backing = bb
	Logger().Debug("framegraph: buffer bound",
		"name", buf.name, "shape", buf.desc.Key().String(), "reused", reused)
}

func (b *Builder) releaseBuffer(buf *Buffer) {
	if buf.backing == nil || buf.owner != ownedTransient {
		return
	}
	if err := b.g.pool.ReleaseBuffer(buf.backing); err != nil {
		Logger().Warn("framegraph: buffer release failed", "name", buf.name, "err", err)
	}
	buf.backing = nil
}

// ReadBuffer declares that node n reads the buffer called name in state.
func (b *Builder) ReadBuffer(name string, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	if !b.declaring(n, "read buffer "+name) {
		return ResourceRef{}
	}
	buf := b.lookupBuffer(name)
	if buf == nil {
		b.declError(fmt.Errorf("%w: buffer %q read by %q", ErrUnknownResource, name, n.name))
		return ResourceRef{}
	}
	return b.readBuffer(buf, state, stages, n, buf.writeCount)
}

// ReadBufferRef declares a read of the version r refers to.
func (b *Builder) ReadBufferRef(r ResourceRef, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	if !b.declaring(n, "read buffer "+r.String()) {
		return ResourceRef{}
	}
	buf := b.bufferByRef(r)
	if buf == nil {
		b.declError(fmt.Errorf("%w: read of %v by %q", ErrInvalidRef, r, n.name))
		return ResourceRef{}
	}
	return b.readBuffer(buf, state, stages, n, r.gen)
}

// ReadExternalBuffer declares a read of a caller-owned buffer.
func (b *Builder) ReadExternalBuffer(name string, bb *backend.Buffer, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	if !b.declaring(n, "read external buffer "+name) {
		return ResourceRef{}
	}
	buf := b.importBuffer(name, bb)
	if buf == nil {
		return ResourceRef{}
	}
	return b.readBuffer(buf, state, stages, n, buf.writeCount)
}

// WriteExternalBuffer declares a write to a caller-owned buffer.
func (b *Builder) WriteExternalBuffer(name string, bb *backend.Buffer, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	if !b.declaring(n, "write external buffer "+name) {
		return ResourceRef{}
	}
	buf := b.importBuffer(name, bb)
	if buf == nil {
		return ResourceRef{}
	}
	return b.writeBuffer(buf, state, stages, n)
}

func (b *Builder) importBuffer(name string, bb *backend.Buffer) *Buffer {
	if bb == nil {
		b.declError(fmt.Errorf("%w: external buffer %q has no backing", ErrUnknownResource, name))
		return nil
	}
	if buf := b.Buffer(name); buf != nil {
		if buf.owner != ownedExternal || buf.backing != bb {
			b.declError(fmt.Errorf("%w: %q already bound to another backing", ErrShapeConflict, name))
			return nil
		}
		return buf
	}
	buf := b.addBuffer(name, bb.Desc(), ownedExternal)
	if buf != nil {
		buf.backing = bb
	}
	return buf
}

// WriteBuffer declares that node n writes the buffer called name in
// state. It follows the rules of WriteTexture.
func (b *Builder) WriteBuffer(name string, desc *gpucore.BufferDesc, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	if !b.declaring(n, "write buffer "+name) {
		return ResourceRef{}
	}
	if desc != nil {
		if err := desc.Validate(); err != nil {
			b.declError(fmt.Errorf("framegraph: write %q: %w", name, err))
			return ResourceRef{}
		}
	}

	buf := b.lookupBuffer(name)
	switch {
	case buf == nil && desc == nil:
		b.declError(fmt.Errorf("%w: buffer %q written by %q without a descriptor", ErrUnknownResource, name, n.name))
		return ResourceRef{}
	case buf == nil:
		if buf = b.addBuffer(name, *desc, ownedTransient); buf == nil {
			return ResourceRef{}
		}
		b.allocBuffer(buf, state)
	case desc != nil && !buf.desc.SameShape(*desc):
		if buf.owner != ownedTransient {
			b.declError(fmt.Errorf("%w: %s buffer %q is %v, %q wants %v",
				ErrShapeConflict, buf.owner, name, buf.desc.Key(), n.name, desc.Key()))
			break
		}
		b.declError(fmt.Errorf("%w: buffer %q reallocated from %v to %v by %q",
			ErrShapeConflict, name, buf.desc.Key(), desc.Key(), n.name))
		b.releaseBuffer(buf)
		buf.desc = *desc
		b.allocBuffer(buf, state)
	case desc != nil:
		buf.desc.Usage |= desc.Usage
	}
	return b.writeBuffer(buf, state, stages, n)
}

// WriteBufferRef declares a write producing the next version of the
// buffer r refers to.
func (b *Builder) WriteBufferRef(r ResourceRef, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	if !b.declaring(n, "write buffer "+r.String()) {
		return ResourceRef{}
	}
	buf := b.bufferByRef(r)
	if buf == nil {
		b.declError(fmt.Errorf("%w: write of %v by %q", ErrInvalidRef, r, n.name))
		return ResourceRef{}
	}
	return b.writeBuffer(buf, state, stages, n)
}

func (b *Builder) bufferByRef(r ResourceRef) *Buffer {
	if r.typ != ResourceBuffer || int(r.index) >= len(b.buffers) {
		return nil
	}
	buf := b.buffers[r.index]
	if r.gen > buf.writeCount {
		return nil
	}
	return buf
}

func (b *Builder) readBuffer(buf *Buffer, state gpucore.State, stages gpucore.StageBits, n *Node, gen uint16) ResourceRef {
	r := ResourceRef{typ: ResourceBuffer, index: buf.index}
	if o := n.output(r); o != nil {
		if o.state != state {
			b.declError(fmt.Errorf("%w: %q reads buffer %q as %v and writes it as %v",
				ErrAccessConflict, n.name, buf.name, state, o.state))
			return o.ref()
		}
		gen = min(gen, o.gen-1)
	}
	if a := n.input(r); a != nil {
		if a.state != state {
			b.declError(fmt.Errorf("%w: %q reads buffer %q as %v and %v",
				ErrAccessConflict, n.name, buf.name, a.state, state))
		} else {
			a.stages |= stages
		}
		return a.ref()
	}
	n.inputs = append(n.inputs, access{typ: ResourceBuffer, index: buf.index, gen: gen, state: state, stages: stages})
	buf.readers = append(buf.readers, slot{node: n.index, access: len(n.inputs) - 1})
	return n.inputs[len(n.inputs)-1].ref()
}

func (b *Builder) writeBuffer(buf *Buffer, state gpucore.State, stages gpucore.StageBits, n *Node) ResourceRef {
	r := ResourceRef{typ: ResourceBuffer, index: buf.index}
	if o := n.output(r); o != nil {
		if o.state != state {
			b.declError(fmt.Errorf("%w: %q writes buffer %q as %v and %v",
				ErrAccessConflict, n.name, buf.name, o.state, state))
		} else {
			o.stages |= stages
		}
		return o.ref()
	}
	if in := n.input(r); in != nil && in.state != state {
		b.declError(fmt.Errorf("%w: %q reads buffer %q as %v and writes it as %v",
			ErrAccessConflict, n.name, buf.name, in.state, state))
		return in.ref()
	}
	buf.writeCount++
	n.outputs = append(n.outputs, access{typ: ResourceBuffer, index: buf.index, gen: buf.writeCount, state: state, stages: stages})
	buf.writers = append(buf.writers, slot{node: n.index, access: len(n.outputs) - 1})
	return n.outputs[len(n.outputs)-1].ref()
}
