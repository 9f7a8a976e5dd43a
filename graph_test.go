package framegraph

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

func newTestGraph(t *testing.T, opts ...Option) (*Graph, *fakeBackend) {
	t.Helper()
	be := newFakeBackend()
	g, err := New(be, opts...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return g, be
}

func beginFrame(t *testing.T, g *Graph) *Builder {
	t.Helper()
	b, err := g.BeginFrame()
	if err != nil {
		t.Fatalf("BeginFrame() = %v", err)
	}
	return b
}

// finishFrame compiles, executes and ends b, failing on any error.
func finishFrame(t *testing.T, b *Builder, outputs ...ResourceRef) {
	t.Helper()
	if err := b.Compile(outputs...); err != nil {
		t.Fatalf("Compile() = %v", err)
	}
	if err := b.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if err := b.EndFrame(); err != nil {
		t.Fatalf("EndFrame() = %v", err)
	}
}

func rgba(w, h uint32) *gpucore.TextureDesc {
	return &gpucore.TextureDesc{Width: w, Height: h, Format: gputypes.TextureFormatRGBA8Unorm}
}

func storage(size uint64) *gpucore.BufferDesc {
	return &gpucore.BufferDesc{Size: size, Kind: gpucore.BufferStorage}
}

func noop(context.Context, *Builder) error { return nil }

func TestGraphLifecycleErrors(t *testing.T) {
	g, _ := newTestGraph(t)

	b := beginFrame(t, g)
	if _, err := g.BeginFrame(); !errors.Is(err, ErrFrameInProgress) {
		t.Errorf("second BeginFrame() = %v, want ErrFrameInProgress", err)
	}
	if err := b.Execute(context.Background()); !errors.Is(err, ErrNotCompiled) {
		t.Errorf("Execute() before Compile = %v, want ErrNotCompiled", err)
	}
	if err := b.EndFrame(); err != nil {
		t.Fatalf("EndFrame() = %v", err)
	}
	if err := b.EndFrame(); !errors.Is(err, ErrFrameEnded) {
		t.Errorf("second EndFrame() = %v, want ErrFrameEnded", err)
	}
	if err := b.Compile(); !errors.Is(err, ErrFrameEnded) {
		t.Errorf("Compile() after EndFrame = %v, want ErrFrameEnded", err)
	}
	if g.Frame() != 1 {
		t.Errorf("Frame() = %d, want 1", g.Frame())
	}

	if err := g.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if _, err := g.BeginFrame(); !errors.Is(err, ErrGraphClosed) {
		t.Errorf("BeginFrame() after Close = %v, want ErrGraphClosed", err)
	}
}

func TestTransientReuseAcrossFrames(t *testing.T) {
	g, be := newTestGraph(t)

	var backings [2]*backend.Texture
	var buffers [2]*backend.Buffer
	for frame := range 2 {
		b := beginFrame(t, g)
		n := b.AddNode("fill")
		color := n.AddColorOutput("color", rgba(256, 256))
		counts := n.AddStorageOutput("counts", storage(4096), gpucore.StageComputeShader)
		n.SetExecutor(func(_ context.Context, b *Builder) error {
			tex, err := b.GetWriteTexture(color)
			if err != nil {
				return err
			}
			buf, err := b.GetWriteBuffer(counts)
			if err != nil {
				return err
			}
			backings[frame] = tex.Backing()
			buffers[frame] = buf.Backing()
			return nil
		})
		finishFrame(t, b)
	}

	if be.texturesCreated != 1 {
		t.Errorf("textures created = %d, want 1", be.texturesCreated)
	}
	if be.buffersCreated != 1 {
		t.Errorf("buffers created = %d, want 1", be.buffersCreated)
	}
	if backings[0] == nil || backings[0] != backings[1] {
		t.Error("second frame did not reuse the pooled texture")
	}
	if buffers[0] == nil || buffers[0] != buffers[1] {
		t.Error("second frame did not reuse the pooled buffer")
	}
}

func TestDepthWriteThenSample(t *testing.T) {
	g, be := newTestGraph(t, WithClearOnAlloc(false))
	b := beginFrame(t, g)

	depthDesc := &gpucore.TextureDesc{Width: 512, Height: 512, Format: gputypes.TextureFormatDepth32Float}

	a := b.AddNode("A")
	written := a.AddDepthOutput("depth", depthDesc)
	a.SetExecutor(func(_ context.Context, b *Builder) error {
		_, err := b.GetWriteTexture(written)
		return err
	})

	pb := b.AddNode("B")
	read := pb.AddTextureInput(written, gpucore.StageFragmentShader)
	var (
		depth *backend.Texture
		shape gpucore.TextureDesc
		state gpucore.State
	)
	pb.SetExecutor(func(_ context.Context, b *Builder) error {
		tex, err := b.GetReadTexture(read)
		if err != nil {
			return err
		}
		depth, shape, state = tex.Backing(), tex.Desc(), tex.State()
		return nil
	})

	finishFrame(t, b)

	if depth == nil {
		t.Fatal("B did not resolve its input")
	}
	if shape.Width != 512 || shape.Height != 512 {
		t.Errorf("resolved shape = %dx%d, want 512x512", shape.Width, shape.Height)
	}
	if state != gpucore.StateShaderResource {
		t.Errorf("resolved state = %v, want ShaderResource", state)
	}

	trs := be.transitionsOf(depth)
	count := 0
	for _, tr := range trs {
		if tr.Old == gpucore.StateDepthWrite && tr.New == gpucore.StateShaderResource {
			count++
		}
	}
	if count != 1 {
		t.Errorf("DepthWrite->ShaderResource transitions = %d, want 1 (all: %v)", count, trs)
	}

	bb, ok := be.barrier("B")
	if !ok {
		t.Fatal("no barrier recorded before B")
	}
	if len(bb.Transitions) != 1 {
		t.Errorf("barrier before B has %d transitions, want 1", len(bb.Transitions))
	}
	if bb.SrcStages != gpucore.StageDepthAttachment {
		t.Errorf("SrcStages = %v, want DepthAttachment", bb.SrcStages)
	}
	if !bb.DstStages.Has(gpucore.StageFragmentShader) {
		t.Errorf("DstStages = %v, want FragmentShader", bb.DstStages)
	}
}

func TestGetBeforeExecuteFails(t *testing.T) {
	g, _ := newTestGraph(t)
	b := beginFrame(t, g)

	n := b.AddNode("A")
	r := n.AddColorOutput("color", rgba(16, 16))
	n.SetExecutor(noop)

	if _, err := b.GetWriteTexture(r); !errors.Is(err, ErrNotExecuting) {
		t.Errorf("GetWriteTexture during Setup = %v, want ErrNotExecuting", err)
	}
	if err := b.Compile(); err != nil {
		t.Fatalf("Compile() = %v", err)
	}
	if _, err := b.GetReadTexture(r); !errors.Is(err, ErrNotExecuting) {
		t.Errorf("GetReadTexture after Compile = %v, want ErrNotExecuting", err)
	}
	if err := b.EndFrame(); err != nil {
		t.Fatalf("EndFrame() = %v", err)
	}
}

func TestIdempotentRead(t *testing.T) {
	g, _ := newTestGraph(t)
	b := beginFrame(t, g)

	a := b.AddNode("A")
	a.AddColorOutput("color", rgba(32, 32))
	r := b.AddNode("B")
	r1 := b.ReadTexture("color", gpucore.StateShaderResource, gpucore.StageFragmentShader, r)
	r2 := b.ReadTexture("color", gpucore.StateShaderResource, gpucore.StageComputeShader, r)

	if r1 != r2 {
		t.Errorf("refs differ: %v != %v", r1, r2)
	}
	if got := len(r.Inputs()); got != 1 {
		t.Errorf("inputs = %d, want 1", got)
	}
	if got := len(b.Texture("color").readers); got != 1 {
		t.Errorf("readers = %d, want 1", got)
	}
	if err := b.Compile(); err != nil {
		t.Fatalf("Compile() = %v", err)
	}
	if len(r.deps) != 1 || r.deps[0] != a.Index() {
		t.Errorf("deps = %v, want [%d]", r.deps, a.Index())
	}
	if b.Err() != nil {
		t.Errorf("Err() = %v", b.Err())
	}
	_ = b.EndFrame()
}

func TestIdempotentWrite(t *testing.T) {
	g, be := newTestGraph(t)
	b := beginFrame(t, g)

	n := b.AddNode("A")
	w1 := n.AddColorOutput("color", rgba(32, 32))
	w2 := n.AddColorOutput("color", rgba(32, 32))
	if w1 != w2 {
		t.Errorf("refs differ: %v != %v", w1, w2)
	}
	if be.texturesCreated != 1 {
		t.Errorf("textures created = %d, want 1", be.texturesCreated)
	}
	if got := b.Texture("color").Generation(); got != 1 {
		t.Errorf("Generation() = %d, want 1", got)
	}
	_ = b.EndFrame()
}

func TestAccessConflict(t *testing.T) {
	g, _ := newTestGraph(t)
	b := beginFrame(t, g)

	b.AddNode("A").AddColorOutput("color", rgba(8, 8))
	n := b.AddNode("B")
	b.ReadTexture("color", gpucore.StateShaderResource, gpucore.StageFragmentShader, n)
	b.ReadTexture("color", gpucore.StateCopySrc, gpucore.StageTransfer, n)

	if !errors.Is(b.Err(), ErrAccessConflict) {
		t.Errorf("Err() = %v, want ErrAccessConflict", b.Err())
	}
	_ = b.EndFrame()
}

func TestUnknownResource(t *testing.T) {
	g, _ := newTestGraph(t)
	b := beginFrame(t, g)

	n := b.AddNode("A")
	if r := b.ReadTexture("missing", gpucore.StateShaderResource, gpucore.StageFragmentShader, n); r.Valid() {
		t.Errorf("read of unknown name returned %v", r)
	}
	if r := b.WriteBuffer("missing", nil, gpucore.StateUnorderedAccess, gpucore.StageComputeShader, n); r.Valid() {
		t.Errorf("write without desc returned %v", r)
	}
	if !errors.Is(b.Err(), ErrUnknownResource) {
		t.Errorf("Err() = %v, want ErrUnknownResource", b.Err())
	}
	_ = b.EndFrame()
}

func TestDebugPanics(t *testing.T) {
	g, _ := newTestGraph(t, WithDebug(true))
	b := beginFrame(t, g)
	n := b.AddNode("A")

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrUnknownResource) {
			t.Errorf("recovered %v, want ErrUnknownResource", r)
		}
		_ = b.EndFrame()
	}()
	b.ReadTexture("missing", gpucore.StateShaderResource, gpucore.StageFragmentShader, n)
	t.Error("ReadTexture of unknown name did not panic")
}

func TestShapeConflictReallocates(t *testing.T) {
	g, _ := newTestGraph(t)
	b := beginFrame(t, g)

	a := b.AddNode("A")
	ra := a.AddColorOutput("color", rgba(256, 256))
	old := b.Texture("color").Backing()

	pb := b.AddNode("B")
	pb.AddColorOutput("color", rgba(512, 512))

	rec := b.Texture("color")
	if d := rec.Desc(); d.Width != 512 || d.Height != 512 {
		t.Errorf("record shape = %dx%d, want 512x512", d.Width, d.Height)
	}
	if rec.Backing() == old {
		t.Error("record still bound to the 256x256 backing")
	}
	if !g.pool.IsFreeTexture(old) {
		t.Error("old backing was not returned to the pool")
	}
	if !errors.Is(b.Err(), ErrShapeConflict) {
		t.Errorf("Err() = %v, want ErrShapeConflict", b.Err())
	}

	// A released backing of the old shape goes to the next writer only.
	d := b.AddNode("D")
	d.AddColorOutput("other", rgba(256, 256))
	d.SetExecutor(noop)
	if b.Texture("other").Backing() != old {
		t.Error("new 256x256 transient did not reuse the released backing")
	}

	c := b.AddNode("C")
	r := b.ReadTexture("color", gpucore.StateShaderResource, gpucore.StageFragmentShader, c)
	var seen, seenA *Texture
	c.SetExecutor(func(_ context.Context, b *Builder) error {
		var err error
		seen, err = b.GetReadTexture(r)
		return err
	})
	a.SetExecutor(func(_ context.Context, b *Builder) error {
		// The ref predates B's write; only the record matters here.
		seenA, _ = b.GetWriteTexture(ra)
		return nil
	})
	pb.SetExecutor(noop)

	if err := b.Compile(); err != nil {
		t.Fatalf("Compile() = %v", err)
	}
	if err := b.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if seen == nil || seen.Backing() == old || seen.Desc().Width != 512 {
		t.Errorf("C resolved %v, want the 512x512 record", seen)
	}
	if seenA == nil || seenA.Backing() == old || seenA.Backing() != seen.Backing() {
		t.Errorf("A resolved %v, want the 512x512 backing", seenA)
	}
	_ = b.EndFrame()
}

func TestResourceTableFull(t *testing.T) {
	defer func(n int) { maxResources = n }(maxResources)
	maxResources = 2

	g, _ := newTestGraph(t)
	b := beginFrame(t, g)
	n := b.AddNode("fill")
	first := n.AddColorOutput("a", rgba(4, 4))
	n.AddColorOutput("b", rgba(4, 4))
	if r := n.AddColorOutput("c", rgba(4, 4)); r.Valid() {
		t.Errorf("third texture got ref %v", r)
	}
	if b.Texture("c") != nil {
		t.Error("third texture was recorded")
	}
	if got := b.Texture("a"); got == nil || b.Texture("b") == nil {
		t.Fatal("records before the limit were lost")
	}
	if r := n.AddStorageOutput("x", storage(16), gpucore.StageComputeShader); !r.Valid() {
		t.Error("buffer table shares the texture limit")
	}
	if !errors.Is(b.Err(), ErrTooManyResources) {
		t.Errorf("Err() = %v, want ErrTooManyResources", b.Err())
	}
	if b.Texture("a").Name() != "a" || !first.Valid() {
		t.Error("existing name index corrupted")
	}
}

func TestPersistentTexture(t *testing.T) {
	g, be := newTestGraph(t)
	lut, err := g.CreatePersistentTexture("lut", gpucore.TextureDesc{
		Width: 32, Height: 32, Format: gputypes.TextureFormatRGBA8Unorm,
		Usage: gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		t.Fatalf("CreatePersistentTexture() = %v", err)
	}
	if _, err := g.CreatePersistentTexture("lut", *rgba(64, 64)); !errors.Is(err, ErrShapeConflict) {
		t.Errorf("re-create with new shape = %v, want ErrShapeConflict", err)
	}

	for range 2 {
		b := beginFrame(t, g)
		n := b.AddNode("apply")
		r := b.ReadTexture("lut", gpucore.StateShaderResource, gpucore.StageFragmentShader, n)
		n.AddColorOutput("out", rgba(32, 32))
		n.SetExecutor(func(_ context.Context, b *Builder) error {
			tex, err := b.GetReadTexture(r)
			if err != nil {
				return err
			}
			if tex.Backing() != lut {
				t.Error("persistent read did not resolve to the persistent backing")
			}
			return nil
		})
		finishFrame(t, b)
	}

	if be.texturesDestroyed != 0 {
		t.Errorf("textures destroyed = %d, want 0", be.texturesDestroyed)
	}
	if !g.DestroyPersistent("lut") {
		t.Error("DestroyPersistent() = false")
	}
	if be.texturesDestroyed != 1 {
		t.Errorf("textures destroyed = %d, want 1", be.texturesDestroyed)
	}
}

func TestExternalTextureKeepsNodeAlive(t *testing.T) {
	g, be := newTestGraph(t)
	swap, _ := be.CreateTexture("swapchain", *rgba(64, 64))

	b := beginFrame(t, g)
	blit := b.AddNode("blit")
	blit.SetExecutor(noop)
	b.WriteExternalTexture("backbuffer", swap, gpucore.StateRenderTarget, gpucore.StageColorAttachment, blit)

	other := b.AddNode("other")
	out := other.AddColorOutput("other", rgba(8, 8))
	other.SetExecutor(noop)

	finishFrame(t, b, out)

	if blit.Culled() {
		t.Error("node writing an external texture was culled")
	}
	if swap.State() != gpucore.StateRenderTarget {
		t.Errorf("external state = %v, want RenderTarget", swap.State())
	}
	if be.clears != 1 {
		t.Errorf("clears = %d, want 1 (external backings are not cleared)", be.clears)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	g, be := newTestGraph(t)

	var written, previous [2]*backend.Texture
	for frame := range 2 {
		b := beginFrame(t, g)
		n := b.AddNode("taa")
		prev := n.AddHistoryTextureInput("taa", gpucore.StageFragmentShader)
		out := n.AddColorOutput("taa", rgba(128, 128))
		if frame == 0 {
			b.AddNode("scratch").AddColorOutput("scratch", rgba(4, 4))
		}
		n.SetExecutor(func(_ context.Context, b *Builder) error {
			p, err := b.GetReadTexture(prev)
			if err != nil {
				return err
			}
			w, err := b.GetWriteTexture(out)
			if err != nil {
				return err
			}
			previous[frame], written[frame] = p.Backing(), w.Backing()
			return nil
		})
		if frame == 1 && b.Texture("scratch") != nil {
			t.Error("transient record survived into the next frame")
		}
		finishFrame(t, b)
		if frame == 0 && be.texturesCreated != 4 {
			// one pooled "taa" released when the pair was bound, the pair, "scratch"
			t.Errorf("textures created in first frame = %d, want 4", be.texturesCreated)
		}
	}

	if be.texturesCreated != 4 {
		t.Errorf("textures created = %d, want 4", be.texturesCreated)
	}
	if written[0] == nil || written[0] != previous[1] {
		t.Error("second frame's history does not hold the first frame's output")
	}
	if written[1] == written[0] {
		t.Error("both frames wrote the same history backing")
	}
	if previous[0] == written[0] {
		t.Error("first frame read and wrote the same backing")
	}
}

func TestHistoryDroppedWhenIdle(t *testing.T) {
	g, _ := newTestGraph(t, WithPoolConfig(PoolConfig{MaxIdleFrames: 1}))

	b := beginFrame(t, g)
	n := b.AddNode("taa")
	n.AddHistoryTextureInput("taa", gpucore.StageFragmentShader)
	n.AddColorOutput("taa", rgba(16, 16))
	n.SetExecutor(noop)
	finishFrame(t, b)
	if len(g.history) != 1 {
		t.Fatalf("history pairs = %d, want 1", len(g.history))
	}

	for range 2 {
		finishFrame(t, beginFrame(t, g))
	}
	if len(g.history) != 0 {
		t.Errorf("history pairs = %d, want 0 after idle frames", len(g.history))
	}
}

func TestHistoryWithoutMainWrite(t *testing.T) {
	g, _ := newTestGraph(t)
	b := beginFrame(t, g)

	n := b.AddNode("taa")
	n.AddHistoryTextureInput("taa", gpucore.StageFragmentShader)
	n.SetExecutor(noop)
	_ = b.Compile()
	if !errors.Is(b.Err(), ErrUnknownResource) {
		t.Errorf("Err() = %v, want ErrUnknownResource", b.Err())
	}
	_ = b.EndFrame()
}

func TestCloseEndsOpenFrame(t *testing.T) {
	g, be := newTestGraph(t)
	b := beginFrame(t, g)
	b.AddNode("A").AddColorOutput("color", rgba(8, 8))

	if err := g.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if b.Phase() != PhaseEnded {
		t.Errorf("Phase() = %v, want Ended", b.Phase())
	}
	if be.texturesDestroyed != be.texturesCreated {
		t.Errorf("destroyed %d of %d textures", be.texturesDestroyed, be.texturesCreated)
	}
	if err := g.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
