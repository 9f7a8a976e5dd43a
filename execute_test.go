package framegraph

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

func TestResolveErrors(t *testing.T) {
	g, _ := newTestGraph(t)
	b := beginFrame(t, g)

	a := b.AddNode("A")
	r1 := a.AddColorOutput("x", rgba(16, 16))
	a.SetExecutor(noop)

	w := b.AddNode("B")
	r2 := b.WriteTextureRef(r1, gpucore.StateRenderTarget, gpucore.StageColorAttachment, w)
	other := w.AddStorageOutput("other", storage(64), gpucore.StageComputeShader)

	c := b.AddNode("C")
	in := c.AddTextureInput(r2, gpucore.StageFragmentShader)

	type result struct {
		name string
		err  error
		rec  bool
	}
	var results []result
	record := func(name string, rec bool, err error) {
		results = append(results, result{name, err, rec})
	}

	w.SetExecutor(func(_ context.Context, b *Builder) error {
		tex, err := b.GetWriteTexture(r2)
		record("current write", tex != nil, err)
		return nil
	})
	c.SetExecutor(func(_ context.Context, b *Builder) error {
		_, err := b.GetReadTexture(ResourceRef{})
		record("zero ref", false, err)

		_, err = b.GetReadBuffer(in)
		record("wrong type", false, err)

		buf, err := b.GetReadBuffer(other)
		record("undeclared", buf != nil, err)

		tex, err := b.GetReadTexture(r1)
		record("stale", tex != nil, err)

		tex, err = b.GetReadTexture(in)
		record("current read", tex != nil, err)

		tex.Backing().SetState(gpucore.StateCopySrc)
		tex, err = b.GetReadTexture(in)
		record("state mismatch", tex != nil, err)
		return nil
	})

	finishFrame(t, b)

	want := []struct {
		name string
		err  error
		rec  bool
	}{
		{"current write", nil, true},
		{"zero ref", ErrInvalidRef, false},
		{"wrong type", ErrInvalidRef, false},
		{"undeclared", ErrUndeclaredAccess, true},
		{"stale", ErrStaleRef, true},
		{"current read", nil, true},
		{"state mismatch", ErrStateMismatch, true},
	}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, tt := range want {
		got := results[i]
		if got.name != tt.name {
			t.Fatalf("result %d is %q, want %q", i, got.name, tt.name)
		}
		if tt.err == nil && got.err != nil {
			t.Errorf("%s: err = %v, want nil", tt.name, got.err)
		}
		if tt.err != nil && !errors.Is(got.err, tt.err) {
			t.Errorf("%s: err = %v, want %v", tt.name, got.err, tt.err)
		}
		if got.rec != tt.rec {
			t.Errorf("%s: record returned = %v, want %v", tt.name, got.rec, tt.rec)
		}
	}
	if !errors.Is(b.Err(), ErrStaleRef) {
		t.Errorf("Err() = %v, want it to collect ErrStaleRef", b.Err())
	}
}

func TestResolveDebugPanics(t *testing.T) {
	g, _ := newTestGraph(t, WithDebug(true))
	b := beginFrame(t, g)

	n := b.AddNode("A")
	n.AddColorOutput("x", rgba(8, 8))
	var recovered any
	n.SetExecutor(func(_ context.Context, b *Builder) error {
		defer func() { recovered = recover() }()
		_, _ = b.GetReadTexture(ResourceRef{})
		return nil
	})
	finishFrame(t, b)

	err, ok := recovered.(error)
	if !ok || !errors.Is(err, ErrInvalidRef) {
		t.Errorf("recovered %v, want ErrInvalidRef", recovered)
	}
}

func TestNodeErrorDoesNotStopFrame(t *testing.T) {
	g, _ := newTestGraph(t)
	b := beginFrame(t, g)

	boom := errors.New("boom")
	a := b.AddNode("A")
	a.AddColorOutput("a", rgba(8, 8))
	a.SetExecutor(func(context.Context, *Builder) error { return boom })

	ran := false
	n := b.AddNode("B")
	n.AddColorOutput("b", rgba(8, 8))
	n.SetExecutor(func(context.Context, *Builder) error {
		ran = true
		return nil
	})

	if err := b.Compile(); err != nil {
		t.Fatalf("Compile() = %v", err)
	}
	err := b.Execute(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Execute() = %v, want boom", err)
	}
	if !ran {
		t.Error("B did not run after A failed")
	}
	if a.State() != NodeExecuted || n.State() != NodeExecuted {
		t.Errorf("states = %v, %v, want Executed", a.State(), n.State())
	}
	_ = b.EndFrame()
}

func TestExecuteCanceled(t *testing.T) {
	g, _ := newTestGraph(t)
	b := beginFrame(t, g)

	ctx, cancel := context.WithCancel(context.Background())
	a := b.AddNode("A")
	a.AddColorOutput("a", rgba(8, 8))
	a.SetExecutor(func(context.Context, *Builder) error {
		cancel()
		return nil
	})
	n := b.AddNode("B")
	n.AddColorOutput("b", rgba(8, 8))
	n.SetExecutor(noop)

	if err := b.Compile(); err != nil {
		t.Fatalf("Compile() = %v", err)
	}
	if err := b.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() = %v, want context.Canceled", err)
	}
	if n.State() == NodeExecuted {
		t.Error("B ran after cancellation")
	}
	_ = b.EndFrame()
}

func TestTimings(t *testing.T) {
	g, _ := newTestGraph(t)
	b := beginFrame(t, g)
	for _, name := range []string{"A", "B"} {
		n := b.AddNode(name)
		n.AddColorOutput(name, rgba(8, 8))
		n.SetExecutor(noop)
	}
	finishFrame(t, b)

	tm := b.Timings()
	if len(tm) != 3 {
		t.Fatalf("Timings() has %d entries, want 3", len(tm))
	}
	if tm[0].Name != "A" || tm[1].Name != "B" {
		t.Errorf("node timings = %v", tm[:2])
	}
	if tm[2].Name != TotalTimingName {
		t.Errorf("last entry = %q, want %q", tm[2].Name, TotalTimingName)
	}
	if tm[2].Elapsed < tm[0].Elapsed {
		t.Errorf("total %v shorter than node %v", tm[2].Elapsed, tm[0].Elapsed)
	}
}

func TestBarrierCount(t *testing.T) {
	g, be := newTestGraph(t)
	b := beginFrame(t, g)

	a := b.AddNode("A")
	x := a.AddColorOutput("x", rgba(8, 8))
	r1 := b.AddNode("R1")
	r1.AddTextureInput(x, gpucore.StageFragmentShader)
	r2 := b.AddNode("R2")
	r2.AddTextureInput(x, gpucore.StageComputeShader)
	finishFrame(t, b)

	// clear, A, R1. R2 finds x already readable.
	if b.Barriers() != 3 {
		t.Errorf("Barriers() = %d, want 3", b.Barriers())
	}
	if _, ok := be.barrier("R2"); ok {
		t.Error("R2 recorded a redundant barrier")
	}
	r1b, _ := be.barrier("R1")
	if !r1b.DstStages.Has(gpucore.StageFragmentShader | gpucore.StageComputeShader) {
		t.Errorf("R1 DstStages = %v, want fragment and compute", r1b.DstStages)
	}
}

func TestBufferViewStallsOnce(t *testing.T) {
	g, be := newTestGraph(t)

	for frame := range 2 {
		b := beginFrame(t, g)
		w := b.AddNode("build")
		vis := w.AddStorageOutput("visibility", &gpucore.BufferDesc{Size: 1024, Stride: 4, Kind: gpucore.BufferStorage},
			gpucore.StageComputeShader)

		n := b.AddNode("shadows")
		in := n.AddStorageReadonlyInput(vis, gpucore.StageComputeShader)
		n.SetExecutor(func(ctx context.Context, b *Builder) error {
			for range 2 {
				v, err := b.BufferView(ctx, in, gputypes.TextureFormatR32Uint)
				if err != nil {
					return err
				}
				if v == nil {
					t.Error("BufferView() = nil")
				}
			}
			return nil
		})
		finishFrame(t, b)

		wantStalls := 0
		if frame == 0 {
			wantStalls = 1
		}
		if b.Stalls() != wantStalls {
			t.Errorf("frame %d: Stalls() = %d, want %d", frame, b.Stalls(), wantStalls)
		}
	}
	if be.submits != 1 {
		t.Errorf("submits = %d, want 1", be.submits)
	}
	if be.views != 1 {
		t.Errorf("views = %d, want 1", be.views)
	}
}

func TestBufferViewUndeclared(t *testing.T) {
	g, _ := newTestGraph(t)
	b := beginFrame(t, g)

	w := b.AddNode("build")
	vis := w.AddStorageOutput("visibility", storage(256), gpucore.StageComputeShader)
	n := b.AddNode("other")
	n.AddColorOutput("color", rgba(4, 4))
	var err error
	n.SetExecutor(func(ctx context.Context, b *Builder) error {
		_, err = b.BufferView(ctx, vis, gputypes.TextureFormatR32Uint)
		return nil
	})
	finishFrame(t, b)

	if !errors.Is(err, ErrUndeclaredAccess) {
		t.Errorf("BufferView() = %v, want ErrUndeclaredAccess", err)
	}
}
