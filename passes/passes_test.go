package passes

import (
	"context"
	"encoding/binary"
	"errors"
	"image/color"
	"math"
	"slices"
	"testing"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

type call struct {
	label    string
	indirect bool
	bindings []backend.Binding
	target   backend.RenderTarget
	groups   [3]uint32
}

// recorder is a backend that records dispatches and draws.
type recorder struct {
	nextID  uint64
	calls   []call
	views   int
	submits int
	writes  map[*backend.Buffer][]byte

	failPipelines error
}

func newRecorder() *recorder {
	return &recorder{writes: make(map[*backend.Buffer][]byte)}
}

func (r *recorder) Name() string       { return "recorder" }
func (r *recorder) Kind() backend.Kind { return backend.KindExplicit }
func (r *recorder) Init() error        { return nil }
func (r *recorder) Close()             {}

func (r *recorder) CreateTexture(label string, desc gpucore.TextureDesc) (*backend.Texture, error) {
	r.nextID++
	return backend.NewTexture(gpucore.TextureID(r.nextID), label, desc.Normalized(), nil), nil
}

func (r *recorder) DestroyTexture(*backend.Texture) {}

func (r *recorder) CreateBuffer(label string, desc gpucore.BufferDesc) (*backend.Buffer, error) {
	r.nextID++
	return backend.NewBuffer(gpucore.BufferID(r.nextID), label, desc, nil), nil
}

func (r *recorder) DestroyBuffer(*backend.Buffer) {}

func (r *recorder) CreateBufferView(b *backend.Buffer, format gputypes.TextureFormat) (*backend.BufferView, error) {
	r.views++
	return backend.NewBufferView(b, format, nil), nil
}

func (r *recorder) BeginFrame() error { return nil }
func (r *recorder) EndFrame() error   { return nil }

func (r *recorder) SubmitAndWait(context.Context) error {
	r.submits++
	return nil
}

func (r *recorder) Transition(backend.Barrier) error                { return nil }
func (r *recorder) ClearTexture(*backend.Texture, color.RGBA) error { return nil }
func (r *recorder) ClearBuffer(*backend.Buffer) error               { return nil }

func (r *recorder) WriteBuffer(b *backend.Buffer, _ uint64, data []byte) error {
	r.writes[b] = slices.Clone(data)
	return nil
}

func (r *recorder) CreateComputePipeline(desc backend.ComputePipelineDesc) (*backend.Pipeline, error) {
	if r.failPipelines != nil {
		return nil, r.failPipelines
	}
	return backend.NewPipeline(1, desc.Label, backend.PipelineCompute, desc.Layout, nil), nil
}

func (r *recorder) CreateRenderPipeline(desc backend.RenderPipelineDesc) (*backend.Pipeline, error) {
	if r.failPipelines != nil {
		return nil, r.failPipelines
	}
	return backend.NewPipeline(2, desc.Label, backend.PipelineRender, desc.Layout, nil), nil
}

func (r *recorder) DispatchCompute(p *backend.Pipeline, bindings []backend.Binding, groups [3]uint32) error {
	r.calls = append(r.calls, call{label: p.Label, bindings: bindings, groups: groups})
	return nil
}

func (r *recorder) DispatchComputeIndirect(p *backend.Pipeline, bindings []backend.Binding, _ *backend.Buffer, _ uint64) error {
	r.calls = append(r.calls, call{label: p.Label, indirect: true, bindings: bindings})
	return nil
}

func (r *recorder) Draw(p *backend.Pipeline, target backend.RenderTarget, bindings []backend.Binding, _, _ uint32) error {
	r.calls = append(r.calls, call{label: p.Label, bindings: bindings, target: target})
	return nil
}

func (r *recorder) Stats() backend.Stats { return backend.Stats{} }

func (r *recorder) call(label string) (call, bool) {
	for _, c := range r.calls {
		if c.label == label {
			return c, true
		}
	}
	return call{}, false
}

var testExtent = Extent{Width: 64, Height: 48}

// frameRunner runs the demo passes on a recorder, one Scratch per pass.
type frameRunner struct {
	g       *framegraph.Graph
	be      *recorder
	passes  []framegraph.Pass
	scratch []framegraph.Scratch
}

func newFrameRunner(t *testing.T, be *recorder, target *backend.Texture) *frameRunner {
	t.Helper()
	g, err := framegraph.New(be)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	if _, err := g.CreatePersistentBuffer(Occluders, OccluderDesc(8)); err != nil {
		t.Fatalf("CreatePersistentBuffer() = %v", err)
	}
	ps := Frame(testExtent, target)
	return &frameRunner{g: g, be: be, passes: ps, scratch: make([]framegraph.Scratch, len(ps))}
}

func (f *frameRunner) run(t *testing.T) *framegraph.Builder {
	t.Helper()
	b, err := f.g.BeginFrame()
	if err != nil {
		t.Fatalf("BeginFrame() = %v", err)
	}
	var outputs []framegraph.ResourceRef
	for i, p := range f.passes {
		f.scratch[i].Reset()
		b.AddPass(p, &f.scratch[i])
		if blit, ok := p.(*Blit); ok {
			outputs = blit.Outputs(&f.scratch[i])
		}
	}
	if err := b.Err(); err != nil {
		t.Fatalf("declaration errors: %v", err)
	}
	if err := b.Compile(outputs...); err != nil {
		t.Fatalf("Compile() = %v", err)
	}
	if err := b.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if err := b.EndFrame(); err != nil {
		t.Fatalf("EndFrame() = %v", err)
	}
	return b
}

func TestFrameRecordsEveryPass(t *testing.T) {
	be := newRecorder()
	f := newFrameRunner(t, be, nil)
	b := f.run(t)

	wantOrder := []string{
		"frame constants", "depth fill", "sky", "indirect args",
		"ssr trace", "temporal resolve", "rt shadows", "blit",
	}
	if got := b.Order(); !slices.Equal(got, wantOrder) {
		t.Errorf("Order() = %v, want %v", got, wantOrder)
	}

	var labels []string
	for _, c := range be.calls {
		labels = append(labels, c.label)
	}
	if want := wantOrder[1:]; !slices.Equal(labels, want) {
		t.Fatalf("recorded %v, want %v", labels, want)
	}

	tests := []struct {
		label    string
		indirect bool
		bindings int
	}{
		{"depth fill", false, 0},
		{"sky", false, 1},
		{"indirect args", false, 2},
		{"ssr trace", true, 3},
		{"temporal resolve", false, 3},
		{"rt shadows", false, 3},
		{"blit", false, 3},
	}
	for _, tt := range tests {
		c, _ := be.call(tt.label)
		if c.indirect != tt.indirect {
			t.Errorf("%s: indirect = %v, want %v", tt.label, c.indirect, tt.indirect)
		}
		if len(c.bindings) != tt.bindings {
			t.Errorf("%s: %d bindings, want %d", tt.label, len(c.bindings), tt.bindings)
		}
	}

	if c, _ := be.call("temporal resolve"); c.groups != [3]uint32{8, 6, 1} {
		t.Errorf("temporal resolve groups = %v, want [8 6 1]", c.groups)
	}
	sky, _ := be.call("sky")
	if sky.target.Depth == nil || !sky.target.Depth.ReadOnly {
		t.Fatal("sky does not test against a read-only depth attachment")
	}
	depth, _ := be.call("depth fill")
	if depth.target.Depth == nil || sky.target.Depth.Texture != depth.target.Depth.Texture {
		t.Error("sky and depth fill use different depth backings")
	}
	if c, _ := be.call("rt shadows"); c.bindings[1].Kind != backend.BindTexelBuffer || c.bindings[1].View == nil {
		t.Errorf("rt shadows slot 1 = %+v, want a texel view", c.bindings[1])
	}
}

func TestConstantsUpload(t *testing.T) {
	be := newRecorder()
	f := newFrameRunner(t, be, nil)
	f.run(t)

	if len(be.writes) != 1 {
		t.Fatalf("%d buffers written, want the frame constants only", len(be.writes))
	}
	var data []byte
	for _, d := range be.writes {
		data = d
	}
	if len(data) != constantsSize {
		t.Fatalf("wrote %d bytes, want %d", len(data), constantsSize)
	}
	f32 := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])) }
	if f32(0) != 64 || f32(1) != 48 {
		t.Errorf("size = %v x %v, want 64 x 48", f32(0), f32(1))
	}
	if f32(3) != 1 {
		t.Errorf("exposure = %v, want 1", f32(3))
	}
	if a := f32(11); a != 1 {
		t.Errorf("zenith alpha = %v, want 1", a)
	}
}

func TestBlitExternalTarget(t *testing.T) {
	be := newRecorder()
	target, _ := be.CreateTexture("swapchain", gpucore.TextureDesc{
		Width: testExtent.Width, Height: testExtent.Height,
		Format: gputypes.TextureFormatBGRA8Unorm,
		Usage:  gputypes.TextureUsageRenderAttachment,
	})
	f := newFrameRunner(t, be, target)
	b := f.run(t)

	c, ok := be.call("blit")
	if !ok {
		t.Fatal("blit did not draw")
	}
	if len(c.target.Color) != 1 || c.target.Color[0].Texture != target {
		t.Error("blit did not render into the external target")
	}
	if rec := b.Texture(Backbuffer); rec == nil || !rec.External() {
		t.Error("backbuffer record is not external")
	}
}

func TestHistoryPingPong(t *testing.T) {
	be := newRecorder()
	f := newFrameRunner(t, be, nil)

	f.run(t)
	first, _ := be.call("temporal resolve")
	be.calls = nil
	f.run(t)
	second, _ := be.call("temporal resolve")

	if first.bindings[2].Texture == second.bindings[2].Texture {
		t.Error("resolve wrote the same backing two frames in a row")
	}
	if second.bindings[1].Texture != first.bindings[2].Texture {
		t.Error("second frame does not read the first frame's result as history")
	}
}

func TestOccluderViewCreatedOnce(t *testing.T) {
	be := newRecorder()
	f := newFrameRunner(t, be, nil)
	for range 3 {
		f.run(t)
	}
	if be.views != 1 {
		t.Errorf("views created = %d, want 1", be.views)
	}
	if be.submits != 1 {
		t.Errorf("submits = %d, want one stall for the first view", be.submits)
	}
}

func TestPipelineFailureSkipsPass(t *testing.T) {
	be := newRecorder()
	be.failPipelines = errors.New("device lost")
	f := newFrameRunner(t, be, nil)
	f.run(t)
	if len(be.calls) != 0 {
		t.Errorf("recorded %d calls with failing pipelines", len(be.calls))
	}

	be.failPipelines = nil
	f.run(t)
	if len(be.calls) != 7 {
		t.Errorf("recorded %d calls after recovery, want 7", len(be.calls))
	}
}

func TestOccluderDesc(t *testing.T) {
	tests := []struct {
		count int
		size  uint64
	}{
		{0, 16},
		{1, 16},
		{10, 160},
	}
	for _, tt := range tests {
		d := OccluderDesc(tt.count)
		if d.Size != tt.size || d.Stride != 16 || d.Kind != gpucore.BufferStorage {
			t.Errorf("OccluderDesc(%d) = %+v", tt.count, d)
		}
	}
}
