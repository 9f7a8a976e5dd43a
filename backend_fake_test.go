package framegraph

import (
	"context"
	"image/color"
	"log/slog"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

// fakeBackend counts allocations and records barriers.
type fakeBackend struct {
	nextID uint64

	texturesCreated   int
	texturesDestroyed int
	buffersCreated    int
	buffersDestroyed  int
	views             int
	submits           int
	frames            int
	clears            int

	barriers []backend.Barrier
	logger   *slog.Logger

	// failTextures makes CreateTexture fail with this error.
	failTextures error
}

func newFakeBackend() *fakeBackend { return &fakeBackend{} }

func (f *fakeBackend) Name() string       { return "fake" }
func (f *fakeBackend) Kind() backend.Kind { return backend.KindExplicit }
func (f *fakeBackend) Init() error        { return nil }
func (f *fakeBackend) Close()             {}

func (f *fakeBackend) SetLogger(l *slog.Logger) { f.logger = l }

func (f *fakeBackend) CreateTexture(label string, desc gpucore.TextureDesc) (*backend.Texture, error) {
	if f.failTextures != nil {
		return nil, f.failTextures
	}
	f.nextID++
	f.texturesCreated++
	return backend.NewTexture(gpucore.TextureID(f.nextID), label, desc, nil), nil
}

func (f *fakeBackend) DestroyTexture(*backend.Texture) { f.texturesDestroyed++ }

func (f *fakeBackend) CreateBuffer(label string, desc gpucore.BufferDesc) (*backend.Buffer, error) {
	f.nextID++
	f.buffersCreated++
	return backend.NewBuffer(gpucore.BufferID(f.nextID), label, desc, nil), nil
}

func (f *fakeBackend) DestroyBuffer(*backend.Buffer) { f.buffersDestroyed++ }

func (f *fakeBackend) CreateBufferView(b *backend.Buffer, format gputypes.TextureFormat) (*backend.BufferView, error) {
	f.views++
	return backend.NewBufferView(b, format, nil), nil
}

func (f *fakeBackend) BeginFrame() error { f.frames++; return nil }
func (f *fakeBackend) EndFrame() error   { return nil }

func (f *fakeBackend) SubmitAndWait(context.Context) error {
	f.submits++
	return nil
}

func (f *fakeBackend) Transition(b backend.Barrier) error {
	f.barriers = append(f.barriers, b)
	return nil
}

func (f *fakeBackend) ClearTexture(*backend.Texture, color.RGBA) error { f.clears++; return nil }
func (f *fakeBackend) ClearBuffer(*backend.Buffer) error               { f.clears++; return nil }

func (f *fakeBackend) WriteBuffer(*backend.Buffer, uint64, []byte) error { return nil }

func (f *fakeBackend) CreateComputePipeline(desc backend.ComputePipelineDesc) (*backend.Pipeline, error) {
	return backend.NewPipeline(1, desc.Label, backend.PipelineCompute, desc.Layout, nil), nil
}

func (f *fakeBackend) CreateRenderPipeline(desc backend.RenderPipelineDesc) (*backend.Pipeline, error) {
	return backend.NewPipeline(2, desc.Label, backend.PipelineRender, desc.Layout, nil), nil
}

func (f *fakeBackend) DispatchCompute(*backend.Pipeline, []backend.Binding, [3]uint32) error {
	return nil
}

func (f *fakeBackend) DispatchComputeIndirect(*backend.Pipeline, []backend.Binding, *backend.Buffer, uint64) error {
	return nil
}

func (f *fakeBackend) Draw(*backend.Pipeline, backend.RenderTarget, []backend.Binding, uint32, uint32) error {
	return nil
}

func (f *fakeBackend) Stats() backend.Stats { return backend.Stats{} }

// transitionsOf returns every recorded transition of tex, in order.
func (f *fakeBackend) transitionsOf(tex *backend.Texture) []backend.Transition {
	var out []backend.Transition
	for _, b := range f.barriers {
		for _, tr := range b.Transitions {
			if tr.Texture == tex {
				out = append(out, tr)
			}
		}
	}
	return out
}

// barrier returns the barrier labeled label, or false.
func (f *fakeBackend) barrier(label string) (backend.Barrier, bool) {
	for _, b := range f.barriers {
		if b.Label == label {
			return b, true
		}
	}
	return backend.Barrier{}, false
}
