package passes

import (
	"context"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
)

type temporalTemp struct {
	current, history framegraph.ResourceRef
	out              framegraph.ResourceRef
}

// TemporalResolve blends the reflections with the previous frame's
// resolved result, clamped to the current neighborhood.
type TemporalResolve struct {
	Extent Extent

	pipeline *framegraph.Lazy[*backend.Pipeline]
}

// NewTemporalResolve returns a resolve pass at e.
func NewTemporalResolve(e Extent) *TemporalResolve {
	return &TemporalResolve{
		Extent: e,
		pipeline: framegraph.NewLazy(computePipeline("temporal",
			computeSlot(0, backend.BindSampledTexture, SceneFormat),
			computeSlot(1, backend.BindSampledTexture, SceneFormat),
			computeSlot(2, backend.BindStorageTexture, SceneFormat),
		)),
	}
}

// Name returns "temporal resolve".
func (p *TemporalResolve) Name() string { return "temporal resolve" }

// Setup reads this frame's reflections and last frame's resolve.
func (p *TemporalResolve) Setup(b *framegraph.Builder, n *framegraph.Node, s *framegraph.Scratch) {
	tmp := framegraph.TempData[temporalTemp](s)
	tmp.current = b.ReadTexture(SSR, gpucore.StateShaderResource, gpucore.StageComputeShader, n)
	tmp.history = n.AddHistoryTextureInput(Resolved, gpucore.StageComputeShader)
	tmp.out = n.AddStorageImageOutput(Resolved, p.Extent.texture(SceneFormat), gpucore.StageComputeShader)
}

// Execute dispatches one thread per pixel.
func (p *TemporalResolve) Execute(_ context.Context, b *framegraph.Builder, s *framegraph.Scratch) error {
	tmp := framegraph.TempData[temporalTemp](s)
	current, err := readTexture(b, tmp.current)
	if err != nil {
		return err
	}
	history, err := readTexture(b, tmp.history)
	if err != nil {
		return err
	}
	out, err := writeTexture(b, tmp.out)
	if err != nil {
		return err
	}
	pl, ok := p.pipeline.EnsureReady(b.InitContext())
	if !ok {
		return nil
	}
	return b.Backend().DispatchCompute(pl, []backend.Binding{
		backend.TextureBinding(0, backend.BindSampledTexture, current),
		backend.TextureBinding(1, backend.BindSampledTexture, history),
		backend.TextureBinding(2, backend.BindStorageTexture, out),
	}, p.Extent.groups())
}
