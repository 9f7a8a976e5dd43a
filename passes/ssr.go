package passes

import (
	"context"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
)

type ssrTemp struct {
	color, depth framegraph.ResourceRef
	args         framegraph.ResourceRef
	out          framegraph.ResourceRef
}

// SSRTrace marches screen-space reflection rays through the depth target.
// Its dispatch size comes from the buffer written by IndirectArgs.
type SSRTrace struct {
	Extent Extent

	pipeline *framegraph.Lazy[*backend.Pipeline]
}

// NewSSRTrace returns a trace pass writing an e-sized reflection target.
func NewSSRTrace(e Extent) *SSRTrace {
	return &SSRTrace{
		Extent: e,
		pipeline: framegraph.NewLazy(computePipeline("ssr",
			computeSlot(0, backend.BindSampledTexture, SceneFormat),
			computeSlot(1, backend.BindSampledTexture, DepthFormat),
			computeSlot(2, backend.BindStorageTexture, SceneFormat),
		)),
	}
}

// Name returns "ssr trace".
func (p *SSRTrace) Name() string { return "ssr trace" }

// Setup declares the scene inputs, the indirect arguments and the
// reflection target.
func (p *SSRTrace) Setup(b *framegraph.Builder, n *framegraph.Node, s *framegraph.Scratch) {
	tmp := framegraph.TempData[ssrTemp](s)
	tmp.color = b.ReadTexture(SceneColor, gpucore.StateShaderResource, gpucore.StageComputeShader, n)
	tmp.depth = b.ReadTexture(Depth, gpucore.StateShaderResource, gpucore.StageComputeShader, n)
	tmp.args = b.ReadBuffer(SSRArgs, gpucore.StateIndirectArgument, gpucore.StageDrawIndirect, n)
	tmp.out = n.AddStorageImageOutput(SSR, p.Extent.texture(SceneFormat), gpucore.StageComputeShader)
}

// Execute dispatches indirectly.
func (p *SSRTrace) Execute(_ context.Context, b *framegraph.Builder, s *framegraph.Scratch) error {
	tmp := framegraph.TempData[ssrTemp](s)
	color, err := readTexture(b, tmp.color)
	if err != nil {
		return err
	}
	depth, err := readTexture(b, tmp.depth)
	if err != nil {
		return err
	}
	args, err := readBuffer(b, tmp.args)
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
	return b.Backend().DispatchComputeIndirect(pl, []backend.Binding{
		backend.TextureBinding(0, backend.BindSampledTexture, color),
		backend.TextureBinding(1, backend.BindSampledTexture, depth),
		backend.TextureBinding(2, backend.BindStorageTexture, out),
	}, args, 0)
}
