package passes

import (
	"context"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

// indirectArgsSize holds one dispatch (x, y, z) padded to 16 bytes.
const indirectArgsSize = 16

type indirectTemp struct {
	depth framegraph.ResourceRef
	args  framegraph.ResourceRef
}

// IndirectArgs computes the SSR dispatch size on the GPU from the depth
// target's extent.
type IndirectArgs struct {
	pipeline *framegraph.Lazy[*backend.Pipeline]
}

// NewIndirectArgs returns the argument pass.
func NewIndirectArgs() *IndirectArgs {
	return &IndirectArgs{
		pipeline: framegraph.NewLazy(computePipeline("indirect",
			computeSlot(0, backend.BindSampledTexture, DepthFormat),
			computeSlot(1, backend.BindStorageBuffer, gputypes.TextureFormatUndefined),
		)),
	}
}

// Name returns "indirect args".
func (p *IndirectArgs) Name() string { return "indirect args" }

// Setup declares the depth read and the argument buffer.
func (p *IndirectArgs) Setup(b *framegraph.Builder, n *framegraph.Node, s *framegraph.Scratch) {
	tmp := framegraph.TempData[indirectTemp](s)
	tmp.depth = b.ReadTexture(Depth, gpucore.StateShaderResource, gpucore.StageComputeShader, n)
	tmp.args = n.AddStorageOutput(SSRArgs, &gpucore.BufferDesc{
		Size: indirectArgsSize,
		Kind: gpucore.BufferIndirect,
	}, gpucore.StageComputeShader)
}

// Execute runs a single invocation.
func (p *IndirectArgs) Execute(_ context.Context, b *framegraph.Builder, s *framegraph.Scratch) error {
	tmp := framegraph.TempData[indirectTemp](s)
	depth, err := readTexture(b, tmp.depth)
	if err != nil {
		return err
	}
	args, err := writeBuffer(b, tmp.args)
	if err != nil {
		return err
	}
	pl, ok := p.pipeline.EnsureReady(b.InitContext())
	if !ok {
		return nil
	}
	return b.Backend().DispatchCompute(pl, []backend.Binding{
		backend.TextureBinding(0, backend.BindSampledTexture, depth),
		backend.BufferBinding(1, backend.BindStorageBuffer, args),
	}, [3]uint32{1, 1, 1})
}
