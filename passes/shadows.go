package passes

import (
	"context"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

type shadowTemp struct {
	depth     framegraph.ResourceRef
	occluders framegraph.ResourceRef
	mask      framegraph.ResourceRef
}

// Shadows traces shadow rays against the occluder list stored in the
// persistent Occluders buffer, read through a typed texel view.
type Shadows struct {
	Extent Extent

	pipeline *framegraph.Lazy[*backend.Pipeline]
}

// NewShadows returns a shadow pass writing an e-sized mask.
func NewShadows(e Extent) *Shadows {
	return &Shadows{
		Extent: e,
		pipeline: framegraph.NewLazy(computePipeline("shadows",
			computeSlot(0, backend.BindSampledTexture, DepthFormat),
			computeSlot(1, backend.BindTexelBuffer, OccluderFormat),
			computeSlot(2, backend.BindStorageTexture, ShadowFormat),
		)),
	}
}

// Name returns "rt shadows".
func (p *Shadows) Name() string { return "rt shadows" }

// Setup declares the depth and occluder reads and the mask output.
func (p *Shadows) Setup(b *framegraph.Builder, n *framegraph.Node, s *framegraph.Scratch) {
	tmp := framegraph.TempData[shadowTemp](s)
	tmp.depth = b.ReadTexture(Depth, gpucore.StateShaderResource, gpucore.StageComputeShader, n)
	tmp.occluders = b.ReadBuffer(Occluders, gpucore.StateShaderResource, gpucore.StageComputeShader, n)
	desc := p.Extent.texture(ShadowFormat)
	desc.FallbackColor.R = 255
	tmp.mask = n.AddStorageImageOutput(ShadowMask, desc, gpucore.StageComputeShader)
}

// Execute dispatches one thread per pixel. The first frame that sees a
// new occluder backing waits for the device while its view is created.
func (p *Shadows) Execute(ctx context.Context, b *framegraph.Builder, s *framegraph.Scratch) error {
	tmp := framegraph.TempData[shadowTemp](s)
	depth, err := readTexture(b, tmp.depth)
	if err != nil {
		return err
	}
	occluders, err := b.BufferView(ctx, tmp.occluders, OccluderFormat)
	if err != nil {
		return err
	}
	mask, err := writeTexture(b, tmp.mask)
	if err != nil {
		return err
	}
	pl, ok := p.pipeline.EnsureReady(b.InitContext())
	if !ok {
		return nil
	}
	return b.Backend().DispatchCompute(pl, []backend.Binding{
		backend.TextureBinding(0, backend.BindSampledTexture, depth),
		backend.ViewBinding(1, occluders),
		backend.TextureBinding(2, backend.BindStorageTexture, mask),
	}, p.Extent.groups())
}

// OccluderDesc returns the descriptor of a buffer holding count occluders.
func OccluderDesc(count int) gpucore.BufferDesc {
	texel := uint64(gpucore.BytesPerPixel(OccluderFormat))
	return gpucore.BufferDesc{
		Size:   uint64(max(count, 1)) * texel,
		Stride: uint32(texel),
		Kind:   gpucore.BufferStorage,
		Usage:  gputypes.BufferUsageCopyDst,
	}
}
