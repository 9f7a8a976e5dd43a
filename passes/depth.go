package passes

import (
	"context"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
)

type depthTemp struct {
	depth framegraph.ResourceRef
}

// DepthFill clears the depth target and rasterizes scene depth into it.
type DepthFill struct {
	Extent Extent

	desc     backend.RenderPipelineDesc
	pipeline *framegraph.Lazy[*backend.Pipeline]
}

// NewDepthFill returns a depth pass rendering at e.
func NewDepthFill(e Extent) *DepthFill {
	p := &DepthFill{Extent: e}
	p.desc.DepthFormat = DepthFormat
	p.pipeline = framegraph.NewLazy(renderPipeline("depth", &p.desc))
	return p
}

// Name returns "depth fill".
func (p *DepthFill) Name() string { return "depth fill" }

// Setup declares the depth attachment.
func (p *DepthFill) Setup(_ *framegraph.Builder, n *framegraph.Node, s *framegraph.Scratch) {
	tmp := framegraph.TempData[depthTemp](s)
	tmp.depth = n.AddDepthOutput(Depth, p.Extent.texture(DepthFormat))
}

// Execute draws one fullscreen triangle into the cleared depth target.
func (p *DepthFill) Execute(_ context.Context, b *framegraph.Builder, s *framegraph.Scratch) error {
	tmp := framegraph.TempData[depthTemp](s)
	depth, err := writeTexture(b, tmp.depth)
	if err != nil {
		return err
	}
	if !p.pipeline.Ready() {
		p.desc.Raster = fullscreenRaster(b.RasterState())
	}
	pl, ok := p.pipeline.EnsureReady(b.InitContext())
	if !ok {
		return nil
	}
	target := backend.RenderTarget{
		// Reverse-Z: far is 0.
		Depth: &backend.Attachment{Texture: depth, Clear: true, ClearDepth: 0},
	}
	return b.Backend().Draw(pl, target, nil, 3, 1)
}
