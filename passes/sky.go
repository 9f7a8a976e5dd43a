package passes

import (
	"context"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/colornames"
)

type skyTemp struct {
	constants framegraph.ResourceRef
	depth     framegraph.ResourceRef
	color     framegraph.ResourceRef
}

// Sky shades every pixel the depth fill left at the far plane.
type Sky struct {
	Extent Extent

	desc     backend.RenderPipelineDesc
	pipeline *framegraph.Lazy[*backend.Pipeline]
}

// NewSky returns a sky pass rendering at e.
func NewSky(e Extent) *Sky {
	p := &Sky{Extent: e}
	p.desc = backend.RenderPipelineDesc{
		ColorFormats: []gputypes.TextureFormat{SceneFormat},
		DepthFormat:  DepthFormat,
		Layout: []backend.BindingLayout{
			fragmentSlot(0, backend.BindUniformBuffer, gputypes.TextureFormatUndefined),
		},
	}
	p.pipeline = framegraph.NewLazy(renderPipeline("sky", &p.desc))
	return p
}

// Name returns "sky".
func (p *Sky) Name() string { return "sky" }

// Setup reads the frame constants and the depth as a read-only attachment
// and declares the scene color target.
func (p *Sky) Setup(b *framegraph.Builder, n *framegraph.Node, s *framegraph.Scratch) {
	tmp := framegraph.TempData[skyTemp](s)
	tmp.constants = b.ReadBuffer(FrameConstants, gpucore.StateUniformBuffer, gpucore.StageFragmentShader, n)
	tmp.depth = b.ReadTexture(Depth, gpucore.StateDepthRead, gpucore.StageDepthAttachment, n)
	desc := p.Extent.texture(SceneFormat)
	desc.FallbackColor = colornames.Black
	tmp.color = n.AddColorOutput(SceneColor, desc)
}

// Execute draws a fullscreen triangle at the far plane with an equal
// depth test.
func (p *Sky) Execute(_ context.Context, b *framegraph.Builder, s *framegraph.Scratch) error {
	tmp := framegraph.TempData[skyTemp](s)
	constants, err := readBuffer(b, tmp.constants)
	if err != nil {
		return err
	}
	depth, err := readTexture(b, tmp.depth)
	if err != nil {
		return err
	}
	color, err := writeTexture(b, tmp.color)
	if err != nil {
		return err
	}
	if !p.pipeline.Ready() {
		rs := fullscreenRaster(b.RasterState())
		rs.DepthTest = true
		rs.DepthWrite = false
		rs.DepthCompare = gputypes.CompareFunctionEqual
		p.desc.Raster = rs
	}
	pl, ok := p.pipeline.EnsureReady(b.InitContext())
	if !ok {
		return nil
	}
	target := backend.RenderTarget{
		Color: []backend.Attachment{{Texture: color, Clear: true, ClearColor: colornames.Black}},
		Depth: &backend.Attachment{Texture: depth, ReadOnly: true},
	}
	bindings := []backend.Binding{
		backend.BufferBinding(0, backend.BindUniformBuffer, constants),
	}
	return b.Backend().Draw(pl, target, bindings, 3, 1)
}
