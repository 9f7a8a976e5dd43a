package passes

import (
	"context"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/colornames"
)

type blitTemp struct {
	scene, reflections, shadow framegraph.ResourceRef
	out                        framegraph.ResourceRef
}

// Blit composites scene color, resolved reflections and the shadow mask,
// tone maps the result and writes it to the backbuffer.
type Blit struct {
	Extent Extent
	// Target is the caller-owned backbuffer. When nil the pass renders to
	// a graph-owned texture called Backbuffer.
	Target *backend.Texture

	desc     backend.RenderPipelineDesc
	pipeline *framegraph.Lazy[*backend.Pipeline]
}

// NewBlit returns a blit pass. target may be nil.
func NewBlit(e Extent, target *backend.Texture) *Blit {
	p := &Blit{Extent: e, Target: target}
	format := BackbufferFormat
	if target != nil {
		format = target.Desc().Format
	}
	p.desc = backend.RenderPipelineDesc{
		ColorFormats: []gputypes.TextureFormat{format},
		Layout: []backend.BindingLayout{
			fragmentSlot(0, backend.BindSampledTexture, SceneFormat),
			fragmentSlot(1, backend.BindSampledTexture, SceneFormat),
			fragmentSlot(2, backend.BindSampledTexture, ShadowFormat),
		},
	}
	p.pipeline = framegraph.NewLazy(renderPipeline("blit", &p.desc))
	return p
}

// Name returns "blit".
func (p *Blit) Name() string { return "blit" }

// Setup declares the three inputs and the backbuffer write.
func (p *Blit) Setup(b *framegraph.Builder, n *framegraph.Node, s *framegraph.Scratch) {
	tmp := framegraph.TempData[blitTemp](s)
	tmp.scene = b.ReadTexture(SceneColor, gpucore.StateShaderResource, gpucore.StageFragmentShader, n)
	tmp.reflections = b.ReadTexture(Resolved, gpucore.StateShaderResource, gpucore.StageFragmentShader, n)
	tmp.shadow = b.ReadTexture(ShadowMask, gpucore.StateShaderResource, gpucore.StageFragmentShader, n)
	if p.Target != nil {
		tmp.out = b.WriteExternalTexture(Backbuffer, p.Target, gpucore.StateRenderTarget, gpucore.StageColorAttachment, n)
		return
	}
	tmp.out = n.AddColorOutput(Backbuffer, p.Extent.texture(BackbufferFormat))
}

// Outputs returns the backbuffer ref declared in Setup.
func (p *Blit) Outputs(s *framegraph.Scratch) []framegraph.ResourceRef {
	return []framegraph.ResourceRef{framegraph.TempData[blitTemp](s).out}
}

// Execute draws a fullscreen triangle.
func (p *Blit) Execute(_ context.Context, b *framegraph.Builder, s *framegraph.Scratch) error {
	tmp := framegraph.TempData[blitTemp](s)
	var inputs [3]*backend.Texture
	for i, r := range [3]framegraph.ResourceRef{tmp.scene, tmp.reflections, tmp.shadow} {
		t, err := readTexture(b, r)
		if err != nil {
			return err
		}
		inputs[i] = t
	}
	out, err := writeTexture(b, tmp.out)
	if err != nil {
		return err
	}
	if !p.pipeline.Ready() {
		p.desc.Raster = fullscreenRaster(b.RasterState())
		p.desc.Raster.DepthTest = false
		p.desc.Raster.DepthWrite = false
	}
	pl, ok := p.pipeline.EnsureReady(b.InitContext())
	if !ok {
		return nil
	}
	target := backend.RenderTarget{
		Color: []backend.Attachment{{Texture: out, Clear: true, ClearColor: colornames.Black}},
	}
	bindings := make([]backend.Binding, len(inputs))
	for i, t := range inputs {
		bindings[i] = backend.TextureBinding(uint32(i), backend.BindSampledTexture, t)
	}
	return b.Backend().Draw(pl, target, bindings, 3, 1)
}
