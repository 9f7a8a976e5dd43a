package passes

import (
	"embed"
	"fmt"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

//go:embed shaders/*.wgsl
var shaderFS embed.FS

// Resource names shared between passes.
const (
	FrameConstants = "frame constants"
	Depth          = "depth"
	SceneColor     = "scene color"
	SSRArgs        = "ssr args"
	SSR            = "ssr"
	Resolved       = "ssr resolved"
	ShadowMask     = "shadow mask"
	Occluders      = "shadow occluders"
	Backbuffer     = "backbuffer"
)

// Formats of the intermediate targets.
const (
	DepthFormat      = gputypes.TextureFormatDepth32Float
	SceneFormat      = gputypes.TextureFormatRGBA16Float
	ShadowFormat     = gputypes.TextureFormatR32Float
	BackbufferFormat = gputypes.TextureFormatRGBA8Unorm

	// OccluderFormat is the texel format the occluder buffer is viewed as.
	OccluderFormat = gputypes.TextureFormatRGBA32Float
)

// Extent is the resolution every full-screen pass renders at.
type Extent struct {
	Width, Height uint32
}

func (e Extent) texture(format gputypes.TextureFormat) *gpucore.TextureDesc {
	return &gpucore.TextureDesc{Width: e.Width, Height: e.Height, Format: format}
}

// groups returns the workgroup count covering e with 8x8 tiles.
func (e Extent) groups() [3]uint32 {
	return [3]uint32{(e.Width + 7) / 8, (e.Height + 7) / 8, 1}
}

// computePipeline compiles shaders/<name>.wgsl into a compute pipeline.
func computePipeline(name string, layout ...backend.BindingLayout) func(framegraph.InitContext) (*backend.Pipeline, error) {
	return func(ic framegraph.InitContext) (*backend.Pipeline, error) {
		prog, err := ic.Shaders.LoadProgramFS(shaderFS, name, "shaders/"+name+".wgsl")
		if err != nil {
			return nil, err
		}
		return ic.Backend.CreateComputePipeline(backend.ComputePipelineDesc{
			Label:   ic.Pass,
			Program: prog,
			Layout:  layout,
		})
	}
}

// renderPipeline compiles shaders/<name>.wgsl, prefixed with the
// fullscreen triangle helper, into a raster pipeline. desc is read when
// the pipeline is created, so a pass may fill in the raster state on its
// first Execute.
func renderPipeline(name string, desc *backend.RenderPipelineDesc) func(framegraph.InitContext) (*backend.Pipeline, error) {
	return func(ic framegraph.InitContext) (*backend.Pipeline, error) {
		prog, err := ic.Shaders.LoadProgramFS(shaderFS, name, "shaders/fullscreen.wgsl", "shaders/"+name+".wgsl")
		if err != nil {
			return nil, err
		}
		d := *desc
		d.Label = ic.Pass
		d.Program = prog
		return ic.Backend.CreateRenderPipeline(d)
	}
}

// fullscreenRaster adapts the shared raster state to a fullscreen triangle.
func fullscreenRaster(shared *gpucore.RasterState) gpucore.RasterState {
	rs := *shared
	rs.CullMode = gputypes.CullModeNone
	return rs
}

func computeSlot(slot uint32, kind backend.BindingKind, format gputypes.TextureFormat) backend.BindingLayout {
	return backend.BindingLayout{Slot: slot, Kind: kind, Visibility: gputypes.ShaderStageCompute, Format: format}
}

func fragmentSlot(slot uint32, kind backend.BindingKind, format gputypes.TextureFormat) backend.BindingLayout {
	return backend.BindingLayout{Slot: slot, Kind: kind, Visibility: gputypes.ShaderStageFragment, Format: format}
}

// The resolve helpers return the backing of a declared ref. A ref that
// fails validation but has a backing still resolves; the builder has
// logged and collected the error and the pass renders a degraded frame.

func readTexture(b *framegraph.Builder, r framegraph.ResourceRef) (*backend.Texture, error) {
	return backingOf(b.GetReadTexture(r))
}

func writeTexture(b *framegraph.Builder, r framegraph.ResourceRef) (*backend.Texture, error) {
	return backingOf(b.GetWriteTexture(r))
}

func backingOf(t *framegraph.Texture, err error) (*backend.Texture, error) {
	if t == nil || t.Backing() == nil {
		if err == nil {
			err = fmt.Errorf("passes: %w", framegraph.ErrStateMismatch)
		}
		return nil, err
	}
	return t.Backing(), nil
}

func readBuffer(b *framegraph.Builder, r framegraph.ResourceRef) (*backend.Buffer, error) {
	return bufferBackingOf(b.GetReadBuffer(r))
}

func writeBuffer(b *framegraph.Builder, r framegraph.ResourceRef) (*backend.Buffer, error) {
	return bufferBackingOf(b.GetWriteBuffer(r))
}

func bufferBackingOf(buf *framegraph.Buffer, err error) (*backend.Buffer, error) {
	if buf == nil || buf.Backing() == nil {
		if err == nil {
			err = fmt.Errorf("passes: %w", framegraph.ErrStateMismatch)
		}
		return nil, err
	}
	return buf.Backing(), nil
}

// Frame returns the passes of one demo frame in declaration order.
// target is the caller-owned backbuffer and may be nil.
func Frame(e Extent, target *backend.Texture) []framegraph.Pass {
	return []framegraph.Pass{
		NewConstants(e),
		NewDepthFill(e),
		NewSky(e),
		NewIndirectArgs(),
		NewSSRTrace(e),
		NewTemporalResolve(e),
		NewShadows(e),
		NewBlit(e, target),
	}
}
