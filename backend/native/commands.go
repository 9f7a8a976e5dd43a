package native

import (
	"fmt"
	"image/color"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// indirectArgsSize is the byte size of one dispatch-indirect record.
const indirectArgsSize = 12

// DispatchCompute records a compute pass with one dispatch.
func (b *Backend) DispatchCompute(p *backend.Pipeline, bindings []backend.Binding, groups [3]uint32) error {
	pass, err := b.beginCompute(p, bindings)
	if err != nil {
		return err
	}
	pass.Dispatch(groups[0], groups[1], groups[2])
	pass.End()
	b.stats.dispatches.Add(1)
	return nil
}

// DispatchComputeIndirect records a compute dispatch reading its group
// counts from args.
func (b *Backend) DispatchComputeIndirect(p *backend.Pipeline, bindings []backend.Binding, args *backend.Buffer, offset uint64) error {
	raw := rawBuffer(args)
	if raw == nil {
		return backend.ErrNilResource
	}
	if offset+indirectArgsSize > args.Desc().Size {
		return fmt.Errorf("native: indirect args at %d overrun %q", offset, args.Label())
	}
	pass, err := b.beginCompute(p, bindings)
	if err != nil {
		return err
	}
	pass.DispatchIndirect(raw, offset)
	pass.End()
	b.stats.dispatches.Add(1)
	return nil
}

func (b *Backend) beginCompute(p *backend.Pipeline, bindings []backend.Binding) (hal.ComputePassEncoder, error) {
	if err := b.recording(); err != nil {
		return nil, err
	}
	np, err := b.pipelineFor(p, backend.PipelineCompute)
	if err != nil {
		return nil, err
	}
	group, err := b.bindGroup(p, np, bindings)
	if err != nil {
		return nil, err
	}
	pass := b.frame.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: p.Label})
	pass.SetPipeline(np.compute)
	if group != nil {
		pass.SetBindGroup(0, group, nil)
	}
	return pass, nil
}

// Draw records a render pass over target with one non-indexed draw.
func (b *Backend) Draw(p *backend.Pipeline, target backend.RenderTarget, bindings []backend.Binding, vertexCount, instanceCount uint32) error {
	if err := b.recording(); err != nil {
		return err
	}
	np, err := b.pipelineFor(p, backend.PipelineRender)
	if err != nil {
		return err
	}
	width, height := target.Extent()
	if width == 0 || height == 0 {
		return fmt.Errorf("native: draw %q: empty render target", p.Label)
	}
	desc, err := b.renderPass(p.Label, target)
	if err != nil {
		return err
	}
	group, err := b.bindGroup(p, np, bindings)
	if err != nil {
		return err
	}

	rp := b.frame.encoder.BeginRenderPass(desc)
	rp.SetPipeline(np.render)
	vp := np.viewport
	if vp.Width == 0 || vp.Height == 0 {
		vp = gpucore.Viewport{Width: width, Height: height}
	}
	rp.SetViewport(float32(vp.X), float32(vp.Y), float32(vp.Width), float32(vp.Height), 0, 1)
	if group != nil {
		rp.SetBindGroup(0, group, nil)
	}
	rp.Draw(vertexCount, max(instanceCount, 1), 0, 0)
	rp.End()
	b.stats.draws.Add(1)
	return nil
}

func (b *Backend) renderPass(label string, target backend.RenderTarget) (*hal.RenderPassDescriptor, error) {
	desc := &hal.RenderPassDescriptor{Label: label}
	for _, a := range target.Color {
		view, err := b.textureView(a.Texture)
		if err != nil {
			return nil, err
		}
		load := gputypes.LoadOpLoad
		if a.Clear {
			load = gputypes.LoadOpClear
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       view,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: clearColor(a.ClearColor),
		})
	}
	if d := target.Depth; d != nil {
		view, err := b.textureView(d.Texture)
		if err != nil {
			return nil, err
		}
		load := gputypes.LoadOpLoad
		if d.Clear && !d.ReadOnly {
			load = gputypes.LoadOpClear
		}
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     load,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: d.ClearDepth,
			DepthReadOnly:   d.ReadOnly,
		}
	}
	return desc, nil
}

func clearColor(c color.RGBA) gputypes.Color {
	return gputypes.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
		A: float64(c.A) / 255,
	}
}

// ClearTexture fills mip 0 of t with c. Attachable textures are cleared
// by an empty render pass; others are written through the queue.
func (b *Backend) ClearTexture(t *backend.Texture, c color.RGBA) error {
	if err := b.recording(); err != nil {
		return err
	}
	if rawTexture(t) == nil {
		return backend.ErrNilResource
	}
	desc := t.Desc()
	if desc.Usage.Contains(gputypes.TextureUsageRenderAttachment) {
		return b.clearAttachment(t, c)
	}
	if !desc.Usage.Contains(gputypes.TextureUsageCopyDst) {
		return fmt.Errorf("%w: clear %q without CopyDst usage", backend.ErrUnsupported, t.Label())
	}
	bpp := gpucore.BytesPerPixel(desc.Format)
	data := make([]byte, uint64(desc.Width)*uint64(desc.Height)*uint64(bpp)*uint64(desc.Layers))
	if texel, ok := encodeTexel(desc.Format, c); ok {
		for i := 0; i < len(data); i += len(texel) {
			copy(data[i:], texel)
		}
	} else if c != (color.RGBA{}) {
		b.log().Debug("native: clear color not encodable, writing zeros", "label", t.Label(), "format", desc.Format)
	}
	err := b.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: rawTexture(t), Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: desc.Width * bpp, RowsPerImage: desc.Height},
		&hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: desc.Layers},
	)
	if err != nil {
		return fmt.Errorf("native: clear %q: %w", t.Label(), err)
	}
	return nil
}

// clearAttachment clears t with a render pass. The texture is moved out
// of CopyDst for the pass and back afterwards.
func (b *Backend) clearAttachment(t *backend.Texture, c color.RGBA) error {
	desc := t.Desc()
	state := gpucore.StateRenderTarget
	target := backend.RenderTarget{}
	if desc.Format.HasDepth() {
		state = gpucore.StateDepthWrite
		target.Depth = &backend.Attachment{Texture: t, Clear: true}
	} else {
		target.Color = []backend.Attachment{{Texture: t, Clear: true, ClearColor: c}}
	}
	rp, err := b.renderPass("clear "+t.Label(), target)
	if err != nil {
		return err
	}
	b.transitionTexture(t, t.State(), state)
	b.frame.encoder.BeginRenderPass(rp).End()
	b.transitionTexture(t, state, t.State())
	return nil
}

func encodeTexel(f gputypes.TextureFormat, c color.RGBA) ([]byte, bool) {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		return []byte{c.R, c.G, c.B, c.A}, true
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return []byte{c.B, c.G, c.R, c.A}, true
	case gputypes.TextureFormatR8Unorm:
		return []byte{c.R}, true
	}
	return nil, false
}

// ClearBuffer zero-fills buf with a queue write, so it is ordered with
// WriteBuffer uploads rather than with the frame's commands. Only valid
// before the buffer's first use in the frame.
func (b *Backend) ClearBuffer(buf *backend.Buffer) error {
	if err := b.recording(); err != nil {
		return err
	}
	raw := rawBuffer(buf)
	if raw == nil {
		return backend.ErrNilResource
	}
	if err := b.queue.WriteBuffer(raw, 0, make([]byte, buf.Desc().Size)); err != nil {
		return fmt.Errorf("native: clear %q: %w", buf.Label(), err)
	}
	return nil
}
