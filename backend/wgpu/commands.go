package wgpu

import (
	"fmt"
	"image/color"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
)

// DispatchCompute records a compute pass with one dispatch.
func (b *Backend) DispatchCompute(p *backend.Pipeline, bindings []backend.Binding, groups [3]uint32) error {
	pass, err := b.beginCompute(p, bindings)
	if err != nil {
		return err
	}
	pass.Dispatch(groups[0], groups[1], groups[2])
	if err := pass.End(); err != nil {
		return fmt.Errorf("wgpu: dispatch %q: %w", p.Label, err)
	}
	b.stats.dispatches.Add(1)
	return nil
}

// DispatchComputeIndirect records a dispatch whose group counts are read
// from args at offset.
func (b *Backend) DispatchComputeIndirect(p *backend.Pipeline, bindings []backend.Binding, args *backend.Buffer, offset uint64) error {
	raw := rawBuffer(args)
	if raw == nil {
		return backend.ErrNilResource
	}
	if offset+12 > args.Desc().Size {
		return fmt.Errorf("wgpu: indirect args at %d overrun %q", offset, args.Label())
	}
	pass, err := b.beginCompute(p, bindings)
	if err != nil {
		return err
	}
	pass.DispatchIndirect(raw, offset)
	if err := pass.End(); err != nil {
		return fmt.Errorf("wgpu: dispatch %q: %w", p.Label, err)
	}
	b.stats.dispatches.Add(1)
	return nil
}

func (b *Backend) beginCompute(p *backend.Pipeline, bindings []backend.Binding) (*wgpu.ComputePassEncoder, error) {
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
	pass, err := b.frame.encoder.BeginComputePass(&wgpu.ComputePassDescriptor{Label: p.Label})
	if err != nil {
		return nil, fmt.Errorf("wgpu: begin compute pass %q: %w", p.Label, err)
	}
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
		return fmt.Errorf("wgpu: draw %q: empty render target", p.Label)
	}
	group, err := b.bindGroup(p, np, bindings)
	if err != nil {
		return err
	}
	rp, err := b.beginRender(p.Label, target)
	if err != nil {
		return err
	}
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
	if err := rp.End(); err != nil {
		return fmt.Errorf("wgpu: draw %q: %w", p.Label, err)
	}
	b.stats.draws.Add(1)
	return nil
}

func (b *Backend) beginRender(label string, target backend.RenderTarget) (*wgpu.RenderPassEncoder, error) {
	desc := &wgpu.RenderPassDescriptor{Label: label}
	for _, a := range target.Color {
		view, err := b.textureView(a.Texture)
		if err != nil {
			return nil, err
		}
		load := gputypes.LoadOpLoad
		if a.Clear {
			load = gputypes.LoadOpClear
		}
		desc.ColorAttachments = append(desc.ColorAttachments, wgpu.RenderPassColorAttachment{
			View:    view,
			LoadOp:  load,
			StoreOp: gputypes.StoreOpStore,
			ClearValue: gputypes.Color{
				R: float64(a.ClearColor.R) / 255,
				G: float64(a.ClearColor.G) / 255,
				B: float64(a.ClearColor.B) / 255,
				A: float64(a.ClearColor.A) / 255,
			},
		})
	}
	if d := target.Depth; d != nil {
		view, err := b.textureView(d.Texture)
		if err != nil {
			return nil, err
		}
		ds := &wgpu.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     gputypes.LoadOpLoad,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: d.ClearDepth,
			DepthReadOnly:   d.ReadOnly,
		}
		if d.Clear && !d.ReadOnly {
			ds.DepthLoadOp = gputypes.LoadOpClear
		}
		desc.DepthStencilAttachment = ds
	}
	rp, err := b.frame.encoder.BeginRenderPass(desc)
	if err != nil {
		return nil, fmt.Errorf("wgpu: begin render pass %q: %w", label, err)
	}
	return rp, nil
}

// ClearTexture fills t with c. Attachable textures are cleared by an
// empty render pass, others by a queue write that lands before the
// frame's commands.
func (b *Backend) ClearTexture(t *backend.Texture, c color.RGBA) error {
	if err := b.recording(); err != nil {
		return err
	}
	raw := rawTexture(t)
	if raw == nil {
		return backend.ErrNilResource
	}
	desc := t.Desc()
	if desc.Usage.Contains(gputypes.TextureUsageRenderAttachment) {
		target := backend.RenderTarget{}
		if desc.Format.HasDepth() {
			target.Depth = &backend.Attachment{Texture: t, Clear: true}
		} else {
			target.Color = []backend.Attachment{{Texture: t, Clear: true, ClearColor: c}}
		}
		rp, err := b.beginRender("clear "+t.Label(), target)
		if err != nil {
			return err
		}
		return rp.End()
	}
	if !desc.Usage.Contains(gputypes.TextureUsageCopyDst) {
		return fmt.Errorf("%w: clear %q without CopyDst usage", backend.ErrUnsupported, t.Label())
	}
	bpp := gpucore.BytesPerPixel(desc.Format)
	data := make([]byte, uint64(desc.Width)*uint64(desc.Height)*uint64(desc.Layers)*uint64(bpp))
	var texel []byte
	switch desc.Format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		texel = []byte{c.R, c.G, c.B, c.A}
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		texel = []byte{c.B, c.G, c.R, c.A}
	}
	for i := 0; texel != nil && i < len(data); i += len(texel) {
		copy(data[i:], texel)
	}
	err := b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{Texture: raw, Aspect: gputypes.TextureAspectAll},
		data,
		&wgpu.ImageDataLayout{BytesPerRow: desc.Width * bpp, RowsPerImage: desc.Height},
		&wgpu.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: desc.Layers},
	)
	if err != nil {
		return fmt.Errorf("wgpu: clear %q: %w", t.Label(), err)
	}
	return nil
}

// ClearBuffer zero-fills buf with a queue write. The write lands before
// the frame's commands, so it is only valid on a buffer's first use.
func (b *Backend) ClearBuffer(buf *backend.Buffer) error {
	if err := b.recording(); err != nil {
		return err
	}
	raw := rawBuffer(buf)
	if raw == nil {
		return backend.ErrNilResource
	}
	if err := b.queue.WriteBuffer(raw, 0, make([]byte, buf.Desc().Size)); err != nil {
		return fmt.Errorf("wgpu: clear %q: %w", buf.Label(), err)
	}
	return nil
}
