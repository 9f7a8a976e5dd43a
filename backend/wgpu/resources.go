package wgpu

import (
	"fmt"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
)

type texture struct {
	raw  *wgpu.Texture
	view *wgpu.TextureView
}

// CreateTexture allocates a 2D texture.
func (b *Backend) CreateTexture(label string, desc gpucore.TextureDesc) (*backend.Texture, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("wgpu: %s: %w", label, err)
	}
	n := desc.Normalized()
	raw, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Size:          wgpu.Extent3D{Width: n.Width, Height: n.Height, DepthOrArrayLayers: n.Layers},
		MipLevelCount: n.MipCount,
		SampleCount:   n.Samples,
		Dimension:     gputypes.TextureDimension2D,
		Format:        n.Format,
		Usage:         n.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture %q: %w", label, err)
	}
	b.stats.texturesCreated.Add(1)
	b.log().Debug("wgpu: texture created", "label", label, "key", n.Key())
	return backend.NewTexture(gpucore.TextureID(b.nextID.Add(1)), label, n, &texture{raw: raw}), nil
}

// DestroyTexture releases t and its view.
func (b *Backend) DestroyTexture(t *backend.Texture) {
	if t == nil {
		return
	}
	n, ok := t.Native().(*texture)
	if !ok || n == nil {
		return
	}
	t.SetNative(nil)
	delete(b.seen, t)
	if n.view != nil {
		n.view.Release()
	}
	n.raw.Release()
	b.stats.texturesDestroyed.Add(1)
}

func (b *Backend) textureView(t *backend.Texture) (*wgpu.TextureView, error) {
	if t == nil {
		return nil, backend.ErrNilResource
	}
	n, ok := t.Native().(*texture)
	if !ok || n == nil {
		return nil, fmt.Errorf("%w: texture %q", backend.ErrNilResource, t.Label())
	}
	if n.view != nil {
		return n.view, nil
	}
	desc := t.Desc()
	dim := gputypes.TextureViewDimension2D
	if desc.Layers > 1 {
		dim = gputypes.TextureViewDimension2DArray
	}
	view, err := b.device.CreateTextureView(n.raw, &wgpu.TextureViewDescriptor{
		Label:           t.Label(),
		Format:          desc.Format,
		Dimension:       dim,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   desc.MipCount,
		ArrayLayerCount: desc.Layers,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: view of %q: %w", t.Label(), err)
	}
	n.view = view
	return view, nil
}

func rawTexture(t *backend.Texture) *wgpu.Texture {
	if t == nil {
		return nil
	}
	if n, ok := t.Native().(*texture); ok && n != nil {
		return n.raw
	}
	return nil
}

// CreateBuffer allocates a buffer.
func (b *Backend) CreateBuffer(label string, desc gpucore.BufferDesc) (*backend.Buffer, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("wgpu: %s: %w", label, err)
	}
	desc.Usage |= desc.Kind.DefaultUsage()
	raw, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", label, err)
	}
	b.stats.buffersCreated.Add(1)
	b.log().Debug("wgpu: buffer created", "label", label, "key", desc.Key())
	return backend.NewBuffer(gpucore.BufferID(b.nextID.Add(1)), label, desc, raw), nil
}

// DestroyBuffer releases buf and forgets its views.
func (b *Backend) DestroyBuffer(buf *backend.Buffer) {
	raw := rawBuffer(buf)
	if raw == nil {
		return
	}
	buf.DropViews()
	buf.SetNative(nil)
	delete(b.seen, buf)
	raw.Release()
	b.stats.buffersDestroyed.Add(1)
}

func rawBuffer(buf *backend.Buffer) *wgpu.Buffer {
	if buf == nil {
		return nil
	}
	raw, _ := buf.Native().(*wgpu.Buffer)
	return raw
}

// CreateBufferView returns a typed view aliasing buf. It binds as a
// read-only storage buffer.
func (b *Backend) CreateBufferView(buf *backend.Buffer, format gputypes.TextureFormat) (*backend.BufferView, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	raw := rawBuffer(buf)
	if raw == nil {
		return nil, backend.ErrNilResource
	}
	if format == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("wgpu: view of %q: undefined format", buf.Label())
	}
	texel := uint64(gpucore.BytesPerPixel(format))
	if buf.Desc().Size%texel != 0 {
		return nil, fmt.Errorf("wgpu: view of %q: size %d is not a multiple of %v texels",
			buf.Label(), buf.Desc().Size, format)
	}
	b.stats.viewsCreated.Add(1)
	return backend.NewBufferView(buf, format, raw), nil
}

// WriteBuffer uploads data through the queue.
func (b *Backend) WriteBuffer(buf *backend.Buffer, offset uint64, data []byte) error {
	if err := b.check(); err != nil {
		return err
	}
	raw := rawBuffer(buf)
	if raw == nil {
		return backend.ErrNilResource
	}
	if offset+uint64(len(data)) > buf.Desc().Size {
		return fmt.Errorf("wgpu: write %d bytes at %d overruns %q", len(data), offset, buf.Label())
	}
	if err := b.queue.WriteBuffer(raw, offset, data); err != nil {
		return fmt.Errorf("wgpu: write %q: %w", buf.Label(), err)
	}
	return nil
}
