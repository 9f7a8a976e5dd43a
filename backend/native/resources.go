package native

import (
	"fmt"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// texture is the native object behind a backend.Texture. The default
// view is created on first use as an attachment or binding.
type texture struct {
	raw  hal.Texture
	view hal.TextureView
}

// CreateTexture allocates a 2D texture with the usage recorded in desc.
func (b *Backend) CreateTexture(label string, desc gpucore.TextureDesc) (*backend.Texture, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("native: %s: %w", label, err)
	}
	n := desc.Normalized()
	raw, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              n.Width,
			Height:             n.Height,
			DepthOrArrayLayers: n.Layers,
		},
		MipLevelCount: n.MipCount,
		SampleCount:   n.Samples,
		Dimension:     gputypes.TextureDimension2D,
		Format:        n.Format,
		Usage:         n.Usage,
	})
	if err != nil {
		return nil, allocErr("texture", label, err)
	}
	b.stats.texturesCreated.Add(1)
	b.log().Debug("native: texture created", "label", label, "key", n.Key(), "usage", n.Usage)
	id := gpucore.TextureID(b.nextID.Add(1))
	return backend.NewTexture(id, label, n, &texture{raw: raw}), nil
}

// DestroyTexture frees t once no pending command references it.
func (b *Backend) DestroyTexture(t *backend.Texture) {
	if t == nil {
		return
	}
	n, ok := t.Native().(*texture)
	if !ok || n == nil {
		return
	}
	t.SetNative(nil)
	b.stats.texturesDestroyed.Add(1)
	device := b.device
	b.deferRelease(func() {
		if n.view != nil {
			device.DestroyTextureView(n.view)
		}
		device.DestroyTexture(n.raw)
	})
}

// textureView returns the default view of t, creating it on first use.
func (b *Backend) textureView(t *backend.Texture) (hal.TextureView, error) {
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
	view, err := b.device.CreateTextureView(n.raw, &hal.TextureViewDescriptor{
		Label:           t.Label() + " view",
		Format:          desc.Format,
		Dimension:       dim,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   desc.MipCount,
		ArrayLayerCount: desc.Layers,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create view of %q: %w", t.Label(), err)
	}
	n.view = view
	return view, nil
}

func rawTexture(t *backend.Texture) hal.Texture {
	if t == nil {
		return nil
	}
	if n, ok := t.Native().(*texture); ok && n != nil {
		return n.raw
	}
	return nil
}

// CreateBuffer allocates a buffer with the usage recorded in desc.
func (b *Backend) CreateBuffer(label string, desc gpucore.BufferDesc) (*backend.Buffer, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("native: %s: %w", label, err)
	}
	usage := desc.Usage | desc.Kind.DefaultUsage()
	raw, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  desc.Size,
		Usage: usage,
	})
	if err != nil {
		return nil, allocErr("buffer", label, err)
	}
	b.stats.buffersCreated.Add(1)
	b.log().Debug("native: buffer created", "label", label, "key", desc.Key(), "usage", usage)
	desc.Usage = usage
	id := gpucore.BufferID(b.nextID.Add(1))
	return backend.NewBuffer(id, label, desc, raw), nil
}

// DestroyBuffer frees buf and forgets its views.
func (b *Backend) DestroyBuffer(buf *backend.Buffer) {
	raw := rawBuffer(buf)
	if raw == nil {
		return
	}
	buf.DropViews()
	buf.SetNative(nil)
	b.stats.buffersDestroyed.Add(1)
	device := b.device
	b.deferRelease(func() { device.DestroyBuffer(raw) })
}

func rawBuffer(buf *backend.Buffer) hal.Buffer {
	if buf == nil {
		return nil
	}
	raw, _ := buf.Native().(hal.Buffer)
	return raw
}

// CreateBufferView returns a typed view aliasing buf. The caller caches
// it on the buffer.
func (b *Backend) CreateBufferView(buf *backend.Buffer, format gputypes.TextureFormat) (*backend.BufferView, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	raw := rawBuffer(buf)
	if raw == nil {
		return nil, backend.ErrNilResource
	}
	if format == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("native: view of %q: undefined format", buf.Label())
	}
	texel := uint64(gpucore.BytesPerPixel(format))
	if buf.Desc().Size%texel != 0 {
		return nil, fmt.Errorf("native: view of %q: size %d is not a multiple of %v texels",
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
		return fmt.Errorf("native: write %d bytes at %d overruns %q (%d bytes)",
			len(data), offset, buf.Label(), buf.Desc().Size)
	}
	if err := b.queue.WriteBuffer(raw, offset, data); err != nil {
		return fmt.Errorf("native: write %q: %w", buf.Label(), err)
	}
	return nil
}
