package backend

import (
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

// Texture is a device texture allocation.
type Texture struct {
	id     gpucore.TextureID
	label  string
	desc   gpucore.TextureDesc
	state  gpucore.State
	fresh  bool
	native any
}

// NewTexture wraps a backend-native texture object. Backends call this
// from CreateTexture; the descriptor is stored normalized.
func NewTexture(id gpucore.TextureID, label string, desc gpucore.TextureDesc, native any) *Texture {
	return &Texture{id: id, label: label, desc: desc.Normalized(), fresh: true, native: native}
}

// ID returns the backend-unique texture ID.
func (t *Texture) ID() gpucore.TextureID { return t.id }

// Label returns the debug label the texture was created with.
func (t *Texture) Label() string { return t.label }

// Desc returns the shape and usage the texture was created with.
func (t *Texture) Desc() gpucore.TextureDesc { return t.desc }

// State returns the last state the frame graph transitioned t into.
func (t *Texture) State() gpucore.State { return t.state }

// SetState records a new synchronization state. Only the frame graph
// calls this, after the corresponding barrier was recorded.
func (t *Texture) SetState(s gpucore.State) { t.state = s }

// Fresh reports whether the texture has not been cleared or written since
// its device allocation.
func (t *Texture) Fresh() bool { return t.fresh }

// MarkUsed clears the fresh flag.
func (t *Texture) MarkUsed() { t.fresh = false }

// SizeBytes estimates the device memory held by the texture.
func (t *Texture) SizeBytes() uint64 { return t.desc.SizeBytes() }

// Native returns the backend-specific object.
func (t *Texture) Native() any { return t.native }

// SetNative replaces the backend-specific object. Used by backends that
// derive secondary objects (views) lazily.
func (t *Texture) SetNative(n any) { t.native = n }

// Buffer is a device buffer allocation.
type Buffer struct {
	id     gpucore.BufferID
	label  string
	desc   gpucore.BufferDesc
	state  gpucore.State
	fresh  bool
	native any
	views  map[gputypes.TextureFormat]*BufferView
}

// NewBuffer wraps a backend-native buffer object.
func NewBuffer(id gpucore.BufferID, label string, desc gpucore.BufferDesc, native any) *Buffer {
	return &Buffer{id: id, label: label, desc: desc, fresh: true, native: native}
}

// ID returns the backend-unique buffer ID.
func (b *Buffer) ID() gpucore.BufferID { return b.id }

// Label returns the debug label the buffer was created with.
func (b *Buffer) Label() string { return b.label }

// Desc returns the shape and usage the buffer was created with.
func (b *Buffer) Desc() gpucore.BufferDesc { return b.desc }

// State returns the last state the frame graph transitioned b into.
func (b *Buffer) State() gpucore.State { return b.state }

// SetState records a new synchronization state.
func (b *Buffer) SetState(s gpucore.State) { b.state = s }

// Fresh reports whether the buffer has not been cleared or written since
// its device allocation.
func (b *Buffer) Fresh() bool { return b.fresh }

// MarkUsed clears the fresh flag.
func (b *Buffer) MarkUsed() { b.fresh = false }

// SizeBytes returns the buffer size.
func (b *Buffer) SizeBytes() uint64 { return b.desc.Size }

// Native returns the backend-specific object.
func (b *Buffer) Native() any { return b.native }

// SetNative replaces the backend-specific object. Backends set nil on
// destroy.
func (b *Buffer) SetNative(n any) { b.native = n }

// View returns the cached typed view for format, or nil.
func (b *Buffer) View(format gputypes.TextureFormat) *BufferView {
	return b.views[format]
}

// SetView caches v on the buffer.
func (b *Buffer) SetView(v *BufferView) {
	if b.views == nil {
		b.views = make(map[gputypes.TextureFormat]*BufferView)
	}
	b.views[v.Format] = v
}

// Views returns every cached view. The order is unspecified.
func (b *Buffer) Views() []*BufferView {
	out := make([]*BufferView, 0, len(b.views))
	for _, v := range b.views {
		out = append(out, v)
	}
	return out
}

// DropViews forgets every cached view.
func (b *Buffer) DropViews() { b.views = nil }

// BufferView is a typed texel view over a raw buffer.
type BufferView struct {
	Buffer *Buffer
	Format gputypes.TextureFormat
	// Elements is the number of texels the view covers.
	Elements uint64
	native   any
}

// NewBufferView wraps a backend-native view object.
func NewBufferView(b *Buffer, format gputypes.TextureFormat, native any) *BufferView {
	return &BufferView{
		Buffer:   b,
		Format:   format,
		Elements: b.desc.Size / uint64(gpucore.BytesPerPixel(format)),
		native:   native,
	}
}

// Native returns the backend-specific object.
func (v *BufferView) Native() any { return v.native }
