package gpucore

import (
	"fmt"
	"image/color"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/colornames"
)

// TextureDesc is the declared shape of a texture resource.
type TextureDesc struct {
	Width  uint32
	Height uint32
	// Layers is the array layer count. Zero means 1.
	Layers uint32
	// MipCount is the number of mip levels. Zero means 1.
	MipCount uint32
	// Samples is the MSAA sample count. Zero means 1.
	Samples uint32
	Format  gputypes.TextureFormat

	// Usage lists usage flags the caller needs beyond those derived from
	// declared states (e.g. CopySrc for readback).
	Usage gputypes.TextureUsage

	// FallbackColor is the color a freshly allocated texture is cleared to
	// before its first use. The zero value clears to transparent black.
	FallbackColor color.RGBA
}

// TextureKey identifies interchangeable texture shapes.
type TextureKey struct {
	Format                               gputypes.TextureFormat
	Width, Height, Layers, Mips, Samples uint32
}

// String formats the key as "RGBA8Unorm 256x256x1 mips=1 samples=1".
func (k TextureKey) String() string {
	return fmt.Sprintf("%v %dx%dx%d mips=%d samples=%d", k.Format, k.Width, k.Height, k.Layers, k.Mips, k.Samples)
}

// Normalized returns a copy with zero counts replaced by 1.
func (d TextureDesc) Normalized() TextureDesc {
	if d.Layers == 0 {
		d.Layers = 1
	}
	if d.MipCount == 0 {
		d.MipCount = 1
	}
	if d.Samples == 0 {
		d.Samples = 1
	}
	return d
}

// Key returns the pooling key of the descriptor. Usage and fallback color
// are not part of the key.
func (d TextureDesc) Key() TextureKey {
	n := d.Normalized()
	return TextureKey{
		Format:  n.Format,
		Width:   n.Width,
		Height:  n.Height,
		Layers:  n.Layers,
		Mips:    n.MipCount,
		Samples: n.Samples,
	}
}

// SameShape reports whether two descriptors have interchangeable shapes.
func (d TextureDesc) SameShape(o TextureDesc) bool { return d.Key() == o.Key() }

// SizeBytes estimates the memory footprint of a texture with this shape,
// including the full mip chain.
func (d TextureDesc) SizeBytes() uint64 {
	n := d.Normalized()
	bpp := uint64(BytesPerPixel(n.Format))
	var total uint64
	w, h := uint64(n.Width), uint64(n.Height)
	for range n.MipCount {
		total += w * h * bpp
		w = max(w/2, 1)
		h = max(h/2, 1)
	}
	return total * uint64(n.Layers) * uint64(n.Samples)
}

// Validate checks the descriptor for values no backend can create.
func (d TextureDesc) Validate() error {
	if d.Width == 0 || d.Height == 0 {
		return fmt.Errorf("texture desc: zero extent %dx%d", d.Width, d.Height)
	}
	if d.Format == gputypes.TextureFormatUndefined {
		return fmt.Errorf("texture desc: undefined format")
	}
	return nil
}

// BytesPerPixel returns the size of one texel of format f, or 4 for
// formats not listed.
func BytesPerPixel(f gputypes.TextureFormat) uint32 {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatStencil8:
		return 1
	case gputypes.TextureFormatDepth16Unorm, gputypes.TextureFormatR16Float:
		return 2
	case gputypes.TextureFormatRG16Float, gputypes.TextureFormatR32Float,
		gputypes.TextureFormatR32Uint, gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureFormatRGBA8UnormSrgb, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth32Float:
		return 4
	case gputypes.TextureFormatDepth32FloatStencil8, gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatRG32Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	}
	return 4
}

// texUsagePerState maps each state to the device usage it requires.
var texUsagePerState = [stateCount]gputypes.TextureUsage{
	gputypes.TextureUsageNone,             // Undefined
	gputypes.TextureUsageNone,             // Discarded
	gputypes.TextureUsageNone,             // VertexBuffer
	gputypes.TextureUsageNone,             // UniformBuffer
	gputypes.TextureUsageNone,             // IndexBuffer
	gputypes.TextureUsageRenderAttachment, // RenderTarget
	gputypes.TextureUsageStorageBinding,   // UnorderedAccess
	gputypes.TextureUsageRenderAttachment, // DepthRead
	gputypes.TextureUsageRenderAttachment, // DepthWrite
	gputypes.TextureUsageRenderAttachment, // StencilTestDepthFetch
	gputypes.TextureUsageTextureBinding,   // ShaderResource
	gputypes.TextureUsageNone,             // IndirectArgument
	gputypes.TextureUsageCopyDst,          // CopyDst
	gputypes.TextureUsageCopySrc,          // CopySrc
	gputypes.TextureUsageNone,             // BuildASRead
	gputypes.TextureUsageNone,             // BuildASWrite
	gputypes.TextureUsageNone,             // RayTracing
}

// TexUsageFromState returns the texture usage needed for state s.
func TexUsageFromState(s State) gputypes.TextureUsage {
	if s < stateCount {
		return texUsagePerState[s]
	}
	return gputypes.TextureUsageNone
}

// DefaultFallbackColor is used when a descriptor leaves FallbackColor unset
// and the caller asks for a visible debug color.
var DefaultFallbackColor = colornames.Magenta

// BufferKind is the usage class of a buffer.
type BufferKind uint8

// Buffer kinds.
const (
	BufferUniform BufferKind = iota + 1
	BufferStorage
	BufferIndirect
	BufferVertex
)

// String returns the kind name.
func (k BufferKind) String() string {
	switch k {
	case BufferUniform:
		return "uniform"
	case BufferStorage:
		return "storage"
	case BufferIndirect:
		return "indirect"
	case BufferVertex:
		return "vertex"
	}
	return "unknown"
}

// DefaultUsage returns the device usage every buffer of this kind gets.
func (k BufferKind) DefaultUsage() gputypes.BufferUsage {
	switch k {
	case BufferUniform:
		return gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	case BufferStorage:
		return gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	case BufferIndirect:
		return gputypes.BufferUsageIndirect | gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	case BufferVertex:
		return gputypes.BufferUsageVertex | gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst
	}
	return gputypes.BufferUsageCopyDst
}

// BufferDesc is the declared shape of a buffer resource.
type BufferDesc struct {
	Size uint64
	// Stride is the element size for structured buffers. Zero means raw.
	Stride uint32
	Kind   BufferKind
	Usage  gputypes.BufferUsage
}

// BufferKey identifies interchangeable buffer shapes.
type BufferKey struct {
	Kind BufferKind
	Size uint64
}

// String formats the key as "storage 4096B".
func (k BufferKey) String() string { return fmt.Sprintf("%v %dB", k.Kind, k.Size) }

// Key returns the pooling key of the descriptor.
func (d BufferDesc) Key() BufferKey { return BufferKey{Kind: d.Kind, Size: d.Size} }

// SameShape reports whether two descriptors have interchangeable shapes.
func (d BufferDesc) SameShape(o BufferDesc) bool { return d.Key() == o.Key() }

// Validate checks the descriptor for values no backend can create.
func (d BufferDesc) Validate() error {
	if d.Size == 0 {
		return fmt.Errorf("buffer desc: zero size")
	}
	if d.Kind == 0 {
		return fmt.Errorf("buffer desc: missing kind")
	}
	return nil
}

// BufUsageFromState returns the buffer usage needed for state s.
func BufUsageFromState(s State) gputypes.BufferUsage {
	switch s {
	case StateVertexBuffer:
		return gputypes.BufferUsageVertex
	case StateUniformBuffer:
		return gputypes.BufferUsageUniform
	case StateIndexBuffer:
		return gputypes.BufferUsageIndex
	case StateUnorderedAccess, StateShaderResource, StateBuildASRead,
		StateBuildASWrite, StateRayTracing:
		return gputypes.BufferUsageStorage
	case StateIndirectArgument:
		return gputypes.BufferUsageIndirect
	case StateCopyDst:
		return gputypes.BufferUsageCopyDst
	case StateCopySrc:
		return gputypes.BufferUsageCopySrc
	}
	return gputypes.BufferUsageNone
}
