package backend

import (
	"image/color"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/shader"
	"github.com/gogpu/gputypes"
)

// BindingKind is the shader-visible type of a binding slot.
type BindingKind uint8

// Binding kinds.
const (
	BindSampledTexture BindingKind = iota + 1
	BindStorageTexture
	BindUniformBuffer
	BindStorageBuffer
	BindReadOnlyStorageBuffer
	// BindTexelBuffer binds a typed BufferView.
	BindTexelBuffer
)

// String returns the binding kind name.
func (k BindingKind) String() string {
	switch k {
	case BindSampledTexture:
		return "sampled-texture"
	case BindStorageTexture:
		return "storage-texture"
	case BindUniformBuffer:
		return "uniform-buffer"
	case BindStorageBuffer:
		return "storage-buffer"
	case BindReadOnlyStorageBuffer:
		return "ro-storage-buffer"
	case BindTexelBuffer:
		return "texel-buffer"
	}
	return "unknown"
}

// BindingLayout describes one slot of a pipeline's resource layout.
type BindingLayout struct {
	Slot       uint32
	Kind       BindingKind
	Visibility gputypes.ShaderStages
	// Format is required for storage textures.
	Format gputypes.TextureFormat
}

// Entry returns the bind group layout entry of the slot. Texel buffers
// bind as read-only storage buffers.
func (l BindingLayout) Entry() gputypes.BindGroupLayoutEntry {
	e := gputypes.BindGroupLayoutEntry{Binding: l.Slot, Visibility: l.Visibility}
	switch l.Kind {
	case BindSampledTexture:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    sampleType(l.Format),
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case BindStorageTexture:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        l.Format,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case BindUniformBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case BindStorageBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	case BindReadOnlyStorageBuffer, BindTexelBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
	}
	return e
}

func sampleType(f gputypes.TextureFormat) gputypes.TextureSampleType {
	switch {
	case f.HasDepth():
		return gputypes.TextureSampleTypeDepth
	case f == gputypes.TextureFormatR32Uint:
		return gputypes.TextureSampleTypeUint
	case f == gputypes.TextureFormatR32Float, f == gputypes.TextureFormatRG32Float,
		f == gputypes.TextureFormatRGBA32Float:
		return gputypes.TextureSampleTypeUnfilterableFloat
	}
	return gputypes.TextureSampleTypeFloat
}

// Binding is one entry of the binding list a pass supplies per dispatch
// or draw. Set the field matching Kind.
type Binding struct {
	Slot    uint32
	Kind    BindingKind
	Texture *Texture
	Buffer  *Buffer
	View    *BufferView
	Offset  uint64
	// Size of zero binds the rest of the buffer.
	Size uint64
}

// TextureBinding binds t at slot with the given kind.
func TextureBinding(slot uint32, kind BindingKind, t *Texture) Binding {
	return Binding{Slot: slot, Kind: kind, Texture: t}
}

// BufferBinding binds the whole of b at slot with the given kind.
func BufferBinding(slot uint32, kind BindingKind, b *Buffer) Binding {
	return Binding{Slot: slot, Kind: kind, Buffer: b}
}

// ViewBinding binds the typed view v at slot.
func ViewBinding(slot uint32, v *BufferView) Binding {
	return Binding{Slot: slot, Kind: BindTexelBuffer, View: v}
}

// Resource returns the binding's backing label, for diagnostics.
func (b Binding) Resource() string {
	switch {
	case b.Texture != nil:
		return b.Texture.Label()
	case b.Buffer != nil:
		return b.Buffer.Label()
	case b.View != nil && b.View.Buffer != nil:
		return b.View.Buffer.Label()
	}
	return "<nil>"
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label      string
	Program    *shader.Program
	EntryPoint string
	Layout     []BindingLayout
}

// RenderPipelineDesc describes a raster pipeline.
type RenderPipelineDesc struct {
	Label         string
	Program       *shader.Program
	VertexEntry   string
	FragmentEntry string
	ColorFormats  []gputypes.TextureFormat
	DepthFormat   gputypes.TextureFormat
	SampleCount   uint32
	Raster        gpucore.RasterState
	Layout        []BindingLayout
}

// PipelineKind distinguishes compute from render pipelines.
type PipelineKind uint8

// Pipeline kinds.
const (
	PipelineCompute PipelineKind = iota + 1
	PipelineRender
)

// String returns "compute" or "render".
func (k PipelineKind) String() string {
	switch k {
	case PipelineCompute:
		return "compute"
	case PipelineRender:
		return "render"
	}
	return "unknown"
}

// Pipeline is a compiled compute or render pipeline.
type Pipeline struct {
	ID     gpucore.PipelineID
	Label  string
	Kind   PipelineKind
	Layout []BindingLayout
	native any
}

// NewPipeline wraps a backend-native pipeline object.
func NewPipeline(id gpucore.PipelineID, label string, kind PipelineKind, layout []BindingLayout, native any) *Pipeline {
	return &Pipeline{ID: id, Label: label, Kind: kind, Layout: layout, native: native}
}

// Native returns the backend-specific object.
func (p *Pipeline) Native() any { return p.native }

// Attachment is one render target attachment of a draw.
type Attachment struct {
	Texture *Texture
	// Clear selects LoadOpClear; otherwise the previous contents are loaded.
	Clear      bool
	ClearColor color.RGBA
	ClearDepth float32
	// ReadOnly marks a depth attachment used for testing only.
	ReadOnly bool
}

// RenderTarget lists the attachments of a draw.
type RenderTarget struct {
	Color []Attachment
	Depth *Attachment
}

// Extent returns the size of the first attachment.
func (rt RenderTarget) Extent() (width, height uint32) {
	if len(rt.Color) > 0 && rt.Color[0].Texture != nil {
		d := rt.Color[0].Texture.Desc()
		return d.Width, d.Height
	}
	if rt.Depth != nil && rt.Depth.Texture != nil {
		d := rt.Depth.Texture.Desc()
		return d.Width, d.Height
	}
	return 0, 0
}
