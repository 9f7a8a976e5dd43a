package gpucore

// Resource IDs
//
// These opaque IDs identify backing objects created by a backend. IDs are
// unique per backend instance and never reused.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// ProgramID is an opaque handle to a loaded shader program.
type ProgramID uint64

// PipelineID is an opaque handle to a compute or render pipeline.
type PipelineID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// ResourceKind distinguishes textures from buffers.
type ResourceKind uint8

const (
	// KindTexture identifies a texture resource.
	KindTexture ResourceKind = iota + 1
	// KindBuffer identifies a buffer resource.
	KindBuffer
)

// String returns "texture" or "buffer".
func (k ResourceKind) String() string {
	switch k {
	case KindTexture:
		return "texture"
	case KindBuffer:
		return "buffer"
	default:
		return "none"
	}
}
