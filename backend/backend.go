package backend

import (
	"context"
	"errors"
	"image/color"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrOutOfMemory is returned when the device cannot satisfy an allocation.
	// The frame graph treats it as fatal.
	ErrOutOfMemory = errors.New("backend: out of device memory")

	// ErrUnsupported is returned for operations the active API cannot express.
	ErrUnsupported = errors.New("backend: unsupported operation")

	// ErrNilResource is returned when a command references a nil backing.
	ErrNilResource = errors.New("backend: nil resource")
)

// Kind tells how a backend synchronizes resource accesses.
type Kind uint8

const (
	// KindExplicit backends emit barriers and layout transitions.
	KindExplicit Kind = iota + 1
	// KindImplicit backends rely on the API's internal hazard tracking.
	KindImplicit
)

// String returns "explicit" or "implicit".
func (k Kind) String() string {
	switch k {
	case KindExplicit:
		return "explicit"
	case KindImplicit:
		return "implicit"
	}
	return "unknown"
}

// Backend is the device-facing interface the frame graph and its passes use.
//
// All methods except Stats are called from the goroutine that owns the
// frame; implementations need not be safe for concurrent use.
type Backend interface {
	// Name returns the backend identifier (e.g., "native", "wgpu").
	Name() string

	// Kind reports the synchronization model of the backend.
	Kind() Kind

	// Init opens the device. It must be called before any other method.
	Init() error

	// Close releases all backend resources.
	Close()

	// CreateTexture allocates device memory for a texture.
	// A failure wrapping ErrOutOfMemory is fatal for the caller.
	CreateTexture(label string, desc gpucore.TextureDesc) (*Texture, error)

	// DestroyTexture frees the device memory of t.
	DestroyTexture(t *Texture)

	// CreateBuffer allocates device memory for a buffer.
	CreateBuffer(label string, desc gpucore.BufferDesc) (*Buffer, error)

	// DestroyBuffer frees the device memory of b and its views.
	DestroyBuffer(b *Buffer)

	// CreateBufferView creates a typed texel view over a raw buffer.
	CreateBufferView(b *Buffer, format gputypes.TextureFormat) (*BufferView, error)

	// BeginFrame opens the frame's command stream.
	BeginFrame() error

	// EndFrame closes and submits the frame's command stream.
	EndFrame() error

	// SubmitAndWait submits everything recorded so far, blocks until the
	// device is idle and reopens the command stream.
	SubmitAndWait(ctx context.Context) error

	// Transition records one barrier batch.
	Transition(b Barrier) error

	// ClearTexture fills t with c. t must be in StateCopyDst.
	ClearTexture(t *Texture, c color.RGBA) error

	// ClearBuffer zero-fills b. b must be in StateCopyDst.
	ClearBuffer(b *Buffer) error

	// WriteBuffer uploads data at offset through the queue.
	WriteBuffer(b *Buffer, offset uint64, data []byte) error

	// CreateComputePipeline builds a compute pipeline from a loaded program.
	CreateComputePipeline(desc ComputePipelineDesc) (*Pipeline, error)

	// CreateRenderPipeline builds a raster pipeline from a loaded program.
	CreateRenderPipeline(desc RenderPipelineDesc) (*Pipeline, error)

	// DispatchCompute records a compute dispatch.
	DispatchCompute(p *Pipeline, bindings []Binding, groups [3]uint32) error

	// DispatchComputeIndirect records a compute dispatch whose group
	// counts are read from args at offset.
	DispatchComputeIndirect(p *Pipeline, bindings []Binding, args *Buffer, offset uint64) error

	// Draw records a non-indexed draw into target.
	Draw(p *Pipeline, target RenderTarget, bindings []Binding, vertexCount, instanceCount uint32) error

	// Stats returns cumulative counters.
	Stats() Stats
}

// Stats holds cumulative backend counters.
type Stats struct {
	TexturesCreated   uint64
	TexturesDestroyed uint64
	BuffersCreated    uint64
	BuffersDestroyed  uint64
	ViewsCreated      uint64
	Barriers          uint64
	Transitions       uint64
	Dispatches        uint64
	Draws             uint64
	Submits           uint64
	Stalls            uint64
}
