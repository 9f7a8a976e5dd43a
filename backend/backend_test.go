package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

// stubBackend satisfies Backend for registry tests; only Name and Init
// are callable.
type stubBackend struct {
	Backend
	name    string
	initErr error
	inits   *int
}

func (s *stubBackend) Name() string { return s.name }
func (s *stubBackend) Init() error {
	if s.inits != nil {
		*s.inits++
	}
	return s.initErr
}

func TestRegistryPriority(t *testing.T) {
	Register(BackendWGPU, func() Backend { return &stubBackend{name: BackendWGPU} })
	defer Unregister(BackendWGPU)

	if got := Default(); got == nil || got.Name() != BackendWGPU {
		t.Fatalf("Default() = %v, want wgpu", got)
	}

	Register(BackendNative, func() Backend { return &stubBackend{name: BackendNative} })
	defer Unregister(BackendNative)

	if got := DefaultName(); got != BackendNative {
		t.Errorf("DefaultName() = %q, want %q", got, BackendNative)
	}
	if !IsRegistered(BackendWGPU) || !IsRegistered(BackendNative) {
		t.Error("IsRegistered() = false for registered backend")
	}
	names := Available()
	slices.Sort(names)
	if !slices.Equal(names, []string{BackendNative, BackendWGPU}) {
		t.Errorf("Available() = %v", names)
	}
}

func TestRegistryOpen(t *testing.T) {
	inits := 0
	Register("test-ok", func() Backend { return &stubBackend{name: "test-ok", inits: &inits} })
	defer Unregister("test-ok")
	bad := errors.New("no device")
	Register("test-bad", func() Backend { return &stubBackend{name: "test-bad", initErr: bad} })
	defer Unregister("test-bad")

	b, err := Open("test-ok")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if b.Name() != "test-ok" || inits != 1 {
		t.Errorf("Open() = %q after %d inits", b.Name(), inits)
	}
	if _, err := Open("test-bad"); !errors.Is(err, bad) {
		t.Errorf("Open(test-bad) error = %v, want %v", err, bad)
	}
	if _, err := Open("missing"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(missing) error = %v", err)
	}
	if Get("missing") != nil {
		t.Error("Get(missing) != nil")
	}
}

func TestBufferViewsCache(t *testing.T) {
	b := NewBuffer(1, "tri_data", gpucore.BufferDesc{Size: 1024, Kind: gpucore.BufferStorage}, nil)
	if b.View(gputypes.TextureFormatRGBA32Float) != nil {
		t.Fatal("new buffer has a cached view")
	}
	v := NewBufferView(b, gputypes.TextureFormatRGBA32Float, nil)
	b.SetView(v)
	if got := b.View(gputypes.TextureFormatRGBA32Float); got != v {
		t.Errorf("View() = %p, want %p", got, v)
	}
	if v.Elements != 1024/16 {
		t.Errorf("Elements = %d, want %d", v.Elements, 1024/16)
	}
	b.DropViews()
	if len(b.Views()) != 0 {
		t.Error("DropViews() left views behind")
	}
}

func TestTextureState(t *testing.T) {
	tex := NewTexture(7, "depth", gpucore.TextureDesc{Width: 4, Height: 4, Format: gputypes.TextureFormatDepth32Float}, nil)
	if !tex.Fresh() {
		t.Error("new texture is not fresh")
	}
	if tex.State() != gpucore.StateUndefined {
		t.Errorf("initial State() = %v", tex.State())
	}
	tex.SetState(gpucore.StateDepthWrite)
	tex.MarkUsed()
	if tex.State() != gpucore.StateDepthWrite || tex.Fresh() {
		t.Errorf("State() = %v, Fresh() = %v", tex.State(), tex.Fresh())
	}
	if tex.Desc().MipCount != 1 {
		t.Errorf("descriptor not normalized: %+v", tex.Desc())
	}
}

func TestBarrierString(t *testing.T) {
	tex := NewTexture(1, "color", gpucore.TextureDesc{Width: 1, Height: 1, Format: gputypes.TextureFormatRGBA8Unorm}, nil)
	tr := Transition{Texture: tex, Old: gpucore.StateRenderTarget, New: gpucore.StateShaderResource}
	if got := tr.String(); got != "color: RenderTarget -> ShaderResource" {
		t.Errorf("String() = %q", got)
	}
	if !(Barrier{}).Empty() {
		t.Error("zero Barrier is not empty")
	}
}

func TestBindingLayoutEntry(t *testing.T) {
	tests := []struct {
		layout BindingLayout
		check  func(gputypes.BindGroupLayoutEntry) bool
	}{
		{
			BindingLayout{Slot: 0, Kind: BindSampledTexture, Format: gputypes.TextureFormatDepth32Float},
			func(e gputypes.BindGroupLayoutEntry) bool {
				return e.Texture != nil && e.Texture.SampleType == gputypes.TextureSampleTypeDepth
			},
		},
		{
			BindingLayout{Slot: 1, Kind: BindSampledTexture, Format: gputypes.TextureFormatRGBA32Float},
			func(e gputypes.BindGroupLayoutEntry) bool {
				return e.Texture != nil && e.Texture.SampleType == gputypes.TextureSampleTypeUnfilterableFloat
			},
		},
		{
			BindingLayout{Slot: 2, Kind: BindStorageTexture, Format: gputypes.TextureFormatRGBA16Float},
			func(e gputypes.BindGroupLayoutEntry) bool {
				return e.StorageTexture != nil && e.StorageTexture.Format == gputypes.TextureFormatRGBA16Float
			},
		},
		{
			BindingLayout{Slot: 3, Kind: BindTexelBuffer},
			func(e gputypes.BindGroupLayoutEntry) bool {
				return e.Buffer != nil && e.Buffer.Type == gputypes.BufferBindingTypeReadOnlyStorage
			},
		},
		{
			BindingLayout{Slot: 4, Kind: BindUniformBuffer},
			func(e gputypes.BindGroupLayoutEntry) bool {
				return e.Buffer != nil && e.Buffer.Type == gputypes.BufferBindingTypeUniform
			},
		},
	}
	for _, tt := range tests {
		e := tt.layout.Entry()
		if e.Binding != tt.layout.Slot || !tt.check(e) {
			t.Errorf("%v slot %d: Entry() = %+v", tt.layout.Kind, tt.layout.Slot, e)
		}
	}
}
