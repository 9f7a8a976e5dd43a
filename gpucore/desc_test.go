package gpucore

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestTextureDescKeyNormalizes(t *testing.T) {
	a := TextureDesc{Width: 64, Height: 32, Format: gputypes.TextureFormatRGBA8Unorm}
	b := TextureDesc{Width: 64, Height: 32, Format: gputypes.TextureFormatRGBA8Unorm, Layers: 1, MipCount: 1, Samples: 1,
		Usage: gputypes.TextureUsageCopySrc}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %v vs %v", a.Key(), b.Key())
	}
	if !a.SameShape(b) {
		t.Error("SameShape() = false for descriptors differing only in usage")
	}
	c := b
	c.Width = 128
	if a.SameShape(c) {
		t.Error("SameShape() = true for different widths")
	}
}

func TestTextureDescSizeBytes(t *testing.T) {
	d := TextureDesc{Width: 4, Height: 4, MipCount: 3, Format: gputypes.TextureFormatRGBA8Unorm}
	// 4x4 + 2x2 + 1x1 texels, 4 bytes each
	if got, want := d.SizeBytes(), uint64((16+4+1)*4); got != want {
		t.Errorf("SizeBytes() = %d, want %d", got, want)
	}
	depth := TextureDesc{Width: 512, Height: 512, Format: gputypes.TextureFormatDepth32Float}
	if got := depth.SizeBytes(); got != 512*512*4 {
		t.Errorf("depth SizeBytes() = %d", got)
	}
}

func TestTextureDescValidate(t *testing.T) {
	if err := (TextureDesc{Format: gputypes.TextureFormatRGBA8Unorm}).Validate(); err == nil {
		t.Error("Validate() accepted zero extent")
	}
	if err := (TextureDesc{Width: 1, Height: 1}).Validate(); err == nil {
		t.Error("Validate() accepted undefined format")
	}
	if err := (TextureDesc{Width: 1, Height: 1, Format: gputypes.TextureFormatR32Float}).Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestBufferDesc(t *testing.T) {
	a := BufferDesc{Size: 4096, Kind: BufferStorage, Stride: 16}
	b := BufferDesc{Size: 4096, Kind: BufferStorage}
	if !a.SameShape(b) {
		t.Error("stride should not affect shape")
	}
	if a.SameShape(BufferDesc{Size: 4096, Kind: BufferIndirect}) {
		t.Error("kind should affect shape")
	}
	if err := (BufferDesc{Kind: BufferUniform}).Validate(); err == nil {
		t.Error("Validate() accepted zero size")
	}
	if got := a.Key().String(); got != "storage 4096B" {
		t.Errorf("Key().String() = %q", got)
	}
}

func TestBufUsageFromState(t *testing.T) {
	if got := BufUsageFromState(StateIndirectArgument); got != gputypes.BufferUsageIndirect {
		t.Errorf("IndirectArgument usage = %v", got)
	}
	if got := BufUsageFromState(StateUnorderedAccess); got != gputypes.BufferUsageStorage {
		t.Errorf("UnorderedAccess usage = %v", got)
	}
	if got := BufUsageFromState(StateUndefined); got != gputypes.BufferUsageNone {
		t.Errorf("Undefined usage = %v", got)
	}
	if !BufferIndirect.DefaultUsage().Contains(gputypes.BufferUsageIndirect) {
		t.Error("indirect default usage lacks Indirect")
	}
}
