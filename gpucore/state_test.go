package gpucore

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateUndefined, "Undefined"},
		{StateDepthWrite, "DepthWrite"},
		{StateShaderResource, "ShaderResource"},
		{StateRayTracing, "RayTracing"},
		{State(200), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestStateIsRW(t *testing.T) {
	rw := map[State]bool{
		StateUnorderedAccess: true,
		StateCopyDst:         true,
		StateBuildASWrite:    true,
	}
	for s := StateUndefined; s < stateCount; s++ {
		if got := s.IsRW(); got != rw[s] {
			t.Errorf("%v.IsRW() = %v, want %v", s, got, rw[s])
		}
	}
}

func TestStageBitsOrder(t *testing.T) {
	if StageVertexInput != 1 {
		t.Errorf("StageVertexInput = %d, want 1", StageVertexInput)
	}
	if StageAccStructureBuild != 1<<12 {
		t.Errorf("StageAccStructureBuild = %d, want %d", StageAccStructureBuild, 1<<12)
	}
	if StagesAll&StageTransfer == 0 {
		t.Error("StagesAll does not contain StageTransfer")
	}
}

func TestStageBitsString(t *testing.T) {
	if got := StagesNone.String(); got != "None" {
		t.Errorf("StagesNone.String() = %q", got)
	}
	got := (StageFragmentShader | StageComputeShader).String()
	if got != "FragmentShader|ComputeShader" {
		t.Errorf("String() = %q", got)
	}
}

func TestStageBitsForState(t *testing.T) {
	tests := []struct {
		s    State
		want StageBits
	}{
		{StateUndefined, StagesNone},
		{StateDiscarded, StagesAll},
		{StateDepthWrite, StageDepthAttachment},
		{StateStencilTestDepthFetch, StageDepthAttachment | StageFragmentShader},
		{StateRenderTarget, StageColorAttachment},
		{StateIndirectArgument, StageDrawIndirect},
		{StateCopySrc, StageTransfer},
		{StateShaderResource, StagesAllShaders},
	}
	for _, tt := range tests {
		if got := StageBitsForState(tt.s); got != tt.want {
			t.Errorf("StageBitsForState(%v) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestTexUsageFromState(t *testing.T) {
	tests := []struct {
		s    State
		want gputypes.TextureUsage
	}{
		{StateRenderTarget, gputypes.TextureUsageRenderAttachment},
		{StateDepthRead, gputypes.TextureUsageRenderAttachment},
		{StateDepthWrite, gputypes.TextureUsageRenderAttachment},
		{StateUnorderedAccess, gputypes.TextureUsageStorageBinding},
		{StateShaderResource, gputypes.TextureUsageTextureBinding},
		{StateCopyDst, gputypes.TextureUsageCopyDst},
		{StateCopySrc, gputypes.TextureUsageCopySrc},
		{StateIndirectArgument, gputypes.TextureUsageNone},
	}
	for _, tt := range tests {
		if got := TexUsageFromState(tt.s); got != tt.want {
			t.Errorf("TexUsageFromState(%v) = %v, want %v", tt.s, got, tt.want)
		}
	}
}
