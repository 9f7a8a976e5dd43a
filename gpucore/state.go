package gpucore

import "strings"

// State is the synchronization state of a resource: the access pattern the
// most recent (or the requested) use puts it in.
type State uint8

// Resource states.
const (
	StateUndefined State = iota
	StateDiscarded
	StateVertexBuffer
	StateUniformBuffer
	StateIndexBuffer
	StateRenderTarget
	StateUnorderedAccess
	StateDepthRead
	StateDepthWrite
	StateStencilTestDepthFetch
	StateShaderResource
	StateIndirectArgument
	StateCopyDst
	StateCopySrc
	StateBuildASRead
	StateBuildASWrite
	StateRayTracing

	stateCount
)

var stateNames = [stateCount]string{
	"Undefined",
	"Discarded",
	"VertexBuffer",
	"UniformBuffer",
	"IndexBuffer",
	"RenderTarget",
	"UnorderedAccess",
	"DepthRead",
	"DepthWrite",
	"StencilTestDepthFetch",
	"ShaderResource",
	"IndirectArgument",
	"CopyDst",
	"CopySrc",
	"BuildASRead",
	"BuildASWrite",
	"RayTracing",
}

// String returns the state name.
func (s State) String() string {
	if s < stateCount {
		return stateNames[s]
	}
	return "Unknown"
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool { return s < stateCount }

// IsRW reports whether the state both reads and writes the resource.
// Consecutive accesses in such a state still need a barrier between them.
func (s State) IsRW() bool {
	return s == StateUnorderedAccess || s == StateCopyDst || s == StateBuildASWrite
}

// IsWrite reports whether an access in this state can modify the resource.
func (s State) IsWrite() bool {
	switch s {
	case StateRenderTarget, StateUnorderedAccess, StateDepthWrite,
		StateCopyDst, StateBuildASWrite, StateDiscarded:
		return true
	}
	return false
}

// StageBits is a mask of pipeline stages touching a resource.
type StageBits uint16

// Pipeline stages.
const (
	StageVertexInput StageBits = 1 << iota
	StageVertexShader
	StageTessCtrlShader
	StageTessEvalShader
	StageGeometryShader
	StageFragmentShader
	StageComputeShader
	StageRayTracingShader
	StageColorAttachment
	StageDepthAttachment
	StageDrawIndirect
	StageTransfer
	StageAccStructureBuild

	// StagesNone is the empty mask.
	StagesNone StageBits = 0
	// StagesAll covers every stage.
	StagesAll StageBits = 1<<13 - 1
	// StagesAllShaders covers every programmable stage that can bind resources.
	StagesAllShaders = StageVertexShader | StageFragmentShader | StageComputeShader | StageRayTracingShader
)

var stageNames = [...]string{
	"VertexInput",
	"VertexShader",
	"TessCtrlShader",
	"TessEvalShader",
	"GeometryShader",
	"FragmentShader",
	"ComputeShader",
	"RayTracingShader",
	"ColorAttachment",
	"DepthAttachment",
	"DrawIndirect",
	"Transfer",
	"AccStructureBuild",
}

// Has reports whether every bit of other is set in s.
func (s StageBits) Has(other StageBits) bool { return s&other == other }

// String returns the set stages joined by '|'.
func (s StageBits) String() string {
	if s == 0 {
		return "None"
	}
	var sb strings.Builder
	for i, name := range stageNames {
		if s&(1<<i) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(name)
	}
	return sb.String()
}

var stagesPerState = [stateCount]StageBits{
	StagesNone,
	StagesAll,
	StageVertexInput,
	StagesAllShaders,
	StageVertexInput,
	StageColorAttachment,
	StagesAllShaders,
	StageDepthAttachment,
	StageDepthAttachment,
	StageDepthAttachment | StageFragmentShader,
	StagesAllShaders,
	StageDrawIndirect,
	StageTransfer,
	StageTransfer,
	StageAccStructureBuild,
	StageAccStructureBuild,
	StageRayTracingShader,
}

// StageBitsForState returns every stage that may access a resource in state s.
func StageBitsForState(s State) StageBits {
	if s < stateCount {
		return stagesPerState[s]
	}
	return StagesNone
}
