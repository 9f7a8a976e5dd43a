package native

import (
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

// ImageLayout is the memory layout a texture must be in for an access.
type ImageLayout uint8

// Image layouts.
const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
)

var layoutNames = [...]string{
	"Undefined",
	"General",
	"ColorAttachment",
	"DepthStencilAttachment",
	"DepthStencilReadOnly",
	"ShaderReadOnly",
	"TransferSrc",
	"TransferDst",
}

func (l ImageLayout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return "Unknown"
}

// AccessFlags is a mask of memory access types.
type AccessFlags uint32

// Access types.
const (
	AccessIndirectCommandRead AccessFlags = 1 << iota
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessTransferRead
	AccessTransferWrite
	AccessAccelerationStructureRead
	AccessAccelerationStructureWrite

	AccessNone AccessFlags = 0
)

// writeAccess covers every access type that modifies memory.
const writeAccess = AccessShaderWrite | AccessColorAttachmentWrite |
	AccessDepthStencilWrite | AccessTransferWrite | AccessAccelerationStructureWrite

// HasWrite reports whether any write access is set.
func (a AccessFlags) HasWrite() bool { return a&writeAccess != 0 }

// PipelineStages is a mask of device pipeline stages.
type PipelineStages uint32

// Pipeline stages.
const (
	StageTopOfPipe PipelineStages = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageVertexShader
	StageTessellationControl
	StageTessellationEvaluation
	StageGeometryShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
	StageRayTracingShader
	StageAccelerationStructureBuild
)

// Access is the layout, access and stage triple of one side of a barrier.
type Access struct {
	Layout ImageLayout
	Access AccessFlags
	Stages PipelineStages
}

type stateSync struct {
	layout ImageLayout
	access AccessFlags
}

var syncPerState = [...]stateSync{
	gpucore.StateUndefined:             {LayoutUndefined, AccessNone},
	gpucore.StateDiscarded:             {LayoutUndefined, AccessNone},
	gpucore.StateVertexBuffer:          {LayoutUndefined, AccessVertexAttributeRead},
	gpucore.StateUniformBuffer:         {LayoutUndefined, AccessUniformRead},
	gpucore.StateIndexBuffer:           {LayoutUndefined, AccessIndexRead},
	gpucore.StateRenderTarget:          {LayoutColorAttachment, AccessColorAttachmentRead | AccessColorAttachmentWrite},
	gpucore.StateUnorderedAccess:       {LayoutGeneral, AccessShaderRead | AccessShaderWrite},
	gpucore.StateDepthRead:             {LayoutDepthStencilReadOnly, AccessDepthStencilRead},
	gpucore.StateDepthWrite:            {LayoutDepthStencilAttachment, AccessDepthStencilRead | AccessDepthStencilWrite},
	gpucore.StateStencilTestDepthFetch: {LayoutDepthStencilReadOnly, AccessDepthStencilRead | AccessShaderRead},
	gpucore.StateShaderResource:        {LayoutShaderReadOnly, AccessShaderRead},
	gpucore.StateIndirectArgument:      {LayoutUndefined, AccessIndirectCommandRead},
	gpucore.StateCopyDst:               {LayoutTransferDst, AccessTransferWrite},
	gpucore.StateCopySrc:               {LayoutTransferSrc, AccessTransferRead},
	gpucore.StateBuildASRead:           {LayoutGeneral, AccessAccelerationStructureRead},
	gpucore.StateBuildASWrite:          {LayoutGeneral, AccessAccelerationStructureWrite},
	gpucore.StateRayTracing:            {LayoutShaderReadOnly, AccessShaderRead | AccessAccelerationStructureRead},
}

func syncOf(s gpucore.State) stateSync {
	if int(s) < len(syncPerState) {
		return syncPerState[s]
	}
	return stateSync{}
}

// LayoutFor returns the image layout a texture needs in state s.
func LayoutFor(s gpucore.State) ImageLayout { return syncOf(s).layout }

// AccessFor returns the access mask of state s.
func AccessFor(s gpucore.State) AccessFlags { return syncOf(s).access }

// StagesFor converts a stage mask into device pipeline stages. An empty
// source mask becomes TopOfPipe and an empty destination mask BottomOfPipe.
func StagesFor(bits gpucore.StageBits, dst bool) PipelineStages {
	var out PipelineStages
	if bits&gpucore.StageVertexInput != 0 {
		out |= StageVertexInput
	}
	if bits&gpucore.StageVertexShader != 0 {
		out |= StageVertexShader
	}
	if bits&gpucore.StageTessCtrlShader != 0 {
		out |= StageTessellationControl
	}
	if bits&gpucore.StageTessEvalShader != 0 {
		out |= StageTessellationEvaluation
	}
	if bits&gpucore.StageGeometryShader != 0 {
		out |= StageGeometryShader
	}
	if bits&gpucore.StageFragmentShader != 0 {
		out |= StageFragmentShader
	}
	if bits&gpucore.StageComputeShader != 0 {
		out |= StageComputeShader
	}
	if bits&gpucore.StageRayTracingShader != 0 {
		out |= StageRayTracingShader
	}
	if bits&gpucore.StageColorAttachment != 0 {
		out |= StageColorAttachmentOutput
	}
	if bits&gpucore.StageDepthAttachment != 0 {
		out |= StageEarlyFragmentTests | StageLateFragmentTests
	}
	if bits&gpucore.StageDrawIndirect != 0 {
		out |= StageDrawIndirect
	}
	if bits&gpucore.StageTransfer != 0 {
		out |= StageTransfer
	}
	if bits&gpucore.StageAccStructureBuild != 0 {
		out |= StageAccelerationStructureBuild
	}
	if out == 0 {
		if dst {
			return StageBottomOfPipe
		}
		return StageTopOfPipe
	}
	return out
}

// textureUsage is the HAL usage a texture has while in state s.
func textureUsage(s gpucore.State) gputypes.TextureUsage {
	if s == gpucore.StateStencilTestDepthFetch {
		return gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	}
	return gpucore.TexUsageFromState(s)
}

// bufferUsage is the HAL usage a buffer has while in state s.
func bufferUsage(s gpucore.State) gputypes.BufferUsage {
	return gpucore.BufUsageFromState(s)
}
