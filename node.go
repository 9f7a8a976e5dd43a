package framegraph

import (
	"context"
	"time"

	"github.com/gogpu/framegraph/gpucore"
)

// NodeState is the per-frame lifecycle of a node.
type NodeState uint8

// Node states.
const (
	// NodeUnconfigured nodes were added but have no executor yet.
	NodeUnconfigured NodeState = iota
	// NodeDeclared nodes finished Setup and wait for Execute.
	NodeDeclared
	// NodeExecuted nodes ran this frame.
	NodeExecuted
)

// String returns the state name.
func (s NodeState) String() string {
	switch s {
	case NodeUnconfigured:
		return "Unconfigured"
	case NodeDeclared:
		return "Declared"
	case NodeExecuted:
		return "Executed"
	}
	return "Unknown"
}

// ExecFunc is the body of a node. It runs once per frame, after the
// node's transitions were recorded.
type ExecFunc func(ctx context.Context, b *Builder) error

// access is one declared use of a resource by a node.
type access struct {
	typ    ResourceType
	index  uint16
	gen    uint16
	state  gpucore.State
	stages gpucore.StageBits

	// next is the following use of the same backing in compiled order.
	next *access
}

func (a *access) ref() ResourceRef {
	return ResourceRef{typ: a.typ, index: a.index, gen: a.gen}
}

func (a *access) same(r ResourceRef) bool {
	return a.typ == r.typ && a.index == r.index
}

// Node is one pass of a frame: a set of declared reads and writes plus the
// function that records its GPU work.
type Node struct {
	name  string
	index int
	b     *Builder

	inputs  []access
	outputs []access

	exec      ExecFunc
	state     NodeState
	keepAlive bool

	// deps are indices of nodes that must run before this one.
	deps []int
	live bool

	elapsed time.Duration
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Index returns the declaration position of the node.
func (n *Node) Index() int { return n.index }

// State returns the node's lifecycle state.
func (n *Node) State() NodeState { return n.state }

// Culled reports whether Compile dropped the node.
func (n *Node) Culled() bool { return n.b.phase >= PhaseCompiled && !n.live }

// Elapsed returns the CPU time the node's executor took this frame.
func (n *Node) Elapsed() time.Duration { return n.elapsed }

// Inputs returns refs for every declared read.
func (n *Node) Inputs() []ResourceRef {
	out := make([]ResourceRef, len(n.inputs))
	for i := range n.inputs {
		out[i] = n.inputs[i].ref()
	}
	return out
}

// Outputs returns refs for every declared write.
func (n *Node) Outputs() []ResourceRef {
	out := make([]ResourceRef, len(n.outputs))
	for i := range n.outputs {
		out[i] = n.outputs[i].ref()
	}
	return out
}

// SetExecutor sets the node body and marks the node declared.
func (n *Node) SetExecutor(fn ExecFunc) {
	n.exec = fn
	if n.state == NodeUnconfigured {
		n.state = NodeDeclared
	}
}

// KeepAlive protects the node from culling even if nothing consumes its
// outputs.
func (n *Node) KeepAlive() { n.keepAlive = true }

func (n *Node) input(r ResourceRef) *access {
	for i := range n.inputs {
		if n.inputs[i].same(r) {
			return &n.inputs[i]
		}
	}
	return nil
}

func (n *Node) output(r ResourceRef) *access {
	for i := range n.outputs {
		if n.outputs[i].same(r) {
			return &n.outputs[i]
		}
	}
	return nil
}

// AddTransferInput declares a buffer read as a copy source.
func (n *Node) AddTransferInput(r ResourceRef) ResourceRef {
	return n.b.ReadBufferRef(r, gpucore.StateCopySrc, gpucore.StageTransfer, n)
}

// AddTransferOutput declares a buffer written as a copy destination.
func (n *Node) AddTransferOutput(name string, desc *gpucore.BufferDesc) ResourceRef {
	return n.b.WriteBuffer(name, desc, gpucore.StateCopyDst, gpucore.StageTransfer, n)
}

// AddTransferImageInput declares a texture read as a copy source.
func (n *Node) AddTransferImageInput(r ResourceRef) ResourceRef {
	return n.b.ReadTextureRef(r, gpucore.StateCopySrc, gpucore.StageTransfer, n)
}

// AddTransferImageOutput declares a texture written as a copy destination.
func (n *Node) AddTransferImageOutput(name string, desc *gpucore.TextureDesc) ResourceRef {
	return n.b.WriteTexture(name, desc, gpucore.StateCopyDst, gpucore.StageTransfer, n)
}

// AddStorageReadonlyInput declares a storage buffer read by shaders in stages.
func (n *Node) AddStorageReadonlyInput(r ResourceRef, stages gpucore.StageBits) ResourceRef {
	return n.b.ReadBufferRef(r, gpucore.StateShaderResource, stages, n)
}

// AddStorageOutput declares a storage buffer written by shaders in stages.
func (n *Node) AddStorageOutput(name string, desc *gpucore.BufferDesc, stages gpucore.StageBits) ResourceRef {
	return n.b.WriteBuffer(name, desc, gpucore.StateUnorderedAccess, stages, n)
}

// AddStorageImageOutput declares a storage texture written by shaders in stages.
func (n *Node) AddStorageImageOutput(name string, desc *gpucore.TextureDesc, stages gpucore.StageBits) ResourceRef {
	return n.b.WriteTexture(name, desc, gpucore.StateUnorderedAccess, stages, n)
}

// AddColorOutput declares a color attachment.
func (n *Node) AddColorOutput(name string, desc *gpucore.TextureDesc) ResourceRef {
	return n.b.WriteTexture(name, desc, gpucore.StateRenderTarget, gpucore.StageColorAttachment, n)
}

// AddDepthOutput declares a depth attachment that is written.
func (n *Node) AddDepthOutput(name string, desc *gpucore.TextureDesc) ResourceRef {
	return n.b.WriteTexture(name, desc, gpucore.StateDepthWrite, gpucore.StageDepthAttachment, n)
}

// AddUniformBufferInput declares a uniform buffer read in stages.
func (n *Node) AddUniformBufferInput(r ResourceRef, stages gpucore.StageBits) ResourceRef {
	return n.b.ReadBufferRef(r, gpucore.StateUniformBuffer, stages, n)
}

// AddTextureInput declares a sampled texture read in stages.
func (n *Node) AddTextureInput(r ResourceRef, stages gpucore.StageBits) ResourceRef {
	return n.b.ReadTextureRef(r, gpucore.StateShaderResource, stages, n)
}

// AddHistoryTextureInput declares a read of the previous frame's contents
// of the texture called name.
func (n *Node) AddHistoryTextureInput(name string, stages gpucore.StageBits) ResourceRef {
	return n.b.ReadHistoryTexture(name, gpucore.StateShaderResource, stages, n)
}

// AddCustomTextureInput declares a texture read in an arbitrary state.
func (n *Node) AddCustomTextureInput(r ResourceRef, state gpucore.State, stages gpucore.StageBits) ResourceRef {
	return n.b.ReadTextureRef(r, state, stages, n)
}

// AddVertexBufferInput declares a vertex buffer read.
func (n *Node) AddVertexBufferInput(r ResourceRef) ResourceRef {
	return n.b.ReadBufferRef(r, gpucore.StateVertexBuffer, gpucore.StageVertexInput, n)
}

// AddIndexBufferInput declares an index buffer read.
func (n *Node) AddIndexBufferInput(r ResourceRef) ResourceRef {
	return n.b.ReadBufferRef(r, gpucore.StateIndexBuffer, gpucore.StageVertexInput, n)
}

// AddIndirectBufferInput declares a buffer of indirect draw or dispatch
// arguments.
func (n *Node) AddIndirectBufferInput(r ResourceRef) ResourceRef {
	return n.b.ReadBufferRef(r, gpucore.StateIndirectArgument, gpucore.StageDrawIndirect, n)
}

// AddASBuildReadonlyInput declares a buffer read by an acceleration
// structure build.
func (n *Node) AddASBuildReadonlyInput(r ResourceRef) ResourceRef {
	return n.b.ReadBufferRef(r, gpucore.StateBuildASRead, gpucore.StageAccStructureBuild, n)
}

// AddASBuildOutput declares a buffer written by an acceleration structure
// build.
func (n *Node) AddASBuildOutput(name string, desc *gpucore.BufferDesc) ResourceRef {
	return n.b.WriteBuffer(name, desc, gpucore.StateBuildASWrite, gpucore.StageAccStructureBuild, n)
}
