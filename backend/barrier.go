package backend

import (
	"fmt"

	"github.com/gogpu/framegraph/gpucore"
)

// Transition moves one backing from Old to New state. Exactly one of
// Texture and Buffer is set.
type Transition struct {
	Texture *Texture
	Buffer  *Buffer
	Old     gpucore.State
	New     gpucore.State
}

// String formats the transition as "label: Old -> New".
func (t Transition) String() string {
	return fmt.Sprintf("%s: %v -> %v", t.label(), t.Old, t.New)
}

func (t Transition) label() string {
	switch {
	case t.Texture != nil:
		return t.Texture.Label()
	case t.Buffer != nil:
		return t.Buffer.Label()
	}
	return "<nil>"
}

// Barrier is the merged set of transitions one pass needs before it runs.
type Barrier struct {
	// Label is the name of the pass the barrier precedes.
	Label string
	// SrcStages are the stages that must finish before the barrier.
	SrcStages gpucore.StageBits
	// DstStages are the stages that wait on the barrier.
	DstStages   gpucore.StageBits
	Transitions []Transition
}

// Empty reports whether the barrier carries no transitions.
func (b Barrier) Empty() bool { return len(b.Transitions) == 0 }
