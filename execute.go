package framegraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/pool"
)

// TotalTimingName names the Timings entry that sums the whole frame.
const TotalTimingName = "GRAPH TOTAL"

// NodeTiming is the CPU time one node's executor took.
type NodeTiming struct {
	Name    string
	Elapsed time.Duration
}

// Execute runs every live node in compiled order. Before each node it
// records one barrier moving every resource the node touches into its
// declared state. Node errors are logged and joined; the remaining nodes
// still run.
func (b *Builder) Execute(ctx context.Context) error {
	switch b.phase {
	case PhaseCompiled:
	case PhaseDeclaring:
		return ErrNotCompiled
	case PhaseEnded:
		return ErrFrameEnded
	default:
		return fmt.Errorf("%w: execute in phase %v", ErrNotCompiled, b.phase)
	}

	b.phase = PhaseExecuting
	defer func() {
		b.current = nil
		b.phase = PhaseExecuted
	}()

	b.linkUses()

	start := time.Now()
	var errs []error
	for _, i := range b.order {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n := b.nodes[i]
		if err := b.transition(n); err != nil {
			Logger().Error("framegraph: barrier failed", "frame", b.frame, "node", n.name, "err", err)
			errs = append(errs, fmt.Errorf("framegraph: barrier before %q: %w", n.name, err))
		}
		if err := b.run(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	b.total = time.Since(start)
	return errors.Join(errs...)
}

// useKey identifies a backing through the record that owns it.
type useKey struct {
	typ   ResourceType
	index uint16
}

// linkUses chains every access to the next access of the same backing in
// compiled order, and resets the stage masks to the backing state.
func (b *Builder) linkUses() {
	for _, t := range b.textures {
		t.usedStages = gpucore.StageBitsForState(t.State())
	}
	for _, buf := range b.buffers {
		buf.usedStages = gpucore.StageBitsForState(buf.State())
	}

	last := make(map[useKey]*access)
	link := func(a *access) {
		a.next = nil
		k := b.useKeyOf(a)
		if prev := last[k]; prev != nil {
			prev.next = a
		}
		last[k] = a
	}
	for _, i := range b.order {
		n := b.nodes[i]
		for k := range n.inputs {
			link(&n.inputs[k])
		}
		for k := range n.outputs {
			link(&n.outputs[k])
		}
	}
}

func (b *Builder) useKeyOf(a *access) useKey {
	if a.typ == ResourceTexture {
		return useKey{typ: a.typ, index: b.textures[a.index].rootRecord().index}
	}
	return useKey{typ: a.typ, index: b.buffers[a.index].rootRecord().index}
}

// rootOf returns the bookkeeping and backing of the record that owns the
// backing a refers to.
func (b *Builder) rootOf(a *access) (*resource, *backend.Texture, *backend.Buffer) {
	if a.typ == ResourceTexture {
		t := b.textures[a.index].rootRecord()
		return &t.resource, t.backing, nil
	}
	buf := b.buffers[a.index].rootRecord()
	return &buf.resource, nil, buf.backing
}

// transition records the barrier node n needs before it runs.
func (b *Builder) transition(n *Node) error {
	barrier := backend.Barrier{Label: n.name}
	seen := make(map[useKey]bool, len(n.inputs)+len(n.outputs))

	visit := func(a *access) {
		res, tex, buf := b.rootOf(a)
		if tex == nil && buf == nil {
			return
		}
		k := b.useKeyOf(a)
		if seen[k] {
			res.usedStages |= a.stages
			return
		}
		seen[k] = true

		var cur gpucore.State
		if tex != nil {
			cur = tex.State()
		} else {
			cur = buf.State()
		}
		if cur == a.state && !a.state.IsRW() {
			res.usedStages |= a.stages
			return
		}

		dst := a.stages
		if !a.state.IsRW() {
			for nx := a.next; nx != nil && nx.state == a.state; nx = nx.next {
				dst |= nx.stages
			}
		}
		barrier.SrcStages |= res.usedStages
		barrier.DstStages |= dst
		res.usedStages = a.stages
		barrier.Transitions = append(barrier.Transitions,
			backend.Transition{Texture: tex, Buffer: buf, Old: cur, New: a.state})
	}
	for k := range n.inputs {
		visit(&n.inputs[k])
	}
	for k := range n.outputs {
		visit(&n.outputs[k])
	}

	if barrier.Empty() {
		return nil
	}
	if err := b.g.be.Transition(barrier); err != nil {
		return err
	}
	b.barriers++
	for _, tr := range barrier.Transitions {
		if tr.Texture != nil {
			tr.Texture.SetState(tr.New)
		} else {
			tr.Buffer.SetState(tr.New)
		}
	}
	return nil
}

// run calls the node body and advances the executed write counts.
func (b *Builder) run(ctx context.Context, n *Node) error {
	b.current = n
	start := time.Now()
	var err error
	if n.exec != nil {
		err = n.exec(ctx, b)
	}
	n.elapsed = time.Since(start)
	b.current = nil
	n.state = NodeExecuted

	for k := range n.outputs {
		a := &n.outputs[k]
		res, tex, buf := b.recordOf(a)
		res.execWrites = max(res.execWrites, a.gen)
		if tex != nil {
			tex.MarkUsed()
		}
		if buf != nil {
			buf.MarkUsed()
		}
	}

	if err != nil {
		Logger().Error("framegraph: node failed", "frame", b.frame, "node", n.name, "err", err)
		return fmt.Errorf("framegraph: node %q: %w", n.name, err)
	}
	return nil
}

func (b *Builder) recordOf(a *access) (*resource, *backend.Texture, *backend.Buffer) {
	if a.typ == ResourceTexture {
		t := b.textures[a.index]
		return &t.resource, t.Backing(), nil
	}
	buf := b.buffers[a.index]
	return &buf.resource, nil, buf.Backing()
}

// Timings returns the CPU time of every executed node in compiled order,
// followed by a TotalTimingName entry for the whole Execute call.
func (b *Builder) Timings() []NodeTiming {
	out := make([]NodeTiming, 0, len(b.order)+1)
	for _, i := range b.order {
		n := b.nodes[i]
		if n.state == NodeExecuted {
			out = append(out, NodeTiming{Name: n.name, Elapsed: n.elapsed})
		}
	}
	return append(out, NodeTiming{Name: TotalTimingName, Elapsed: b.total})
}

// Barriers returns the number of barrier batches recorded this frame,
// including the clear barrier.
func (b *Builder) Barriers() int { return b.barriers }

// Stalls returns the number of device waits BufferView forced this frame.
func (b *Builder) Stalls() int { return b.stalls }

// EndFrame returns transient backings to the pool, swaps history pairs
// written this frame and closes the backend frame. The builder is unusable
// afterwards.
func (b *Builder) EndFrame() error {
	if b.phase == PhaseEnded {
		return ErrFrameEnded
	}
	executed := b.phase == PhaseExecuted

	for _, t := range b.textures {
		b.releaseTexture(t)
	}
	for _, buf := range b.buffers {
		b.releaseBuffer(buf)
	}

	maxIdle := uint64(pool.DefaultMaxIdleFrames)
	if n := b.g.opts.poolConfig.MaxIdleFrames; n > 0 {
		maxIdle = uint64(n)
	}
	for name, p := range b.g.history {
		if executed && p.written == b.frame {
			p.swap()
		}
		if b.frame > p.read && b.frame-p.read > maxIdle {
			Logger().Debug("framegraph: history dropped", "name", name, "idle", b.frame-p.read)
			p.destroy(b.g.be)
			delete(b.g.history, name)
		}
	}

	b.g.pool.Tick()
	b.phase = PhaseEnded
	b.g.frame++

	Logger().Debug("framegraph: frame ended",
		"frame", b.frame,
		"barriers", b.barriers,
		"stalls", b.stalls,
		"total", b.total,
		"pool", b.g.pool.Stats().String())

	if err := b.g.be.EndFrame(); err != nil {
		return fmt.Errorf("framegraph: end frame %d: %w", b.frame, err)
	}
	return nil
}
