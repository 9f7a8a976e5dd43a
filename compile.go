package framegraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

// ErrCycle is returned by Compile when node dependencies form a cycle.
// The frame then runs in declaration order.
var ErrCycle = errors.New("framegraph: dependency cycle")

// Compile freezes the frame: it derives node dependencies, culls nodes
// that do not contribute to outputs, orders the live nodes, settles the
// usage and backing of every record and clears fresh backings.
//
// With no outputs every node is live. Otherwise the live set is the nodes
// writing outputs, nodes marked KeepAlive, nodes writing external,
// persistent or history resources, and everything they depend on.
func (b *Builder) Compile(outputs ...ResourceRef) error {
	switch b.phase {
	case PhaseDeclaring:
	case PhaseEnded:
		return ErrFrameEnded
	default:
		return fmt.Errorf("%w: compile in phase %v", ErrNotDeclaring, b.phase)
	}

	b.linkHistory()
	b.buildDeps()
	b.cull(outputs)
	err := b.schedule()
	b.accumulate()
	b.bindHistory()
	if b.g.opts.aliasing {
		b.aliasTextures()
		b.aliasBuffers()
	}
	b.ensureUsage()
	if b.g.opts.clearOnAlloc {
		if cerr := b.clearFresh(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}

	b.report = b.buildReport()
	if l := Logger(); l.Enabled(context.Background(), slog.LevelDebug) {
		l.Debug("framegraph: compiled",
			"frame", b.frame,
			"nodes", len(b.nodes),
			"live", len(b.order),
			"order", strings.Join(b.Order(), " > "),
			"memory", b.report.String())
	}
	b.phase = PhaseCompiled
	return err
}

// linkHistory connects every "[Previous]" record to the record of the
// same name written this frame.
func (b *Builder) linkHistory() {
	for _, t := range b.textures {
		main, ok := strings.CutSuffix(t.name, historySuffix)
		if !ok || t.owner != ownedHistory {
			continue
		}
		mi, found := b.texByName[main]
		if !found || b.textures[mi].writeCount == 0 {
			b.declError(fmt.Errorf("%w: history of %q read but %q is not written this frame",
				ErrUnknownResource, main, main))
			continue
		}
		m := b.textures[mi]
		t.historyOf = int(mi)
		m.historyPrev = int(t.index)
		t.desc = m.desc
	}
}

// buildDeps records for every node the nodes that must run before it: the
// writer of each version it reads, and for each version it writes, the
// readers and the writer of the version before.
func (b *Builder) buildDeps() {
	for _, n := range b.nodes {
		n.deps = n.deps[:0]
		n.live = false
	}
	for _, n := range b.nodes {
		for i := range n.inputs {
			a := &n.inputs[i]
			if w := b.writerOf(a.typ, a.index, a.gen); w >= 0 && w != n.index {
				n.addDep(w)
			}
		}
		for i := range n.outputs {
			a := &n.outputs[i]
			prev := a.gen - 1
			for _, r := range b.readersOf(a.typ, a.index) {
				rn := b.nodes[r.node]
				if rn.index != n.index && rn.inputs[r.access].gen == prev {
					n.addDep(rn.index)
				}
			}
			if w := b.writerOf(a.typ, a.index, prev); w >= 0 && w != n.index {
				n.addDep(w)
			}
		}
	}
}

func (n *Node) addDep(i int) {
	if !slices.Contains(n.deps, i) {
		n.deps = append(n.deps, i)
	}
}

// writerOf returns the node producing version gen of a record, or -1.
func (b *Builder) writerOf(typ ResourceType, index, gen uint16) int {
	if gen == 0 {
		return -1
	}
	for _, s := range b.writersOf(typ, index) {
		if b.nodes[s.node].outputs[s.access].gen == gen {
			return s.node
		}
	}
	return -1
}

func (b *Builder) writersOf(typ ResourceType, index uint16) []slot {
	if typ == ResourceTexture {
		return b.textures[index].writers
	}
	return b.buffers[index].writers
}

func (b *Builder) readersOf(typ ResourceType, index uint16) []slot {
	if typ == ResourceTexture {
		return b.textures[index].readers
	}
	return b.buffers[index].readers
}

// sideEffect reports whether n writes something observed outside the frame.
func (b *Builder) sideEffect(n *Node) bool {
	for i := range n.outputs {
		a := &n.outputs[i]
		var owner ownership
		if a.typ == ResourceTexture {
			owner = b.textures[a.index].owner
		} else {
			owner = b.buffers[a.index].owner
		}
		if owner != ownedTransient {
			return true
		}
	}
	return false
}

// cull marks live nodes by walking dependencies back from the roots.
func (b *Builder) cull(outputs []ResourceRef) {
	if len(outputs) == 0 {
		for _, n := range b.nodes {
			n.live = true
		}
		return
	}
	var stack []int
	for _, r := range outputs {
		if !r.Valid() {
			b.declError(fmt.Errorf("%w: compile output %v", ErrInvalidRef, r))
			continue
		}
		if w := b.writerOf(r.typ, r.index, r.gen); w >= 0 {
			stack = append(stack, w)
		}
	}
	for _, n := range b.nodes {
		if n.keepAlive || b.sideEffect(n) {
			stack = append(stack, n.index)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := b.nodes[i]
		if n.live {
			continue
		}
		n.live = true
		stack = append(stack, n.deps...)
	}

	for _, n := range b.nodes {
		if !n.live {
			Logger().Debug("framegraph: node culled", "frame", b.frame, "node", n.name)
		}
	}
}

// schedule fixes the execution order of live nodes. Without reordering it
// is the declaration order among ready nodes. With reordering, among the
// ready nodes it picks the one furthest, counted backwards through the
// scheduled tail, from anything it depends on.
func (b *Builder) schedule() error {
	var live []int
	for _, n := range b.nodes {
		if n.live {
			live = append(live, n.index)
		}
	}

	var reach [][]bool
	if b.g.opts.reordering {
		reach = b.closure()
	}

	done := make([]bool, len(b.nodes))
	order := make([]int, 0, len(live))
	for len(order) < len(live) {
		best, bestScore := -1, -1
		for _, i := range live {
			if done[i] || !b.ready(i, done) {
				continue
			}
			if !b.g.opts.reordering {
				best = i
				break
			}
			score := overlap(order, i, reach)
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			b.order = live
			err := fmt.Errorf("%w: %d of %d live nodes scheduled", ErrCycle, len(order), len(live))
			Logger().Error("framegraph: falling back to declaration order", "frame", b.frame, "err", err)
			return err
		}
		done[best] = true
		order = append(order, best)
	}
	b.order = order
	return nil
}

// ready reports whether every live dependency of node i is scheduled.
func (b *Builder) ready(i int, done []bool) bool {
	for _, d := range b.nodes[i].deps {
		if b.nodes[d].live && !done[d] {
			return false
		}
	}
	return true
}

// overlap counts scheduled nodes, from the most recent backwards, that
// candidate does not depend on.
func overlap(order []int, candidate int, reach [][]bool) int {
	score := 0
	for k := len(order) - 1; k >= 0; k-- {
		if reach[candidate][order[k]] {
			break
		}
		score++
	}
	return score
}

// closure returns reach[i][j] == true when node i depends on node j,
// directly or transitively.
func (b *Builder) closure() [][]bool {
	reach := make([][]bool, len(b.nodes))
	var visit func(i int)
	visit = func(i int) {
		if reach[i] != nil {
			return
		}
		reach[i] = make([]bool, len(b.nodes))
		for _, d := range b.nodes[i].deps {
			reach[i][d] = true
			visit(d)
			for j, ok := range reach[d] {
				if ok {
					reach[i][j] = true
				}
			}
		}
	}
	for i := range b.nodes {
		visit(i)
	}
	return reach
}

// accumulate computes lifetimes and usage over live nodes, and releases
// the backings of records no live node touches.
func (b *Builder) accumulate() {
	for _, t := range b.textures {
		t.lifetime = newSpan()
		t.live = false
		t.usage = t.desc.Usage
	}
	for _, buf := range b.buffers {
		buf.lifetime = newSpan()
		buf.live = false
		buf.usage = buf.desc.Usage | buf.desc.Kind.DefaultUsage()
	}

	for pos, i := range b.order {
		n := b.nodes[i]
		for _, a := range n.inputs {
			b.touch(a, pos, false)
		}
		for _, a := range n.outputs {
			b.touch(a, pos, true)
		}
	}

	for _, t := range b.textures {
		if !t.live {
			b.releaseTexture(t)
			continue
		}
		if b.g.opts.clearOnAlloc && t.owner != ownedExternal {
			t.usage |= gputypes.TextureUsageCopyDst
		}
		b.g.learnTextureUsage(t.name, t.usage)
	}
	for _, buf := range b.buffers {
		if !buf.live {
			b.releaseBuffer(buf)
			continue
		}
		b.g.learnBufferUsage(buf.name, buf.usage)
	}
}

func (b *Builder) touch(a access, pos int, write bool) {
	var res *resource
	if a.typ == ResourceTexture {
		t := b.textures[a.index]
		t.usage |= gpucore.TexUsageFromState(a.state)
		res = &t.resource
	} else {
		buf := b.buffers[a.index]
		buf.usage |= gpucore.BufUsageFromState(a.state)
		res = &buf.resource
	}
	res.live = true
	if write {
		res.lifetime.firstWrite = min(res.lifetime.firstWrite, pos)
		res.lifetime.lastWrite = max(res.lifetime.lastWrite, pos)
	} else {
		res.lifetime.firstRead = min(res.lifetime.firstRead, pos)
		res.lifetime.lastRead = max(res.lifetime.lastRead, pos)
	}
}

// bindHistory binds both records of every history pair, creating or
// recreating the pair when the shape or usage changed.
func (b *Builder) bindHistory() {
	for _, prev := range b.textures {
		if prev.historyOf < 0 || !prev.live {
			continue
		}
		main := b.textures[prev.historyOf]
		usage := main.usage | prev.usage | gputypes.TextureUsageCopyDst

		p := b.g.history[main.name]
		if p != nil && (!p.desc.SameShape(main.desc) || !p.current().Desc().Usage.Contains(usage)) {
			Logger().Warn("framegraph: history recreated", "name", main.name, "shape", main.desc.Key().String())
			if main.backing == p.current() {
				main.backing = nil
			}
			p.destroy(b.g.be)
			delete(b.g.history, main.name)
			p = nil
		}
		if p == nil {
			desc := main.desc
			desc.Usage = usage
			np, err := newHistoryPair(b.g.be, main.name, desc, b.frame)
			if err != nil {
				if errors.Is(err, backend.ErrOutOfMemory) {
					panic(fmt.Errorf("framegraph: history %q: %w", main.name, err))
				}
				b.declError(fmt.Errorf("framegraph: history %q: %w", main.name, err))
				continue
			}
			p = np
			b.g.history[main.name] = p
		}

		if main.backing != p.current() {
			b.releaseTexture(main)
			main.backing = p.current()
			main.owner = ownedHistory
		}
		main.usage = usage
		prev.backing = p.previous()
		prev.desc = p.desc
		prev.usage = usage
		p.read = b.frame
	}

	for _, t := range b.textures {
		if t.owner == ownedHistory && t.historyOf < 0 && t.live {
			if p := b.g.history[t.name]; p != nil && t.backing == p.current() {
				p.written = b.frame
			}
		}
	}
}

// aliasTextures shares one backing between transient textures of the same
// shape whose lifetimes do not overlap.
func (b *Builder) aliasTextures() {
	cands := make([]*Texture, 0, len(b.textures))
	for _, t := range b.textures {
		if t.live && t.aliasable() && t.backing != nil && t.lifetime.canAlias() {
			cands = append(cands, t)
		}
	}
	slices.SortStableFunc(cands, func(x, y *Texture) int { return x.lifetime.first() - y.lifetime.first() })

	var chains [][]*Texture
	for _, t := range cands {
		placed := false
		for ci, chain := range chains {
			if chain[0].desc.Key() != t.desc.Key() || !disjointAll(t.lifetime, chain, func(m *Texture) span { return m.lifetime }) {
				continue
			}
			root := chain[0]
			b.releaseTexture(t)
			t.root = root
			root.usage |= t.usage
			chains[ci] = append(chain, t)
			placed = true
			Logger().Debug("framegraph: texture aliased", "name", t.name, "root", root.name)
			break
		}
		if !placed {
			chains = append(chains, []*Texture{t})
		}
	}
}

func (b *Builder) aliasBuffers() {
	cands := make([]*Buffer, 0, len(b.buffers))
	for _, buf := range b.buffers {
		if buf.live && buf.aliasable() && buf.backing != nil && buf.lifetime.canAlias() {
			cands = append(cands, buf)
		}
	}
	slices.SortStableFunc(cands, func(x, y *Buffer) int { return x.lifetime.first() - y.lifetime.first() })

	var chains [][]*Buffer
	for _, buf := range cands {
		placed := false
		for ci, chain := range chains {
			if chain[0].desc.Key() != buf.desc.Key() || !disjointAll(buf.lifetime, chain, func(m *Buffer) span { return m.lifetime }) {
				continue
			}
			root := chain[0]
			b.releaseBuffer(buf)
			buf.root = root
			root.usage |= buf.usage
			chains[ci] = append(chain, buf)
			placed = true
			Logger().Debug("framegraph: buffer aliased", "name", buf.name, "root", root.name)
			break
		}
		if !placed {
			chains = append(chains, []*Buffer{buf})
		}
	}
}

func disjointAll[T any](s span, members []T, lifetime func(T) span) bool {
	for _, m := range members {
		if !disjoint(s, lifetime(m)) {
			return false
		}
	}
	return true
}

// ensureUsage reallocates transient backings whose usage does not cover
// every declared access.
func (b *Builder) ensureUsage() {
	for _, t := range b.textures {
		if !t.live || t.root != nil {
			continue
		}
		if t.backing == nil {
			if t.owner == ownedTransient && t.writeCount > 0 {
				b.allocTexture(t, gpucore.StateUndefined)
			}
			continue
		}
		if t.backing.Desc().Usage.Contains(t.usage) {
			continue
		}
		if t.owner != ownedTransient {
			Logger().Warn("framegraph: backing lacks usage",
				"name", t.name, "owner", t.owner.String(), "have", t.backing.Desc().Usage, "need", t.usage)
			continue
		}
		Logger().Warn("framegraph: texture reallocated for usage", "name", t.name)
		b.releaseTexture(t)
		want := t.desc
		t.desc.Usage = t.usage
		b.allocTexture(t, gpucore.StateUndefined)
		t.desc = want
	}
	for _, buf := range b.buffers {
		if !buf.live || buf.root != nil {
			continue
		}
		if buf.backing == nil {
			if buf.owner == ownedTransient && buf.writeCount > 0 {
				b.allocBuffer(buf, gpucore.StateUndefined)
			}
			continue
		}
		if buf.backing.Desc().Usage.Contains(buf.usage) {
			continue
		}
		if buf.owner != ownedTransient {
			Logger().Warn("framegraph: backing lacks usage",
				"name", buf.name, "owner", buf.owner.String(), "have", buf.backing.Desc().Usage, "need", buf.usage)
			continue
		}
		Logger().Warn("framegraph: buffer reallocated for usage", "name", buf.name)
		b.releaseBuffer(buf)
		want := buf.desc
		buf.desc.Usage = buf.usage
		b.allocBuffer(buf, gpucore.StateUndefined)
		buf.desc = want
	}
}

// clearFresh moves every freshly allocated graph-owned backing to CopyDst
// in one barrier and clears it: textures to their fallback color, buffers
// to zero.
func (b *Builder) clearFresh() error {
	var (
		texs []*Texture
		bufs []*Buffer
	)
	barrier := backend.Barrier{Label: "clear", SrcStages: gpucore.StagesAll, DstStages: gpucore.StageTransfer}
	seenTex := make(map[*backend.Texture]bool)
	for _, t := range b.textures {
		bt := t.Backing()
		if !t.live || t.root != nil || bt == nil || !bt.Fresh() || t.owner == ownedExternal || seenTex[bt] {
			continue
		}
		seenTex[bt] = true
		texs = append(texs, t)
		barrier.Transitions = append(barrier.Transitions,
			backend.Transition{Texture: bt, Old: bt.State(), New: gpucore.StateCopyDst})
	}
	for _, buf := range b.buffers {
		bb := buf.Backing()
		if !buf.live || buf.root != nil || bb == nil || !bb.Fresh() || buf.owner == ownedExternal {
			continue
		}
		bufs = append(bufs, buf)
		barrier.Transitions = append(barrier.Transitions,
			backend.Transition{Buffer: bb, Old: bb.State(), New: gpucore.StateCopyDst})
	}
	if barrier.Empty() {
		return nil
	}

	if err := b.g.be.Transition(barrier); err != nil {
		return fmt.Errorf("framegraph: clear barrier: %w", err)
	}
	b.barriers++
	for _, tr := range barrier.Transitions {
		if tr.Texture != nil {
			tr.Texture.SetState(gpucore.StateCopyDst)
		} else {
			tr.Buffer.SetState(gpucore.StateCopyDst)
		}
	}

	var errs []error
	for _, t := range texs {
		if err := b.g.be.ClearTexture(t.Backing(), t.desc.FallbackColor); err != nil {
			errs = append(errs, fmt.Errorf("framegraph: clear %q: %w", t.name, err))
		}
		t.Backing().MarkUsed()
	}
	for _, buf := range bufs {
		if err := b.g.be.ClearBuffer(buf.Backing()); err != nil {
			errs = append(errs, fmt.Errorf("framegraph: clear %q: %w", buf.name, err))
		}
		buf.Backing().MarkUsed()
	}
	return errors.Join(errs...)
}
