package framegraph

import (
	"math"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

// ownership tells who owns a record's backing.
type ownership uint8

const (
	// ownedTransient backings come from the pool and go back at EndFrame.
	ownedTransient ownership = iota
	// ownedHistory backings are one half of a history pair in the graph store.
	ownedHistory
	// ownedPersistent backings live in the graph's persistent store.
	ownedPersistent
	// ownedExternal backings belong to the caller.
	ownedExternal
)

func (o ownership) String() string {
	switch o {
	case ownedTransient:
		return "graph"
	case ownedHistory:
		return "history"
	case ownedPersistent:
		return "persistent"
	case ownedExternal:
		return "external"
	}
	return "unknown"
}

// span is the range of compiled node positions that touch a resource.
type span struct {
	firstWrite, lastWrite int
	firstRead, lastRead   int
}

func newSpan() span {
	return span{firstWrite: math.MaxInt, lastWrite: -1, firstRead: math.MaxInt, lastRead: -1}
}

func (s span) hasWriter() bool { return s.firstWrite <= s.lastWrite }
func (s span) hasReader() bool { return s.firstRead <= s.lastRead }
func (s span) used() bool      { return s.hasWriter() || s.hasReader() }

// canAlias is false for resources read before their first write in the
// frame: their contents come from outside the frame.
func (s span) canAlias() bool {
	return !(s.hasReader() && s.hasWriter() && s.firstRead <= s.firstWrite) &&
		!(s.hasReader() && !s.hasWriter())
}

func (s span) first() int {
	f := math.MaxInt
	if s.hasWriter() {
		f = min(f, s.firstWrite)
	}
	if s.hasReader() {
		f = min(f, s.firstRead)
	}
	return f
}

func (s span) last() int {
	l := 0
	if s.hasWriter() {
		l = max(l, s.lastWrite)
	}
	if s.hasReader() {
		l = max(l, s.lastRead)
	}
	return l
}

// disjoint reports whether two lifetimes can share one backing.
func disjoint(a, b span) bool {
	if !a.used() || !b.used() || !a.canAlias() || !b.canAlias() {
		return false
	}
	return a.last() < b.first() || b.last() < a.first()
}

// slot locates one access: node index and position in its input or
// output list.
type slot struct {
	node   int
	access int
}

// resource holds the bookkeeping shared by texture and buffer records.
type resource struct {
	name  string
	index uint16
	owner ownership

	// writeCount is the number of writes declared so far.
	writeCount uint16
	// execWrites is the number of writes executed so far.
	execWrites uint16

	// usedStages are the stages that touched the backing since its last
	// transition. Only meaningful on alias roots.
	usedStages gpucore.StageBits

	// historyOf is the main record of a "[Previous]" record; historyPrev
	// is the "[Previous]" record of a main record. -1 when unset.
	historyOf   int
	historyPrev int

	readers []slot
	writers []slot

	lifetime span
	live     bool
}

func newResource(name string, index uint16) resource {
	return resource{
		name:        name,
		index:       index,
		historyOf:   -1,
		historyPrev: -1,
		lifetime:    newSpan(),
	}
}

// aliasable reports whether the record may share or donate a backing.
func (r *resource) aliasable() bool {
	return r.owner == ownedTransient && r.historyOf < 0 && r.historyPrev < 0
}

// Texture is the per-frame record of a named texture resource.
type Texture struct {
	resource
	desc    gpucore.TextureDesc
	usage   gputypes.TextureUsage
	backing *backend.Texture
	root    *Texture
}

// Name returns the resource name.
func (t *Texture) Name() string { return t.name }

// Desc returns the declared shape.
func (t *Texture) Desc() gpucore.TextureDesc { return t.desc }

// Usage returns the device usage accumulated over every declared access.
func (t *Texture) Usage() gputypes.TextureUsage { return t.usage }

// Backing returns the device texture bound to the record, which for an
// aliased record is the backing of the record it aliases. It is nil until
// the first write allocates.
func (t *Texture) Backing() *backend.Texture {
	if t.root != nil {
		return t.root.backing
	}
	return t.backing
}

// State returns the synchronization state of the backing.
func (t *Texture) State() gpucore.State {
	if b := t.Backing(); b != nil {
		return b.State()
	}
	return gpucore.StateUndefined
}

// Stages returns the stages that touched the backing since its last
// transition.
func (t *Texture) Stages() gpucore.StageBits {
	if t.root != nil {
		return t.root.usedStages
	}
	return t.usedStages
}

// Generation returns the number of writes declared on the resource.
func (t *Texture) Generation() int { return int(t.writeCount) }

// External reports whether the backing is owned by the caller.
func (t *Texture) External() bool { return t.owner == ownedExternal }

// History reports whether the record is one half of a history pair.
func (t *Texture) History() bool { return t.owner == ownedHistory }

// AliasOf returns the name of the record whose backing t shares, or "".
func (t *Texture) AliasOf() string {
	if t.root != nil {
		return t.root.name
	}
	return ""
}

func (t *Texture) rootRecord() *Texture {
	if t.root != nil {
		return t.root
	}
	return t
}

// Buffer is the per-frame record of a named buffer resource.
type Buffer struct {
	resource
	desc    gpucore.BufferDesc
	usage   gputypes.BufferUsage
	backing *backend.Buffer
	root    *Buffer
}

// Name returns the resource name.
func (b *Buffer) Name() string { return b.name }

// Desc returns the declared shape.
func (b *Buffer) Desc() gpucore.BufferDesc { return b.desc }

// Usage returns the device usage accumulated over every declared access.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// Backing returns the device buffer bound to the record.
func (b *Buffer) Backing() *backend.Buffer {
	if b.root != nil {
		return b.root.backing
	}
	return b.backing
}

// State returns the synchronization state of the backing.
func (b *Buffer) State() gpucore.State {
	if bb := b.Backing(); bb != nil {
		return bb.State()
	}
	return gpucore.StateUndefined
}

// Stages returns the stages that touched the backing since its last
// transition.
func (b *Buffer) Stages() gpucore.StageBits {
	if b.root != nil {
		return b.root.usedStages
	}
	return b.usedStages
}

// Generation returns the number of writes declared on the resource.
func (b *Buffer) Generation() int { return int(b.writeCount) }

// External reports whether the backing is owned by the caller.
func (b *Buffer) External() bool { return b.owner == ownedExternal }

// AliasOf returns the name of the record whose backing b shares, or "".
func (b *Buffer) AliasOf() string {
	if b.root != nil {
		return b.root.name
	}
	return ""
}

func (b *Buffer) rootRecord() *Buffer {
	if b.root != nil {
		return b.root
	}
	return b
}
