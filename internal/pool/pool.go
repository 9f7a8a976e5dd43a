// Package pool keeps device textures and buffers alive across frames so
// that transient frame graph resources can be satisfied without a device
// allocation.
//
// Backings are keyed by shape ([gpucore.TextureKey], [gpucore.BufferKey]).
// A released backing goes to the free list of its key; the next acquire
// with the same key and a covered usage takes it back. Free backings that
// stay unused for more than Config.MaxIdleFrames frames, or that push the
// pool over its memory budget, are destroyed in least-recently-freed order.
package pool

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
)

// Pool errors.
var (
	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = errors.New("pool: closed")

	// ErrNotOwned is returned when releasing a backing the pool did not hand out.
	ErrNotOwned = errors.New("pool: backing not owned by pool")

	// ErrAlreadyFree is returned when releasing a backing twice.
	ErrAlreadyFree = errors.New("pool: backing already released")
)

// Default limits.
const (
	// DefaultMaxMemoryMB is the default budget for all pooled memory (512 MB).
	DefaultMaxMemoryMB = 512

	// DefaultMaxIdleFrames is how long a free backing survives unused.
	DefaultMaxIdleFrames = 8

	// MinMemoryMB is the minimum allowed budget (16 MB).
	MinMemoryMB = 16
)

// Allocator creates and destroys device backings. backend.Backend
// satisfies it.
type Allocator interface {
	CreateTexture(label string, desc gpucore.TextureDesc) (*backend.Texture, error)
	DestroyTexture(t *backend.Texture)
	CreateBuffer(label string, desc gpucore.BufferDesc) (*backend.Buffer, error)
	DestroyBuffer(b *backend.Buffer)
}

// Config holds pool limits.
type Config struct {
	// MaxMemoryMB is the soft budget for live and free backings together.
	// Exceeding it evicts free backings; live ones are never refused.
	// Defaults to DefaultMaxMemoryMB if below MinMemoryMB.
	MaxMemoryMB int

	// MaxIdleFrames is the number of Tick calls a free backing survives.
	// Defaults to DefaultMaxIdleFrames if <= 0.
	MaxIdleFrames int
}

// DefaultConfig returns the default pool limits.
func DefaultConfig() Config {
	return Config{
		MaxMemoryMB:   DefaultMaxMemoryMB,
		MaxIdleFrames: DefaultMaxIdleFrames,
	}
}

// Stats contains pool statistics.
type Stats struct {
	LiveTextures int
	FreeTextures int
	LiveBuffers  int
	FreeBuffers  int

	LiveBytes   uint64
	FreeBytes   uint64
	BudgetBytes uint64

	// Allocations counts device allocations made by the pool.
	Allocations uint64
	// Reuses counts acquires satisfied from a free list.
	Reuses uint64
	// Evictions counts free backings destroyed for age or budget.
	Evictions uint64
}

// String returns a human-readable string of pool stats.
func (s Stats) String() string {
	return fmt.Sprintf("Pool[%d+%d textures, %d+%d buffers, %d/%d MB, %d allocs, %d reuses, %d evictions]",
		s.LiveTextures, s.FreeTextures,
		s.LiveBuffers, s.FreeBuffers,
		(s.LiveBytes+s.FreeBytes)/(1024*1024),
		s.BudgetBytes/(1024*1024),
		s.Allocations, s.Reuses, s.Evictions)
}

// entry tracks one backing owned by the pool.
type entry struct {
	tex     *backend.Texture
	buf     *backend.Buffer
	size    uint64
	free    bool
	freedAt uint64
	element *list.Element // position in the free LRU list while free
}

// Pool is a size/format-keyed free list of device backings.
//
// Pool is safe for concurrent use.
type Pool struct {
	mu sync.Mutex

	alloc Allocator
	cfg   Config

	budgetBytes uint64
	frame       uint64

	textures map[*backend.Texture]*entry
	buffers  map[*backend.Buffer]*entry
	freeTex  map[gpucore.TextureKey][]*entry
	freeBuf  map[gpucore.BufferKey][]*entry

	// lru holds free entries (front = most recently freed).
	lru *list.List

	liveBytes, freeBytes uint64

	allocations, reuses, evictions uint64

	closed bool
}

// New creates a pool allocating through alloc.
func New(alloc Allocator, cfg Config) *Pool {
	if cfg.MaxMemoryMB < MinMemoryMB {
		cfg.MaxMemoryMB = DefaultMaxMemoryMB
	}
	if cfg.MaxIdleFrames <= 0 {
		cfg.MaxIdleFrames = DefaultMaxIdleFrames
	}
	//nolint:gosec // G115: MaxMemoryMB is bounded by MinMemoryMB minimum
	return &Pool{
		alloc:       alloc,
		cfg:         cfg,
		budgetBytes: uint64(cfg.MaxMemoryMB) * 1024 * 1024,
		textures:    make(map[*backend.Texture]*entry),
		buffers:     make(map[*backend.Buffer]*entry),
		freeTex:     make(map[gpucore.TextureKey][]*entry),
		freeBuf:     make(map[gpucore.BufferKey][]*entry),
		lru:         list.New(),
	}
}

// AcquireTexture returns a backing of desc's shape whose usage covers
// desc.Usage. reused reports whether it came from a free list.
func (p *Pool) AcquireTexture(label string, desc gpucore.TextureDesc) (tex *backend.Texture, reused bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, ErrPoolClosed
	}

	key := desc.Key()
	free := p.freeTex[key]
	for i := len(free) - 1; i >= 0; i-- {
		e := free[i]
		if !e.tex.Desc().Usage.Contains(desc.Usage) {
			continue
		}
		p.freeTex[key] = append(free[:i], free[i+1:]...)
		p.takeLocked(e)
		p.reuses++
		return e.tex, true, nil
	}

	size := desc.SizeBytes()
	p.evictForLocked(size)

	tex, err = p.alloc.CreateTexture(label, desc)
	if err != nil {
		return nil, false, err
	}
	p.textures[tex] = &entry{tex: tex, size: size}
	p.liveBytes += size
	p.allocations++
	slogger().Debug("pool: texture allocated", "label", label, "shape", key.String(), "bytes", size)
	return tex, false, nil
}

// ReleaseTexture returns tex to its free list.
func (p *Pool) ReleaseTexture(tex *backend.Texture) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	e, ok := p.textures[tex]
	if !ok {
		return ErrNotOwned
	}
	if e.free {
		return ErrAlreadyFree
	}
	key := tex.Desc().Key()
	p.freeTex[key] = append(p.freeTex[key], e)
	p.putLocked(e)
	return nil
}

// AcquireBuffer returns a backing of desc's shape whose usage covers
// desc.Usage. reused reports whether it came from a free list.
func (p *Pool) AcquireBuffer(label string, desc gpucore.BufferDesc) (buf *backend.Buffer, reused bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, ErrPoolClosed
	}

	key := desc.Key()
	free := p.freeBuf[key]
	for i := len(free) - 1; i >= 0; i-- {
		e := free[i]
		if !e.buf.Desc().Usage.Contains(desc.Usage) {
			continue
		}
		p.freeBuf[key] = append(free[:i], free[i+1:]...)
		p.takeLocked(e)
		p.reuses++
		return e.buf, true, nil
	}

	p.evictForLocked(desc.Size)

	buf, err = p.alloc.CreateBuffer(label, desc)
	if err != nil {
		return nil, false, err
	}
	p.buffers[buf] = &entry{buf: buf, size: desc.Size}
	p.liveBytes += desc.Size
	p.allocations++
	slogger().Debug("pool: buffer allocated", "label", label, "shape", key.String())
	return buf, false, nil
}

// ReleaseBuffer returns buf to its free list.
func (p *Pool) ReleaseBuffer(buf *backend.Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	e, ok := p.buffers[buf]
	if !ok {
		return ErrNotOwned
	}
	if e.free {
		return ErrAlreadyFree
	}
	key := buf.Desc().Key()
	p.freeBuf[key] = append(p.freeBuf[key], e)
	p.putLocked(e)
	return nil
}

// OwnsTexture reports whether tex was handed out by the pool and is live.
func (p *Pool) OwnsTexture(tex *backend.Texture) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.textures[tex]
	return ok && !e.free
}

// OwnsBuffer reports whether buf was handed out by the pool and is live.
func (p *Pool) OwnsBuffer(buf *backend.Buffer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.buffers[buf]
	return ok && !e.free
}

// IsFreeTexture reports whether tex sits in a free list.
func (p *Pool) IsFreeTexture(tex *backend.Texture) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.textures[tex]
	return ok && e.free
}

// Tick advances the pool's frame counter and destroys free backings idle
// for more than MaxIdleFrames.
func (p *Pool) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.frame++
	//nolint:gosec // G115: MaxIdleFrames is positive
	maxIdle := uint64(p.cfg.MaxIdleFrames)
	for elem := p.lru.Back(); elem != nil; {
		e, _ := elem.Value.(*entry)
		if p.frame-e.freedAt <= maxIdle {
			break
		}
		prev := elem.Prev()
		p.destroyFreeLocked(e)
		p.evictions++
		elem = prev
	}
}

// Trim destroys every free backing.
func (p *Pool) Trim() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for elem := p.lru.Back(); elem != nil; {
		prev := elem.Prev()
		e, _ := elem.Value.(*entry)
		p.destroyFreeLocked(e)
		elem = prev
	}
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		LiveBytes:   p.liveBytes,
		FreeBytes:   p.freeBytes,
		BudgetBytes: p.budgetBytes,
		Allocations: p.allocations,
		Reuses:      p.reuses,
		Evictions:   p.evictions,
	}
	for _, e := range p.textures {
		if e.free {
			s.FreeTextures++
		} else {
			s.LiveTextures++
		}
	}
	for _, e := range p.buffers {
		if e.free {
			s.FreeBuffers++
		} else {
			s.LiveBuffers++
		}
	}
	return s
}

// Close destroys every backing the pool owns, live ones included.
// The pool should not be used after Close is called.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	for tex := range p.textures {
		p.alloc.DestroyTexture(tex)
	}
	for buf := range p.buffers {
		p.alloc.DestroyBuffer(buf)
	}
	p.textures = nil
	p.buffers = nil
	p.freeTex = nil
	p.freeBuf = nil
	p.lru.Init()
	p.liveBytes, p.freeBytes = 0, 0
	p.closed = true
}

// takeLocked moves a free entry to the live set. Caller must hold mu.
func (p *Pool) takeLocked(e *entry) {
	p.lru.Remove(e.element)
	e.element = nil
	e.free = false
	p.freeBytes -= e.size
	p.liveBytes += e.size
}

// putLocked moves a live entry to the free LRU. Caller must hold mu.
func (p *Pool) putLocked(e *entry) {
	e.free = true
	e.freedAt = p.frame
	e.element = p.lru.PushFront(e)
	p.liveBytes -= e.size
	p.freeBytes += e.size
}

// evictForLocked destroys free backings, least recently freed first,
// until size more bytes fit the budget. Caller must hold mu.
func (p *Pool) evictForLocked(size uint64) {
	for p.liveBytes+p.freeBytes+size > p.budgetBytes {
		elem := p.lru.Back()
		if elem == nil {
			slogger().Warn("pool: over budget with no free backings",
				"live_bytes", p.liveBytes, "budget_bytes", p.budgetBytes)
			return
		}
		e, _ := elem.Value.(*entry)
		p.destroyFreeLocked(e)
		p.evictions++
	}
}

// destroyFreeLocked removes a free entry from every index and destroys
// its backing. Caller must hold mu.
func (p *Pool) destroyFreeLocked(e *entry) {
	p.lru.Remove(e.element)
	e.element = nil
	p.freeBytes -= e.size

	switch {
	case e.tex != nil:
		key := e.tex.Desc().Key()
		p.freeTex[key] = removeEntry(p.freeTex[key], e)
		if len(p.freeTex[key]) == 0 {
			delete(p.freeTex, key)
		}
		delete(p.textures, e.tex)
		p.alloc.DestroyTexture(e.tex)
	case e.buf != nil:
		key := e.buf.Desc().Key()
		p.freeBuf[key] = removeEntry(p.freeBuf[key], e)
		if len(p.freeBuf[key]) == 0 {
			delete(p.freeBuf, key)
		}
		delete(p.buffers, e.buf)
		p.alloc.DestroyBuffer(e.buf)
	}
}

func removeEntry(entries []*entry, e *entry) []*entry {
	for i, x := range entries {
		if x == e {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}
