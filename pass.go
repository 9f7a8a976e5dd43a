package framegraph

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/shader"
)

// Pass is one GPU workload driven by the frame graph.
//
// Setup runs once per frame before any Execute and only declares
// resources. Values computed in Setup that Execute needs go in the
// Scratch, never in fields of the pass: the scratch is reset every frame.
type Pass interface {
	Name() string
	Setup(b *Builder, n *Node, s *Scratch)
	Execute(ctx context.Context, b *Builder, s *Scratch) error
}

// AddPass adds a node for p, runs its Setup and wires its Execute as the
// node body. s is handed to both calls; the caller resets it between
// frames.
func (b *Builder) AddPass(p Pass, s *Scratch) *Node {
	n := b.AddNode(p.Name())
	if s == nil {
		s = &Scratch{}
	}
	p.Setup(b, n, s)
	n.SetExecutor(func(ctx context.Context, b *Builder) error {
		return p.Execute(ctx, b, s)
	})
	return n
}

// Scratch is per-frame, per-pass storage shared between Setup and Execute.
type Scratch struct {
	value any
}

// Reset drops the stored value.
func (s *Scratch) Reset() { s.value = nil }

// TempData returns the scratch value of type T, allocating a zero one on
// first use in the frame.
//
//	type ssrTemp struct{ color, depth framegraph.ResourceRef }
//	tmp := framegraph.TempData[ssrTemp](s)
func TempData[T any](s *Scratch) *T {
	if v, ok := s.value.(*T); ok {
		return v
	}
	v := new(T)
	s.value = v
	return v
}

// InitContext is what a pass may use while creating its device objects.
type InitContext struct {
	Backend backend.Backend
	Shaders *shader.Loader
	// Pass is the name used in failure logs.
	Pass string
	// Err is set when the context was taken outside Execute. Such a
	// context carries no device and EnsureReady refuses it.
	Err error
}

// InitContext returns the init context for the executing node. Outside
// Execute it reports ErrNotExecuting through Err and the builder's errors.
func (b *Builder) InitContext() InitContext {
	if b.phase != PhaseExecuting || b.current == nil {
		err := fmt.Errorf("%w: init context in phase %v", ErrNotExecuting, b.phase)
		return InitContext{Err: b.resolveFailed(err)}
	}
	return InitContext{Backend: b.g.be, Shaders: b.g.shaders, Pass: b.current.name}
}

// Lazy is a cell for device objects a pass creates on first Execute.
// A failed initialization is logged with the pass name and retried on the
// next call.
type Lazy[T any] struct {
	mu       sync.Mutex
	init     func(InitContext) (T, error)
	value    T
	ready    bool
	failures int
}

// NewLazy returns an empty cell populated by init.
func NewLazy[T any](init func(InitContext) (T, error)) *Lazy[T] {
	return &Lazy[T]{init: init}
}

// EnsureReady runs init if the cell is empty. It reports false when init
// failed; the pass should then skip its work for this frame.
func (l *Lazy[T]) EnsureReady(ic InitContext) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ready {
		return l.value, true
	}
	if ic.Err != nil {
		var zero T
		return zero, false
	}
	v, err := l.init(ic)
	if err != nil {
		l.failures++
		if l.failures == 1 {
			Logger().Error("framegraph: pass init failed", "pass", ic.Pass, "err", err)
		} else {
			Logger().Debug("framegraph: pass init failed again", "pass", ic.Pass, "attempt", l.failures, "err", err)
		}
		var zero T
		return zero, false
	}
	l.value = v
	l.ready = true
	return v, true
}

// Ready reports whether the cell holds a value.
func (l *Lazy[T]) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// Get returns the value and whether the cell is populated.
func (l *Lazy[T]) Get() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.ready
}

// Failures returns the number of failed initializations so far.
func (l *Lazy[T]) Failures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

// Reset empties the cell so the next EnsureReady initializes again.
func (l *Lazy[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	l.value = zero
	l.ready = false
}
