package wgpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/wgpu"
)

// Errors returned by the wgpu backend.
var (
	// ErrNoFrame is returned when a command is recorded outside
	// BeginFrame/EndFrame.
	ErrNoFrame = errors.New("wgpu: no frame in progress")

	// ErrFrameOpen is returned by BeginFrame while a frame is recording.
	ErrFrameOpen = errors.New("wgpu: frame already in progress")

	// ErrBindingMismatch is returned when a binding list does not match
	// the pipeline layout.
	ErrBindingMismatch = errors.New("wgpu: binding does not match pipeline layout")

	// ErrWrongPipeline is returned when a compute pipeline is used for a
	// draw or the other way around.
	ErrWrongPipeline = errors.New("wgpu: wrong pipeline kind")
)

func init() {
	backend.Register(backend.BackendWGPU, func() backend.Backend {
		return New()
	})
}

// Option configures a Backend.
type Option func(*Backend)

// WithDevice runs the backend on an existing device. The caller keeps
// ownership: Close does not release it.
func WithDevice(device *wgpu.Device) Option {
	return func(b *Backend) {
		b.device = device
	}
}

// Backend is the implicit-state backend.
type Backend struct {
	device   *wgpu.Device
	queue    *wgpu.Queue
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	owned    bool
	ready    bool

	logger atomic.Pointer[slog.Logger]
	nextID atomic.Uint64
	stats  counters

	frame    *frame
	inflight []*frame

	// seen is the last state a transition left each resource in.
	seen       map[any]gpucore.State
	mismatches atomic.Uint64

	pipelines []*pipeline
}

// New returns an uninitialized backend. Call Init before use.
func New(opts ...Option) *Backend {
	b := &Backend{seen: make(map[any]gpucore.State)}
	b.logger.Store(slog.New(discardHandler{}))
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "wgpu".
func (b *Backend) Name() string { return backend.BackendWGPU }

// Kind returns KindImplicit.
func (b *Backend) Kind() backend.Kind { return backend.KindImplicit }

// SetLogger sets the logger used by the backend and by package wgpu.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(discardHandler{})
	}
	b.logger.Store(l)
	wgpu.SetLogger(l)
}

func (b *Backend) log() *slog.Logger { return b.logger.Load() }

// Device returns the device, or nil before Init.
func (b *Backend) Device() *wgpu.Device { return b.device }

// Init requests a device unless one was supplied with WithDevice.
func (b *Backend) Init() error {
	if b.ready {
		return nil
	}
	if b.device == nil {
		if err := b.open(); err != nil {
			return err
		}
	}
	b.queue = b.device.Queue()
	if b.queue == nil {
		b.releaseOwned()
		return fmt.Errorf("%w: device has no queue", backend.ErrBackendNotAvailable)
	}
	b.ready = true
	b.log().Info("wgpu: backend initialized", "owned", b.owned)
	return nil
}

func (b *Backend) open() error {
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return fmt.Errorf("%w: %w", backend.ErrBackendNotAvailable, err)
	}
	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		instance.Release()
		return fmt.Errorf("%w: %w", backend.ErrBackendNotAvailable, err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return fmt.Errorf("wgpu: request device: %w", err)
	}
	b.instance, b.adapter, b.device = instance, adapter, device
	b.owned = true
	b.log().Debug("wgpu: adapter opened", "name", adapter.Info().Name, "backend", adapter.Info().Backend)
	return nil
}

// Close waits for the device and releases every backend object.
func (b *Backend) Close() {
	if !b.ready {
		return
	}
	if b.frame != nil {
		b.frame.encoder.DiscardEncoding()
		b.frame.release()
		b.frame = nil
	}
	if err := b.device.WaitIdle(); err != nil {
		b.log().Warn("wgpu: wait idle on close", "err", err)
	}
	b.retire(true)
	for _, p := range b.pipelines {
		p.release()
	}
	b.pipelines = nil
	clear(b.seen)
	b.releaseOwned()
	b.queue = nil
	b.ready = false
}

func (b *Backend) releaseOwned() {
	if !b.owned {
		return
	}
	b.device.Release()
	b.adapter.Release()
	b.instance.Release()
	b.device, b.adapter, b.instance = nil, nil, nil
	b.owned = false
}

func (b *Backend) check() error {
	if !b.ready {
		return backend.ErrNotInitialized
	}
	return nil
}

func (b *Backend) recording() error {
	if err := b.check(); err != nil {
		return err
	}
	if b.frame == nil {
		return ErrNoFrame
	}
	return nil
}

// Transition checks bar against the states this backend last saw and
// records no commands.
func (b *Backend) Transition(bar backend.Barrier) error {
	if err := b.recording(); err != nil {
		return err
	}
	for _, tr := range bar.Transitions {
		var key any
		switch {
		case tr.Texture != nil:
			key = tr.Texture
		case tr.Buffer != nil:
			key = tr.Buffer
		default:
			return fmt.Errorf("%w: transition without resource", backend.ErrNilResource)
		}
		if prev, ok := b.seen[key]; ok && prev != tr.Old {
			b.mismatches.Add(1)
			b.log().Warn("wgpu: state mismatch",
				"pass", bar.Label,
				"transition", tr.String(),
				"tracked", prev.String(),
			)
		}
		b.seen[key] = tr.New
		b.log().Debug("wgpu: transition", "pass", bar.Label, "transition", tr.String())
	}
	b.stats.transitions.Add(uint64(len(bar.Transitions)))
	return nil
}

// Mismatches returns how many transitions disagreed with the tracked state.
func (b *Backend) Mismatches() uint64 { return b.mismatches.Load() }

// SubmitAndWait submits the commands recorded so far, blocks until the
// device is idle and reopens the frame's command stream.
func (b *Backend) SubmitAndWait(ctx context.Context) error {
	if err := b.recording(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.submit(); err != nil {
		return err
	}
	if err := b.device.WaitIdle(); err != nil {
		return fmt.Errorf("wgpu: wait idle: %w", err)
	}
	b.stats.stalls.Add(1)
	b.retire(true)
	return b.begin("frame (resumed)")
}

// Stats returns cumulative counters. Barriers stays zero.
func (b *Backend) Stats() backend.Stats { return b.stats.snapshot() }

type counters struct {
	texturesCreated, texturesDestroyed atomic.Uint64
	buffersCreated, buffersDestroyed   atomic.Uint64
	viewsCreated                       atomic.Uint64
	transitions                        atomic.Uint64
	dispatches, draws                  atomic.Uint64
	submits, stalls                    atomic.Uint64
}

func (c *counters) snapshot() backend.Stats {
	return backend.Stats{
		TexturesCreated:   c.texturesCreated.Load(),
		TexturesDestroyed: c.texturesDestroyed.Load(),
		BuffersCreated:    c.buffersCreated.Load(),
		BuffersDestroyed:  c.buffersDestroyed.Load(),
		ViewsCreated:      c.viewsCreated.Load(),
		Transitions:       c.transitions.Load(),
		Dispatches:        c.dispatches.Load(),
		Draws:             c.draws.Load(),
		Submits:           c.submits.Load(),
		Stalls:            c.stalls.Load(),
	}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

var _ backend.Backend = (*Backend)(nil)
