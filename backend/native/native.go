package native

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/internal/cache"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// layoutCacheSize bounds the number of distinct bind group layouts kept
// alive between pipelines.
const layoutCacheSize = 64

func init() {
	backend.Register(backend.BackendNative, func() backend.Backend {
		return New()
	})
}

// Option configures a Backend.
type Option func(*Backend)

// WithDevice runs the backend on an already opened HAL device. The caller
// keeps ownership: Close does not destroy the device.
func WithDevice(device hal.Device, queue hal.Queue) Option {
	return func(b *Backend) {
		b.device = device
		b.queue = queue
	}
}

// Backend is the explicit-barrier backend.
type Backend struct {
	device   hal.Device
	queue    hal.Queue
	instance hal.Instance
	owned    bool
	ready    bool

	logger atomic.Pointer[slog.Logger]
	nextID atomic.Uint64
	stats  counters

	frame    *frame
	inflight []*frame

	layouts   *cache.Cache[string, hal.BindGroupLayout]
	pipelines []*pipeline

	lastBatch Batch
}

// New returns an uninitialized backend. Call Init before use.
func New(opts ...Option) *Backend {
	b := &Backend{}
	b.logger.Store(slog.New(discardHandler{}))
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "native".
func (b *Backend) Name() string { return backend.BackendNative }

// Kind returns KindExplicit.
func (b *Backend) Kind() backend.Kind { return backend.KindExplicit }

// SetLogger sets the logger used by the backend and the HAL.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(discardHandler{})
	}
	b.logger.Store(l)
	hal.SetLogger(l)
}

func (b *Backend) log() *slog.Logger { return b.logger.Load() }

// Device returns the HAL device, or nil before Init.
func (b *Backend) Device() hal.Device { return b.device }

// Init opens the device unless one was supplied with WithDevice.
func (b *Backend) Init() error {
	if b.ready {
		return nil
	}
	if b.device == nil {
		if err := b.open(); err != nil {
			return err
		}
	}
	b.layouts = cache.New[string, hal.BindGroupLayout](layoutCacheSize)
	b.layouts.OnEvict(func(_ string, l hal.BindGroupLayout) {
		b.device.DestroyBindGroupLayout(l)
	})
	b.ready = true
	b.log().Info("native: backend initialized", "owned", b.owned)
	return nil
}

func (b *Backend) open() error {
	api, err := hal.SelectBestBackend()
	if err != nil {
		return fmt.Errorf("%w: %w", backend.ErrBackendNotAvailable, err)
	}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return fmt.Errorf("native: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("%w: %w", backend.ErrBackendNotAvailable, ErrNoAdapter)
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("native: open device: %w", err)
	}
	b.instance = instance
	b.device = open.Device
	b.queue = open.Queue
	b.owned = true
	b.log().Debug("native: adapter opened",
		"name", adapters[0].Info.Name,
		"backend", api.Variant(),
	)
	return nil
}

// Close waits for the device, releases every backend object and, when
// the backend opened the device itself, destroys it.
func (b *Backend) Close() {
	if !b.ready {
		return
	}
	if b.frame != nil {
		b.frame.encoder.DiscardEncoding()
		b.frame.release(b.device)
		b.frame = nil
	}
	if err := b.device.WaitIdle(); err != nil {
		b.log().Warn("native: wait idle on close", "err", err)
	}
	b.retire(true)
	for _, p := range b.pipelines {
		p.destroy(b.device)
	}
	b.pipelines = nil
	b.layouts.Clear()
	if b.owned {
		b.device.Destroy()
		b.instance.Destroy()
		b.device, b.queue, b.instance = nil, nil, nil
		b.owned = false
	}
	b.ready = false
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

// allocErr wraps a HAL allocation failure, mapping device memory
// exhaustion to backend.ErrOutOfMemory.
func allocErr(what, label string, err error) error {
	if errors.Is(err, hal.ErrDeviceOutOfMemory) {
		return fmt.Errorf("%w: %s %q: %w", backend.ErrOutOfMemory, what, label, err)
	}
	return fmt.Errorf("native: create %s %q: %w", what, label, err)
}

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
		return fmt.Errorf("native: wait idle: %w", err)
	}
	b.stats.stalls.Add(1)
	b.retire(true)
	return b.begin("frame (resumed)")
}

// Stats returns cumulative counters.
func (b *Backend) Stats() backend.Stats { return b.stats.snapshot() }

// LastBatch returns the last barrier batch recorded by Transition.
func (b *Backend) LastBatch() Batch { return b.lastBatch }

type counters struct {
	texturesCreated, texturesDestroyed atomic.Uint64
	buffersCreated, buffersDestroyed   atomic.Uint64
	viewsCreated                       atomic.Uint64
	barriers, transitions              atomic.Uint64
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
		Barriers:          c.barriers.Load(),
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
