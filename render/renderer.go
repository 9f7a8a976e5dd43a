package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/internal/parallel"
)

// Renderer construction errors.
var (
	ErrNoGraph  = errors.New("render: no graph")
	ErrNoPasses = errors.New("render: no passes")
)

// Outputter is implemented by passes that produce a frame output. The
// frame is compiled against the union of all outputs; without any, every
// node stays live.
type Outputter interface {
	Outputs(s *framegraph.Scratch) []framegraph.ResourceRef
}

// Upload fills Target with CPU-computed data once per frame. Fill receives
// a zeroed slice of Target's size.
type Upload struct {
	Target *backend.Buffer
	Fill   func(frame uint64, dst []byte) error
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithTaskQueue runs uploads on q. Without a queue they run inline before
// the frame is declared.
func WithTaskQueue(q *parallel.Queue) Option {
	return func(r *Renderer) { r.queue = q }
}

// WithUploads registers per-frame uploads.
func WithUploads(uploads ...Upload) Option {
	return func(r *Renderer) { r.uploads = append(r.uploads, uploads...) }
}

// Stats accumulates over every rendered frame.
type Stats struct {
	Frames   uint64
	Failed   uint64
	Barriers uint64
	Stalls   uint64
	Uploads  uint64
	// Last holds the node timings of the most recent frame.
	Last []framegraph.NodeTiming
}

// Renderer walks a fixed pass list once per frame.
type Renderer struct {
	graph   *framegraph.Graph
	passes  []framegraph.Pass
	scratch []framegraph.Scratch

	queue   *parallel.Queue
	uploads []Upload
	staging [][]byte

	stats Stats
}

// New returns a renderer running passes on g in the given order.
func New(g *framegraph.Graph, passes []framegraph.Pass, opts ...Option) (*Renderer, error) {
	if g == nil {
		return nil, ErrNoGraph
	}
	if len(passes) == 0 {
		return nil, ErrNoPasses
	}
	r := &Renderer{
		graph:   g,
		passes:  passes,
		scratch: make([]framegraph.Scratch, len(passes)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.staging = make([][]byte, len(r.uploads))
	for i, u := range r.uploads {
		if u.Target == nil || u.Fill == nil {
			return nil, fmt.Errorf("render: upload %d has no target or fill", i)
		}
		r.staging[i] = make([]byte, u.Target.Desc().Size)
	}
	return r, nil
}

// Graph returns the graph the renderer drives.
func (r *Renderer) Graph() *framegraph.Graph { return r.graph }

// Stats returns the accumulated statistics.
func (r *Renderer) Stats() Stats { return r.stats }

// Render runs one frame. Declaration, compile and node errors are joined
// into the result; the frame is always ended.
func (r *Renderer) Render(ctx context.Context) error {
	frame := r.graph.Frame()
	wait, err := r.startUploads(frame)
	if err != nil {
		return err
	}

	b, err := r.graph.BeginFrame()
	if err != nil {
		_ = wait(ctx)
		return err
	}

	var outputs []framegraph.ResourceRef
	for i, p := range r.passes {
		s := &r.scratch[i]
		s.Reset()
		b.AddPass(p, s)
		if o, ok := p.(Outputter); ok {
			outputs = append(outputs, o.Outputs(s)...)
		}
	}

	var errs []error
	if err := b.Compile(outputs...); err != nil {
		errs = append(errs, err)
	}
	if err := wait(ctx); err != nil {
		errs = append(errs, err)
	} else if err := r.writeUploads(b.Backend()); err != nil {
		errs = append(errs, err)
	}
	if err := b.Execute(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := b.EndFrame(); err != nil {
		errs = append(errs, err)
	}

	r.stats.Frames++
	r.stats.Barriers += uint64(b.Barriers())
	r.stats.Stalls += uint64(b.Stalls())
	r.stats.Last = b.Timings()
	if len(errs) > 0 {
		r.stats.Failed++
		framegraph.Logger().Warn("render: frame finished with errors", "frame", frame, "errors", len(errs))
	}
	return errors.Join(errs...)
}

// startUploads fills the staging slices, on the queue when there is one.
// The returned func waits for the fills to finish.
func (r *Renderer) startUploads(frame uint64) (func(context.Context) error, error) {
	fill := func(i int) error {
		clear(r.staging[i])
		if err := r.uploads[i].Fill(frame, r.staging[i]); err != nil {
			return fmt.Errorf("render: upload %q: %w", r.uploads[i].Target.Label(), err)
		}
		return nil
	}
	if r.queue == nil || len(r.uploads) == 0 {
		var errs []error
		for i := range r.uploads {
			errs = append(errs, fill(i))
		}
		err := errors.Join(errs...)
		return func(context.Context) error { return err }, nil
	}

	var l parallel.TaskList
	for i := range r.uploads {
		l.AddTask(func() error { return fill(i) })
	}
	batch, err := r.queue.Enqueue(&l)
	if err != nil {
		return nil, fmt.Errorf("render: enqueue uploads: %w", err)
	}
	// Waiting ignores cancellation: no fill may outlive its frame.
	return func(ctx context.Context) error {
		return batch.Wait(context.WithoutCancel(ctx))
	}, nil
}

func (r *Renderer) writeUploads(be backend.Backend) error {
	start := time.Now()
	for i, u := range r.uploads {
		if err := be.WriteBuffer(u.Target, 0, r.staging[i]); err != nil {
			return fmt.Errorf("render: upload %q: %w", u.Target.Label(), err)
		}
		// The whole buffer is defined now; the graph must not clear it.
		u.Target.MarkUsed()
		r.stats.Uploads++
	}
	if len(r.uploads) > 0 {
		framegraph.Logger().Debug("render: uploads written", "count", len(r.uploads), "elapsed", time.Since(start))
	}
	return nil
}
