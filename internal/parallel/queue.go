package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// Queue errors.
var (
	// ErrQueueClosed is returned when enqueueing on a closed queue.
	ErrQueueClosed = errors.New("parallel: queue closed")

	// ErrQueueFull is returned when the ring of in-flight batches is full.
	ErrQueueFull = errors.New("parallel: queue full")
)

// Default queue limits.
const (
	// DefaultCapacity is the number of batches that may be in flight.
	DefaultCapacity = 64

	// DefaultWorkerQueue is the buffer of the underlying worker pool.
	DefaultWorkerQueue = 256

	defaultIdleTimeout = time.Second
)

// Batch is one submitted TaskList. Its done flag is set once every task
// of the list has returned.
type Batch struct {
	tasks     []task
	remaining []atomic.Int32
	pending   atomic.Int32

	done   atomic.Bool
	doneCh chan struct{}

	errOnce sync.Once
	err     error
}

// Done reports whether every task of the batch has finished.
func (b *Batch) Done() bool { return b.done.Load() }

// Wait blocks until the batch is done or ctx is canceled. It returns the
// first task error, or ctx's error.
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.doneCh:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the first task error of a finished batch.
func (b *Batch) Err() error {
	if !b.Done() {
		return nil
	}
	return b.err
}

func (b *Batch) fail(err error) {
	b.errOnce.Do(func() { b.err = err })
}

func (b *Batch) finish() {
	b.done.Store(true)
	close(b.doneCh)
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the maximum number of worker goroutines.
// Values <= 0 select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithCapacity sets how many batches may be in flight at once.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// Queue runs TaskLists on a worker pool. In-flight batches are kept in a
// fixed ring; finished batches are reclaimed from its head in submission
// order.
//
// Queue is safe for concurrent use.
type Queue struct {
	workers  int
	capacity int

	pool     worker.DynamicWorkerPool
	nextID   atomic.Int64
	inflight sync.WaitGroup

	mu     sync.Mutex
	ring   []*Batch
	head   int
	count  int
	closed bool
}

// NewQueue creates a queue and its worker pool.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		workers:  runtime.GOMAXPROCS(0),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.ring = make([]*Batch, q.capacity)
	q.pool = worker.NewDynamicWorkerPool(q.workers, DefaultWorkerQueue, defaultIdleTimeout)
	return q
}

// Workers returns the maximum number of worker goroutines.
func (q *Queue) Workers() int { return q.workers }

// Enqueue submits every task of l as one batch. l is sorted if it was not.
// Tasks start as soon as their dependencies have finished; the returned
// batch reports when all of them are done.
func (q *Queue) Enqueue(l *TaskList) (*Batch, error) {
	if l.Order() == nil || len(l.Order()) != l.Len() {
		l.Sort(false)
	}
	if l.HasCycles() {
		return nil, ErrCycle
	}

	b := &Batch{
		tasks:     make([]task, len(l.tasks)),
		remaining: make([]atomic.Int32, len(l.tasks)),
		doneCh:    make(chan struct{}),
	}
	copy(b.tasks, l.tasks)
	for i := range b.tasks {
		//nolint:gosec // G115: dependency counts fit in int32
		b.remaining[i].Store(int32(b.tasks[i].deps))
	}
	//nolint:gosec // G115: task counts fit in int32
	b.pending.Store(int32(len(b.tasks)))

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	q.reclaimLocked()
	if q.count == len(q.ring) {
		q.mu.Unlock()
		return nil, ErrQueueFull
	}
	q.ring[(q.head+q.count)%len(q.ring)] = b
	q.count++
	defer q.mu.Unlock()

	if len(b.tasks) == 0 {
		b.finish()
		return b, nil
	}
	// Submitting under mu keeps Close from stopping the pool before the
	// roots of this batch are in flight.
	for _, id := range l.Order() {
		if b.tasks[id].deps == 0 {
			q.submit(b, id)
		}
	}
	return b, nil
}

// Go submits a single function as its own batch.
func (q *Queue) Go(fn TaskFunc) (*Batch, error) {
	var l TaskList
	l.AddTask(fn)
	return q.Enqueue(&l)
}

// ParallelFor runs fn for every i in [from, to) and waits for all of them.
func (q *Queue) ParallelFor(ctx context.Context, from, to int, fn func(i int) error) error {
	if from >= to {
		return nil
	}
	var l TaskList
	for i := from; i < to; i++ {
		l.AddTask(func() error { return fn(i) })
	}
	b, err := q.Enqueue(&l)
	if err != nil {
		return err
	}
	return b.Wait(ctx)
}

// Pending returns the number of batches still held in the ring.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reclaimLocked()
	return q.count
}

// Close waits for running tasks and stops the worker pool. Batches that
// are still waiting on dependencies keep running until they finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.inflight.Wait()
	q.pool.Stop()
}

// reclaimLocked drops finished batches from the head of the ring.
func (q *Queue) reclaimLocked() {
	for q.count > 0 && q.ring[q.head].Done() {
		q.ring[q.head] = nil
		q.head = (q.head + 1) % len(q.ring)
		q.count--
	}
}

func (q *Queue) submit(b *Batch, id int) {
	q.inflight.Add(1)
	q.pool.SubmitTask(worker.Task{
		ID: int(q.nextID.Add(1)),
		Do: func() (any, error) {
			defer q.inflight.Done()
			q.run(b, id)
			return nil, nil
		},
	})
}

// run executes one task and releases the tasks waiting on it.
func (q *Queue) run(b *Batch, id int) {
	t := &b.tasks[id]
	if t.fn != nil {
		if err := t.fn(); err != nil {
			b.fail(err)
		}
	}
	for _, d := range t.dependents {
		if b.remaining[d].Add(-1) == 0 {
			q.submit(b, d)
		}
	}
	if b.pending.Add(-1) == 0 {
		b.finish()
	}
}
