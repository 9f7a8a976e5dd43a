package parallel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitBatch(t *testing.T, b *Batch) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := b.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("batch did not finish in time")
	}
	return err
}

func TestTaskListSort(t *testing.T) {
	var l TaskList
	a := l.AddTask(nil)
	b := l.AddTask(nil)
	c := l.AddTask(nil)
	if !l.AddDependency(c, b) || !l.AddDependency(b, a) {
		t.Fatal("AddDependency returned false for new edges")
	}
	if l.AddDependency(c, b) {
		t.Error("duplicate edge accepted")
	}
	if l.AddDependency(a, a) {
		t.Error("self edge accepted")
	}

	l.Sort(false)
	order := l.Order()
	if len(order) != 3 || order[0] != a || order[1] != b || order[2] != c {
		t.Errorf("Order() = %v, want [%d %d %d]", order, a, b, c)
	}
	if l.HasCycles() {
		t.Error("HasCycles() = true for acyclic list")
	}
}

func TestTaskListSortKeepClose(t *testing.T) {
	// r0 and r1 are roots; d0 depends on r0 only.
	var l TaskList
	r0 := l.AddTask(nil)
	r1 := l.AddTask(nil)
	d0 := l.AddTask(nil)
	l.AddDependency(d0, r0)

	l.Sort(true)
	want := []int{r0, d0, r1}
	for i, id := range l.Order() {
		if id != want[i] {
			t.Fatalf("Order() = %v, want %v", l.Order(), want)
		}
	}

	l.Sort(false)
	want = []int{r0, r1, d0}
	for i, id := range l.Order() {
		if id != want[i] {
			t.Fatalf("Order() = %v, want %v", l.Order(), want)
		}
	}
}

func TestTaskListCycle(t *testing.T) {
	var l TaskList
	a := l.AddTask(nil)
	b := l.AddTask(nil)
	l.AddDependency(a, b)
	l.AddDependency(b, a)
	l.Sort(false)
	if !l.HasCycles() {
		t.Fatal("HasCycles() = false for cyclic list")
	}

	q := NewQueue(WithWorkers(2))
	defer q.Close()
	if _, err := q.Enqueue(&l); !errors.Is(err, ErrCycle) {
		t.Errorf("Enqueue error = %v, want ErrCycle", err)
	}
}

func TestQueueRunsAllTasks(t *testing.T) {
	q := NewQueue(WithWorkers(4))
	defer q.Close()

	var count atomic.Int64
	var l TaskList
	for range 100 {
		l.AddTask(func() error {
			count.Add(1)
			return nil
		})
	}
	b, err := q.Enqueue(&l)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := waitBatch(t, b); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !b.Done() {
		t.Error("Done() = false after Wait")
	}
	if count.Load() != 100 {
		t.Errorf("count = %d, want 100", count.Load())
	}
}

func TestQueueRespectsDependencies(t *testing.T) {
	q := NewQueue(WithWorkers(4))
	defer q.Close()

	var mu sync.Mutex
	var seen []string
	record := func(name string) TaskFunc {
		return func() error {
			mu.Lock()
			seen = append(seen, name)
			mu.Unlock()
			return nil
		}
	}

	var l TaskList
	load := l.AddTask(record("load"))
	parse := l.AddTask(record("parse"))
	upload := l.AddTask(record("upload"))
	l.AddDependency(parse, load)
	l.AddDependency(upload, parse)

	b, err := q.Enqueue(&l)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := waitBatch(t, b); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(seen) != 3 || seen[0] != "load" || seen[1] != "parse" || seen[2] != "upload" {
		t.Errorf("execution order = %v", seen)
	}
}

func TestQueueFirstError(t *testing.T) {
	q := NewQueue(WithWorkers(2))
	defer q.Close()

	boom := errors.New("boom")
	var l TaskList
	l.AddTask(func() error { return boom })
	l.AddTask(func() error { return nil })

	b, err := q.Enqueue(&l)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := waitBatch(t, b); !errors.Is(err, boom) {
		t.Errorf("Wait error = %v, want boom", err)
	}
	if !errors.Is(b.Err(), boom) {
		t.Errorf("Err() = %v, want boom", b.Err())
	}
}

func TestQueueEmptyBatch(t *testing.T) {
	q := NewQueue(WithWorkers(1))
	defer q.Close()

	b, err := q.Enqueue(&TaskList{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !b.Done() {
		t.Error("empty batch not done")
	}
}

func TestQueueFull(t *testing.T) {
	q := NewQueue(WithWorkers(1), WithCapacity(1))
	defer q.Close()

	release := make(chan struct{})
	first, err := q.Go(func() error {
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("Go: %v", err)
	}
	if _, err := q.Go(func() error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second Go error = %v, want ErrQueueFull", err)
	}

	close(release)
	if err := waitBatch(t, first); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if q.Pending() != 0 {
		t.Errorf("Pending() = %d after batch finished, want 0", q.Pending())
	}
	second, err := q.Go(func() error { return nil })
	if err != nil {
		t.Fatalf("Go after reclaim: %v", err)
	}
	_ = waitBatch(t, second)
}

func TestQueueParallelFor(t *testing.T) {
	q := NewQueue(WithWorkers(4))
	defer q.Close()

	out := make([]int, 32)
	err := q.ParallelFor(context.Background(), 0, len(out), func(i int) error {
		out[i] = i * i
		return nil
	})
	if err != nil {
		t.Fatalf("ParallelFor: %v", err)
	}
	for i, v := range out {
		if v != i*i {
			t.Fatalf("out[%d] = %d, want %d", i, v, i*i)
		}
	}
}

func TestQueueClosed(t *testing.T) {
	q := NewQueue(WithWorkers(1))
	q.Close()
	q.Close()
	if _, err := q.Go(func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Go after Close error = %v, want ErrQueueClosed", err)
	}
}
