package parallel

import "errors"

// ErrCycle is returned when a task list cannot be ordered.
var ErrCycle = errors.New("parallel: task list has dependency cycle")

// TaskFunc is the body of one task.
type TaskFunc func() error

// task is one node of a TaskList.
type task struct {
	fn         TaskFunc
	dependents []int
	deps       int
}

// TaskList is a set of tasks with dependencies between them, submitted to
// a Queue as one batch.
//
// A TaskList is not safe for concurrent use while it is being built.
type TaskList struct {
	tasks []task
	order []int
}

// AddTask appends fn and returns its id.
func (l *TaskList) AddTask(fn TaskFunc) int {
	l.tasks = append(l.tasks, task{fn: fn})
	l.order = nil
	return len(l.tasks) - 1
}

// AddDependency makes task id wait for task dep. It returns false for
// self-dependencies, out-of-range ids and edges that already exist.
func (l *TaskList) AddDependency(id, dep int) bool {
	if id == dep || id < 0 || dep < 0 || id >= len(l.tasks) || dep >= len(l.tasks) {
		return false
	}
	for _, d := range l.tasks[dep].dependents {
		if d == id {
			return false
		}
	}
	l.tasks[dep].dependents = append(l.tasks[dep].dependents, id)
	l.tasks[id].deps++
	l.order = nil
	return true
}

// Len returns the number of tasks.
func (l *TaskList) Len() int { return len(l.tasks) }

// Sort computes a topological order of the tasks. With keepClose set,
// dependents are placed right after the task that unlocks them instead of
// at the end of the order.
func (l *TaskList) Sort(keepClose bool) {
	remaining := make([]int, len(l.tasks))
	order := make([]int, 0, len(l.tasks))
	for i := range l.tasks {
		remaining[i] = l.tasks[i].deps
		if remaining[i] == 0 {
			order = append(order, i)
		}
	}
	for i := 0; i < len(order); i++ {
		for _, id := range l.tasks[order[i]].dependents {
			remaining[id]--
			if remaining[id] != 0 {
				continue
			}
			if keepClose {
				order = append(order, 0)
				copy(order[i+2:], order[i+1:])
				order[i+1] = id
			} else {
				order = append(order, id)
			}
		}
	}
	l.order = order
}

// Order returns the order computed by the last Sort, or nil.
func (l *TaskList) Order() []int { return l.order }

// HasCycles reports whether the last Sort could not place every task.
func (l *TaskList) HasCycles() bool { return len(l.order) != len(l.tasks) }
