package workerpool

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
)

// ErrPoolReleased is returned for tasks that are run on a released pool.
var ErrPoolReleased = errors.New("worker pool released")

// Task is a named unit of work. The name is only used to attribute errors.
type Task struct {
	Name string
	Func func() error
}

// Pool runs groups of independent tasks on a bounded set of goroutines backed by ants.
// A failing or panicking task never affects the other tasks of the same group.
type Pool struct {
	pool *ants.Pool
}

// New creates a new Pool with the given number of workers.
func New(workerCount int) (*Pool, error) {
	pool, err := ants.NewPool(workerCount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ants pool")
	}

	return &Pool{pool: pool}, nil
}

// RunAll executes the tasks concurrently and waits for all of them.
// The returned slice holds the error of every task at the task's index (nil on success).
func (p *Pool) RunAll(tasks []Task) []error {
	results := make([]error, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		i, task := i, task

		wg.Add(1)
		if err := p.pool.Submit(func() {
			defer wg.Done()

			results[i] = runTask(task)
		}); err != nil {
			wg.Done()

			if errors.Is(err, ants.ErrPoolClosed) {
				err = ErrPoolReleased
			}
			results[i] = errors.Wrapf(err, "failed to submit task %s", task.Name)
		}
	}
	wg.Wait()

	return results
}

// WorkerCount returns the capacity of the pool.
func (p *Pool) WorkerCount() int {
	return p.pool.Cap()
}

// Running returns the number of currently busy workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release closes the pool. Tasks submitted afterwards fail with ErrPoolReleased.
func (p *Pool) Release() {
	p.pool.Release()
}

func runTask(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("task %s panicked: %s\n%s", task.Name, fmt.Sprint(r), debug.Stack())
		}
	}()

	if err = task.Func(); err != nil {
		return errors.Wrapf(err, "task %s failed", task.Name)
	}

	return nil
}
