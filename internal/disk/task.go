package disk

import "context"

// Task is the pending result of a long running operation such as a format
// or a filesystem check. The work runs on its own goroutine; there is no
// way to cancel it once started.
type Task struct {
	done chan struct{}
	err  error
}

func startTask(fn func() error) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.err = fn()
	}()
	return t
}

// failedTask is a task that was refused before any work started.
func failedTask(err error) *Task {
	t := &Task{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the outcome. It is nil until Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx ends. Giving up on the wait
// does not stop the task.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
