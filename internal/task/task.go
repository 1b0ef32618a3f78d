// Package task provides a small goroutine handle with cooperative cancellation,
// and a combinator which joins several handles into one.
package task

import (
	"context"
)

// Task is the handle of a function running in its own goroutine.
// It moves from running to done exactly once, carrying the function's error.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Spawn runs fn in a new goroutine and returns its handle.
// The context given to fn is cancelled by Cancel, and after fn returns.
func Spawn(fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		defer cancel()
		t.err = fn(ctx)
	}()
	return t
}

// Cancel asks the task to stop. It does not wait.
// The task observes the cancellation at its next suspension point.
func (t *Task) Cancel() {
	t.cancel()
}

// Done returns a channel which is closed when the task finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// IsDone reports whether the task finished.
func (t *Task) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Err returns the task's error.
// Returns nil if the task is still running or finished without error.
func (t *Task) Err() error {
	if !t.IsDone() {
		return nil
	}
	return t.err
}

// Wait blocks until the task finished and returns its error,
// or returns ctx.Err() if ctx is done first.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Gather returns a task which finishes once all the tasks finished.
// Its error is the first non-nil error in argument order.
// Cancelling the gathered task cancels every member, and still waits for them.
func Gather(tasks ...*Task) *Task {
	return Spawn(func(ctx context.Context) error {
		for _, t := range tasks {
			select {
			case <-t.Done():
			case <-ctx.Done():
				for _, tt := range tasks {
					tt.Cancel()
				}
				<-t.Done()
			}
		}
		for _, t := range tasks {
			if t.err != nil {
				return t.err
			}
		}
		return nil
	})
}
