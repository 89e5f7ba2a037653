package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/store"
)

// Task is one running occurrence of a workflow.
type Task struct {
	ID      string
	Watcher string
	Trigger action.Action

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Cancel requests cancellation. Safe to call more than once.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed when the task's goroutine has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the worker's error. Only valid after Done is closed.
func (t *Task) Err() error {
	<-t.done
	return t.err
}

// PanicError wraps a value recovered from a panicking worker.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("workflow panicked: %v", e.Value)
}

// Effects is the handle a worker uses to interact with the store.
type Effects struct {
	ctx   context.Context
	store *store.Store
	clock Clock
	task  *Task
}

// Context returns the task context.
func (e *Effects) Context() context.Context {
	return e.ctx
}

// Task returns the running task.
func (e *Effects) Task() *Task {
	return e.task
}

// Put dispatches a on behalf of the task. It reports false, without
// dispatching, once the task has been cancelled.
func (e *Effects) Put(a action.Action) bool {
	a.TaskID = e.task.ID
	_, ok := e.store.DispatchContext(e.ctx, a)
	return ok
}

// State returns the latest root state.
func (e *Effects) State() *store.State {
	return e.store.State()
}

// Cancelled reports whether the task has been cancelled.
func (e *Effects) Cancelled() bool {
	return e.ctx.Err() != nil
}

// Delay blocks for d on the runner's clock. It returns the context error if
// the task is cancelled first.
func (e *Effects) Delay(d time.Duration) error {
	select {
	case <-e.ctx.Done():
		return e.ctx.Err()
	case <-e.clock.After(d):
		return nil
	}
}

// Select applies sel to the latest root state.
func Select[R any](e *Effects, sel func(*store.State) R) R {
	return sel(e.store.State())
}
