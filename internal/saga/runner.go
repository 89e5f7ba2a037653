package saga

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/metrics"
	"github.com/roach88/opsdesk/internal/store"
)

// Worker runs one occurrence of a workflow for the action that triggered it.
//
// Workers must honour ctx: when it is done they should return promptly.
// Returning an error marks the task failed; it does not affect the watcher.
type Worker func(ctx context.Context, eff *Effects, trigger action.Action) error

// Saga registers watchers on a runner. The root saga of a session is the set
// of sagas passed to Run.
type Saga func(r *Runner)

type mode int

const (
	modeLatest mode = iota + 1
	modeEvery
)

type watcher struct {
	name    string
	pattern action.Type
	mode    mode
	worker  Worker
	current *Task
}

// Runner is the effects orchestrator. It implements store.Observer.
//
// Thread-safety: all exported methods are safe for concurrent use.
type Runner struct {
	store   *store.Store
	ids     TaskIDGenerator
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Collectors

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	watchers map[action.Type][]*watcher
	names    map[string]bool
	active   int
	idle     chan struct{}
	stopped  bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithIDGenerator sets the task id generator. Default: UUIDv7Generator.
func WithIDGenerator(g TaskIDGenerator) Option {
	return func(r *Runner) {
		if g != nil {
			r.ids = g
		}
	}
}

// WithClock sets the time source used by Effects.Delay. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records task outcomes on c.
func WithMetrics(c *metrics.Collectors) Option {
	return func(r *Runner) {
		r.metrics = c
	}
}

// NewRunner creates a runner and registers it as an observer of st.
func NewRunner(st *store.Store, opts ...Option) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	r := &Runner{
		store:    st,
		ids:      UUIDv7Generator{},
		clock:    SystemClock{},
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		watchers: make(map[action.Type][]*watcher),
		names:    make(map[string]bool),
		idle:     idle,
	}
	for _, opt := range opts {
		opt(r)
	}

	st.AddObserver(r)
	return r
}

// Run registers every saga.
func (r *Runner) Run(sagas ...Saga) {
	for _, s := range sagas {
		s(r)
	}
}

// TakeLatest registers a watcher that runs w for each pattern action,
// cancelling the previous run of the same watcher first. It reports false if
// a watcher with the same name already exists.
func (r *Runner) TakeLatest(pattern action.Type, name string, w Worker) bool {
	return r.register(pattern, name, modeLatest, w)
}

// TakeEvery registers a watcher that runs w for each pattern action without
// cancelling earlier runs. It reports false if name is taken.
func (r *Runner) TakeEvery(pattern action.Type, name string, w Worker) bool {
	return r.register(pattern, name, modeEvery, w)
}

func (r *Runner) register(pattern action.Type, name string, m mode, w Worker) bool {
	if w == nil || name == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.names[name] || r.stopped {
		return false
	}
	r.names[name] = true
	r.watchers[pattern] = append(r.watchers[pattern], &watcher{
		name:    name,
		pattern: pattern,
		mode:    m,
		worker:  w,
	})
	r.logger.Debug("watcher registered", "watcher", name, "pattern", pattern)
	return true
}

// HasWatcher reports whether a watcher called name is registered.
func (r *Runner) HasWatcher(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.names[name]
}

// Remove unregisters the watcher called name and cancels its current
// takeLatest task. takeEvery runs already started are left to finish. It
// reports false if no such watcher exists.
func (r *Runner) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.names[name] {
		return false
	}
	delete(r.names, name)
	for pattern, ws := range r.watchers {
		for i, w := range ws {
			if w.name != name {
				continue
			}
			if w.current != nil {
				w.current.cancel()
			}
			r.watchers[pattern] = append(ws[:i:i], ws[i+1:]...)
			if len(r.watchers[pattern]) == 0 {
				delete(r.watchers, pattern)
			}
			r.logger.Debug("watcher removed", "watcher", name, "pattern", pattern)
			return true
		}
	}
	return true
}

// Fork starts fn as a detached task attached to the runner's root context.
// It returns nil if the runner has been stopped.
func (r *Runner) Fork(name string, fn func(ctx context.Context, eff *Effects) error) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil
	}
	return r.spawnLocked(name, action.Action{}, func(ctx context.Context, eff *Effects, _ action.Action) error {
		return fn(ctx, eff)
	})
}

// Observe implements store.Observer. It runs under the store's dispatch lock.
func (r *Runner) Observe(a action.Action, _ *store.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	for _, w := range r.watchers[a.Type] {
		if w.mode == modeLatest && w.current != nil {
			r.logger.Debug("task superseded",
				"watcher", w.name,
				"task", w.current.ID,
				"by_seq", a.Seq,
			)
			w.current.cancel()
		}
		t := r.spawnLocked(w.name, a, w.worker)
		if w.mode == modeLatest {
			w.current = t
		}
	}
}

// spawnLocked must be called with mu held.
func (r *Runner) spawnLocked(name string, trigger action.Action, fn Worker) *Task {
	ctx, cancel := context.WithCancel(r.ctx)
	t := &Task{
		ID:      r.ids.Generate(),
		Watcher: name,
		Trigger: trigger,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	if r.active == 0 {
		r.idle = make(chan struct{})
	}
	r.active++
	r.metrics.TaskStarted()

	r.wg.Add(1)
	go r.execute(ctx, t, fn)
	return t
}

func (r *Runner) execute(ctx context.Context, t *Task, fn Worker) {
	defer r.wg.Done()

	start := time.Now()
	eff := &Effects{ctx: ctx, store: r.store, clock: r.clock, task: t}

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = &PanicError{Value: p, Stack: debug.Stack()}
			}
		}()
		return fn(ctx, eff, t.Trigger)
	}()

	outcome := metrics.OutcomeDone
	var pe *PanicError
	switch {
	case errors.As(err, &pe):
		outcome = metrics.OutcomePanicked
		r.logger.Error("workflow panicked",
			"watcher", t.Watcher,
			"task", t.ID,
			"panic", pe.Value,
			"stack", string(pe.Stack),
		)
	case ctx.Err() != nil:
		outcome = metrics.OutcomeCancelled
		r.logger.Debug("workflow cancelled", "watcher", t.Watcher, "task", t.ID)
	case err != nil:
		outcome = metrics.OutcomeFailed
		r.logger.Warn("workflow failed", "watcher", t.Watcher, "task", t.ID, "error", err)
	default:
		r.logger.Debug("workflow done", "watcher", t.Watcher, "task", t.ID)
	}

	t.err = err
	t.cancel()
	close(t.done)
	r.finish(t, outcome, time.Since(start))
}

func (r *Runner) finish(t *Task, outcome string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.watchers[t.Trigger.Type] {
		if w.current == t {
			w.current = nil
		}
	}
	r.active--
	if r.active == 0 {
		close(r.idle)
	}
	r.metrics.TaskFinished(t.Watcher, outcome, elapsed)
}

// Active returns the number of running tasks.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Settle blocks until no task is running or ctx is done. Tasks started while
// waiting extend the wait.
func (r *Runner) Settle(ctx context.Context) error {
	for {
		r.mu.Lock()
		if r.active == 0 {
			r.mu.Unlock()
			return nil
		}
		idle := r.idle
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}

// Stop cancels every task, waits for them to exit and ignores further actions.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
