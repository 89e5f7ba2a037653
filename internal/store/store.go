package store

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/metrics"
)

// ActionInit is dispatched once by New so every slice produces its initial value.
const ActionInit action.Type = "@@store/INIT"

// Observer is notified of every reduced action while the dispatch lock is held.
//
// Implementations MUST NOT block and MUST NOT dispatch synchronously; doing so
// deadlocks the store. Hand work off to a goroutine or a queue instead.
type Observer interface {
	Observe(a action.Action, next *State)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(a action.Action, next *State)

// Observe calls f.
func (f ObserverFunc) Observe(a action.Action, next *State) { f(a, next) }

// Store is the dispatch point for a session.
//
// Thread-safety model:
//   - Dispatch, DispatchContext: safe from any goroutine, serialised internally
//   - State: lock-free read of the latest published snapshot
//   - Subscribe, AddObserver: safe from any goroutine
type Store struct {
	mu        sync.Mutex // serialises reduce + observe
	reduce    RootReducer
	state     atomic.Pointer[State]
	clock     *Clock
	observers []Observer

	subsMu  sync.Mutex
	subs    map[int64]func(*State)
	nextSub int64

	logger  *slog.Logger
	metrics *metrics.Collectors
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records dispatch counts on c.
func WithMetrics(c *metrics.Collectors) Option {
	return func(s *Store) {
		s.metrics = c
	}
}

// WithClock sets the logical clock. Used to resume sequence numbers.
func WithClock(c *Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithObserver registers an observer before the init action is dispatched.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// New creates a store around reduce and dispatches ActionInit.
func New(reduce RootReducer, opts ...Option) *Store {
	s := &Store{
		reduce: reduce,
		clock:  NewClock(),
		subs:   make(map[int64]func(*State)),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Dispatch(action.Of(ActionInit))
	return s
}

// State returns the latest root state.
func (s *Store) State() *State {
	return s.state.Load()
}

// Clock returns the store's logical clock.
func (s *Store) Clock() *Clock {
	return s.clock
}

// Dispatch reduces a and returns it stamped with its sequence number.
func (s *Store) Dispatch(a action.Action) action.Action {
	stamped, _ := s.dispatch(nil, a)
	return stamped
}

// DispatchContext reduces a unless ctx is already done. The check happens
// under the dispatch lock, so once the owner of ctx has been cancelled no
// action of its can be reduced afterwards. The second result is false when
// the action was dropped.
func (s *Store) DispatchContext(ctx context.Context, a action.Action) (action.Action, bool) {
	return s.dispatch(ctx, a)
}

func (s *Store) dispatch(ctx context.Context, a action.Action) (action.Action, bool) {
	s.mu.Lock()

	if ctx != nil && ctx.Err() != nil {
		s.mu.Unlock()
		s.metrics.ActionDropped(string(a.Type))
		s.logger.Debug("action dropped", "type", a.Type, "task", a.TaskID)
		return a, false
	}

	a.Seq = s.clock.Next()
	prev := s.state.Load()
	next := s.reduce(prev, a)
	if next == nil {
		next = prev
	}
	s.state.Store(next)

	for _, o := range s.observers {
		o.Observe(a, next)
	}
	s.mu.Unlock()

	s.metrics.ActionDispatched(string(a.Type))

	for _, fn := range s.subscribers() {
		fn(next)
	}
	return a, true
}

// Subscribe registers fn to be called after every dispatch with the state
// that dispatch produced. Under concurrent dispatch, calls may arrive out of
// order; read State for the latest value. The returned function unsubscribes.
func (s *Store) Subscribe(fn func(*State)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) subscribers() []func(*State) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if len(s.subs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	// Registration order.
	slices.Sort(ids)
	out := make([]func(*State), len(ids))
	for i, id := range ids {
		out[i] = s.subs[id]
	}
	return out
}

// AddObserver registers o for all subsequent dispatches.
func (s *Store) AddObserver(o Observer) {
	if o == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// LogObserver returns an observer that logs every reduced action at debug level.
func LogObserver(l *slog.Logger) Observer {
	if l == nil {
		l = slog.Default()
	}
	return ObserverFunc(func(a action.Action, next *State) {
		l.Debug("action reduced",
			"type", a.Type,
			"seq", a.Seq,
			"task", a.TaskID,
			"slices", next.Len(),
		)
	})
}
