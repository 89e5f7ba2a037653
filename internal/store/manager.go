package store

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/opsdesk/internal/action"
)

// ReducerManager owns the registry of slice reducers and the combined root
// reducer built from it.
//
// The keys passed to NewReducerManager are core keys: they can never be
// removed. Add is first-write-wins. Every successful Add or Remove builds a
// new combined reducer and swaps it in atomically, so the next reduced action
// sees the new registry.
//
// Misuse (empty key, nil reducer, duplicate add, removing a core or unknown
// key) is a silent no-op.
//
// Thread-safety: all methods are safe for concurrent use.
type ReducerManager struct {
	mu       sync.Mutex
	reducers map[string]Reducer
	core     map[string]bool
	combined atomic.Pointer[RootReducer]
	logger   *slog.Logger
}

// NewReducerManager creates a manager seeded with the core reducers.
func NewReducerManager(core map[string]Reducer) *ReducerManager {
	m := &ReducerManager{
		reducers: make(map[string]Reducer, len(core)),
		core:     make(map[string]bool, len(core)),
		logger:   slog.Default(),
	}
	for k, r := range core {
		if k == "" || r == nil {
			continue
		}
		m.reducers[k] = r
		m.core[k] = true
	}
	m.rebuild()
	return m
}

// SetLogger replaces the logger used for registry changes.
func (m *ReducerManager) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.logger = l
	m.mu.Unlock()
}

// ReducerMap returns a snapshot copy of the registry.
func (m *ReducerManager) ReducerMap() map[string]Reducer {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Reducer, len(m.reducers))
	for k, r := range m.reducers {
		out[k] = r
	}
	return out
}

// Has reports whether key is registered.
func (m *ReducerManager) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.reducers[key]
	return ok
}

// IsCore reports whether key is a core key.
func (m *ReducerManager) IsCore(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.core[key]
}

// Reduce runs the current combined reducer. It has the RootReducer signature
// so it can be handed to New directly or wrapped first.
func (m *ReducerManager) Reduce(state *State, a action.Action) *State {
	return (*m.combined.Load())(state, a)
}

// Add registers r under key. It reports whether the registry changed.
func (m *ReducerManager) Add(key string, r Reducer) bool {
	if key == "" || r == nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reducers[key]; exists {
		return false
	}
	m.reducers[key] = r
	m.rebuild()
	m.logger.Debug("reducer added", "key", key, "count", len(m.reducers))
	return true
}

// Remove unregisters key. Core keys are refused. It reports whether the
// registry changed.
func (m *ReducerManager) Remove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.core[key] {
		return false
	}
	if _, exists := m.reducers[key]; !exists {
		return false
	}
	delete(m.reducers, key)
	m.rebuild()
	m.logger.Debug("reducer removed", "key", key, "count", len(m.reducers))
	return true
}

// rebuild must be called with mu held.
func (m *ReducerManager) rebuild() {
	combined := Combine(m.reducers)
	m.combined.Store(&combined)
}
