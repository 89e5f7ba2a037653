// Package hr is the lazily mounted HR feature module.
//
// Mounting injects the module's slices into the running store through the
// session's ReducerManager and registers its workflow on the session's saga
// Runner. Mounting twice is harmless: the manager keeps the first reducer
// for each key and the runner refuses a second watcher with the same name.
package hr

import (
	"context"
	"log/slog"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/auth"
	"github.com/roach88/opsdesk/internal/saga"
	"github.com/roach88/opsdesk/internal/shell"
	"github.com/roach88/opsdesk/internal/store"
)

// Slice keys owned by the module.
const (
	AuthKey          = "hrAuth"
	MiscellaneousKey = "hrMiscellaneous"
	NavigationKey    = "hrNavigation"
)

// Action types.
const (
	TypeMounted   action.Type = "hr/MOUNTED"
	TypeUnmounted action.Type = "hr/UNMOUNTED"
	TypeNavigate  action.Type = "hr/NAVIGATE"
)

// WatcherResetNavigation names the module's workflow.
const WatcherResetNavigation = "hr.resetNavigation"

// Navigation is the hrNavigation slice.
type Navigation struct {
	BasePath string `json:"basePath"`
	Current  string `json:"current"`
}

// Navigate moves to path, resolved against the module base. An empty path
// returns to the base.
func Navigate(path string) action.Action {
	return action.New(TypeNavigate, path)
}

// NavigationReducer returns the hrNavigation reducer for base.
func NavigationReducer(base string) store.Reducer {
	nb := NormalizeBase(base)
	initial := &Navigation{BasePath: nb, Current: nb}

	return func(state any, a action.Action) any {
		s, ok := state.(*Navigation)
		if !ok || s == nil {
			s = initial
		}
		if !a.Is(TypeNavigate) {
			return s
		}
		path, _ := action.PayloadAs[string](a)
		next := nb
		if path != "" {
			next = BuildPath(nb, path)
		}
		if next == s.Current {
			return s
		}
		return &Navigation{BasePath: nb, Current: next}
	}
}

// SelectNavigation returns the hrNavigation slice, or nil when unmounted.
func SelectNavigation(root *store.State) *Navigation {
	n, _ := root.Slice(NavigationKey).(*Navigation)
	return n
}

// SelectCurrentPath returns the current module path, or "" when unmounted.
func SelectCurrentPath(root *store.State) string {
	if n := SelectNavigation(root); n != nil {
		return n.Current
	}
	return ""
}

// SelectAuth returns the module's copy of the auth slice, or nil.
func SelectAuth(root *store.State) *auth.State {
	s, _ := root.Slice(AuthKey).(*auth.State)
	return s
}

// Module mounts and unmounts the HR slices and workflow.
type Module struct {
	st     *store.Store
	mgr    *store.ReducerManager
	runner *saga.Runner
	base   string
	logger *slog.Logger
}

// New creates an unmounted module rooted at basePath.
func New(st *store.Store, mgr *store.ReducerManager, runner *saga.Runner, basePath string, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{
		st:     st,
		mgr:    mgr,
		runner: runner,
		base:   NormalizeBase(basePath),
		logger: logger,
	}
}

// BasePath returns the normalised module base.
func (m *Module) BasePath() string {
	return m.base
}

// Mount injects the module. It reports whether anything was registered.
func (m *Module) Mount() bool {
	added := false
	added = m.mgr.Add(AuthKey, auth.Reducer) || added
	added = m.mgr.Add(MiscellaneousKey, shell.Reducer) || added
	added = m.mgr.Add(NavigationKey, NavigationReducer(m.base)) || added
	added = m.runner.TakeEvery(auth.TypeLogoutSuccess, WatcherResetNavigation, m.resetNavigation) || added

	if added {
		// Materialise the new slices right away instead of on the next
		// unrelated action.
		m.st.Dispatch(action.New(TypeMounted, m.base))
		m.logger.Info("hr module mounted", "base", m.base)
	}
	return added
}

// Unmount removes the module's slices and workflow. Core slices are never
// touched.
func (m *Module) Unmount() {
	removed := m.runner.Remove(WatcherResetNavigation)
	for _, key := range []string{AuthKey, MiscellaneousKey, NavigationKey} {
		removed = m.mgr.Remove(key) || removed
	}
	if removed {
		m.st.Dispatch(action.New(TypeUnmounted, m.base))
		m.logger.Info("hr module unmounted", "base", m.base)
	}
}

// Mounted reports whether the module's navigation slice is registered.
func (m *Module) Mounted() bool {
	return m.mgr.Has(NavigationKey)
}

func (m *Module) resetNavigation(_ context.Context, eff *saga.Effects, _ action.Action) error {
	if saga.Select(eff, SelectCurrentPath) == m.base {
		return nil
	}
	eff.Put(Navigate(""))
	return nil
}
