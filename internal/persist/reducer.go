package persist

import (
	"maps"
	"slices"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/store"
)

// ActionRehydrate carries the stored slices into the store.
const ActionRehydrate action.Type = "persist/REHYDRATE"

// Rehydrated is the REHYDRATE payload. Slices is empty when nothing was
// stored, the stored version did not match, or reading failed (Err).
type Rehydrated struct {
	Key    string
	Slices map[string]any
	Err    error
}

// Redacted lists the restored slice keys instead of their contents, which
// hold the session tokens.
func (r Rehydrated) Redacted() any {
	out := struct {
		Key    string   `json:"key"`
		Slices []string `json:"slices"`
		Err    string   `json:"error,omitempty"`
	}{Key: r.Key, Slices: slices.Sorted(maps.Keys(r.Slices))}
	if r.Err != nil {
		out.Err = r.Err.Error()
	}
	return out
}

// Rehydrate builds a REHYDRATE action.
func Rehydrate(r Rehydrated) action.Action {
	return action.New(ActionRehydrate, r)
}

// WrapReducer returns a root reducer that merges REHYDRATE payloads over the
// result of next. Only slices already present in the state are replaced, so a
// snapshot cannot resurrect a slice whose reducer is not registered.
func WrapReducer(next store.RootReducer) store.RootReducer {
	return func(state *store.State, a action.Action) *store.State {
		out := next(state, a)
		if !a.Is(ActionRehydrate) {
			return out
		}
		r, ok := action.PayloadAs[Rehydrated](a)
		if !ok || len(r.Slices) == 0 {
			return out
		}

		m := out.Map()
		changed := false
		for k, v := range r.Slices {
			if _, exists := m[k]; exists && v != nil {
				m[k] = v
				changed = true
			}
		}
		if !changed {
			return out
		}
		return store.NewState(m)
	}
}
