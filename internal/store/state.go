package store

import (
	"reflect"
	"sort"

	"github.com/roach88/opsdesk/internal/action"
)

// Reducer computes the next value of one slice.
//
// state is nil the first time the reducer sees an action; the reducer returns
// its initial value then. For an action it does not handle it returns state
// unchanged.
type Reducer func(state any, a action.Action) any

// RootReducer computes the next root State.
type RootReducer func(state *State, a action.Action) *State

// State is an immutable snapshot of every slice, keyed by slice name.
//
// A nil *State is valid and empty.
type State struct {
	slices map[string]any
}

// NewState creates a State holding a copy of slices.
func NewState(slices map[string]any) *State {
	m := make(map[string]any, len(slices))
	for k, v := range slices {
		m[k] = v
	}
	return &State{slices: m}
}

// Slice returns the value stored under key, or nil.
func (s *State) Slice(key string) any {
	if s == nil {
		return nil
	}
	return s.slices[key]
}

// Has reports whether key is present.
func (s *State) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.slices[key]
	return ok
}

// Keys returns the slice keys in sorted order.
func (s *State) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.slices))
	for k := range s.slices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of slices.
func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.slices)
}

// Map returns a copy of the slices.
func (s *State) Map() map[string]any {
	m := make(map[string]any, s.Len())
	if s == nil {
		return m
	}
	for k, v := range s.slices {
		m[k] = v
	}
	return m
}

// Combine builds a root reducer from slice reducers.
//
// Each reducer is called with its own slice in sorted key order. Keys present
// in the state but absent from reducers are dropped. If every slice comes back
// identical and no key was added or dropped, the input pointer is returned.
//
// reducers is copied; later changes to the map have no effect.
func Combine(reducers map[string]Reducer) RootReducer {
	keys := make([]string, 0, len(reducers))
	rs := make(map[string]Reducer, len(reducers))
	for k, r := range reducers {
		if k == "" || r == nil {
			continue
		}
		keys = append(keys, k)
		rs[k] = r
	}
	sort.Strings(keys)

	return func(state *State, a action.Action) *State {
		next := make(map[string]any, len(keys))
		changed := state == nil || state.Len() != len(keys)

		for _, k := range keys {
			prev := state.Slice(k)
			v := rs[k](prev, a)
			next[k] = v
			if !changed && (!state.Has(k) || !Same(prev, v)) {
				changed = true
			}
		}

		if !changed {
			return state
		}
		return &State{slices: next}
	}
}

// Same reports whether two slice values are identical.
//
// Pointers, strings, numbers and other comparable values compare with ==.
// Values of non-comparable types are never the same, so reducers over such
// types always count as a change.
func Same(a, b any) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	// Comparable types can still hold non-comparable values in interface fields.
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
