// Package selector builds memoised read functions over the root state.
//
// A selector is split into an input function, which extracts something cheap
// and comparable from the state (normally a slice pointer), and a projection
// computed from that input. The projection is only recomputed when the input
// changes identity, so repeated reads of an unchanged slice return the exact
// value computed before.
package selector

import (
	"sync"

	"github.com/roach88/opsdesk/internal/store"
)

// Selector reads a derived value from the root state.
type Selector[R any] func(*store.State) R

// Create returns a selector that memoises project on the last input.
//
// Thread-safety: the returned selector is safe for concurrent use.
func Create[I comparable, R any](input func(*store.State) I, project func(I) R) Selector[R] {
	var (
		mu       sync.Mutex
		computed bool
		lastIn   I
		lastOut  R
	)

	return func(s *store.State) R {
		in := input(s)

		mu.Lock()
		defer mu.Unlock()

		if computed && in == lastIn {
			return lastOut
		}
		lastOut = project(in)
		lastIn = in
		computed = true
		return lastOut
	}
}

// Slice returns an input function that reads key as type T. A missing slice
// or a value of another type yields the zero value of T.
func Slice[T any](key string) func(*store.State) T {
	return func(s *store.State) T {
		v, _ := s.Slice(key).(T)
		return v
	}
}
