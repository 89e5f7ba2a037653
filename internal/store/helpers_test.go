package store

import "github.com/roach88/opsdesk/internal/action"

// counter is a slice reducer over *int that increments on "test/INC".
func counter(state any, a action.Action) any {
	cur, _ := state.(*int)
	if cur == nil {
		zero := 0
		cur = &zero
	}
	if a.Type != "test/INC" {
		return cur
	}
	next := *cur + 1
	return &next
}

// constant returns a reducer whose slice is always tag.
func constant(tag string) Reducer {
	return func(state any, a action.Action) any {
		return tag
	}
}

func intSlice(s *State, key string) int {
	v, _ := s.Slice(key).(*int)
	if v == nil {
		return -1
	}
	return *v
}
