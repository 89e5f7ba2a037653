// Package action defines the message type that flows through the store.
//
// An Action is a plain value: a type tag plus an optional payload. The store
// stamps Seq when the action is reduced; the saga runner stamps TaskID on
// actions put by a workflow so traces can attribute them.
package action

// Type identifies an action kind. Feature packages namespace their types
// with a "<slice>/" prefix.
type Type string

// Action is a discrete message describing a state change.
type Action struct {
	Type    Type   `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Seq     int64  `json:"seq,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
}

// New creates an action with the given type and payload.
func New(t Type, payload any) Action {
	return Action{Type: t, Payload: payload}
}

// Of creates an action without a payload.
func Of(t Type) Action {
	return Action{Type: t}
}

// Is reports whether a has type t.
func (a Action) Is(t Type) bool {
	return a.Type == t
}

// PayloadAs returns the payload as T. The second result is false when the
// payload is absent or holds another type.
func PayloadAs[T any](a Action) (T, bool) {
	v, ok := a.Payload.(T)
	return v, ok
}
