package harness

import (
	"fmt"
	"strings"
)

// TraceEvent is one reduced action as seen by the harness recorder.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`
	// Task is the id of the workflow task that put the action, or "" for
	// actions dispatched by the scenario itself.
	Task string `json:"task,omitempty"`
}

// String renders the event as one golden-file line.
func (e TraceEvent) String() string {
	if e.Task == "" {
		return fmt.Sprintf("%d %s", e.Seq, e.Type)
	}
	return fmt.Sprintf("%d %s %s", e.Seq, e.Type, e.Task)
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace lists every reduced action except the store's init action, in
	// sequence order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed assertion.
	Errors []string `json:"errors,omitempty"`

	// State holds the value of every probe at the end of the run.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// FormatTrace renders a trace the way golden files store it: a header line
// naming the scenario, then one line per event.
func FormatTrace(name string, trace []TraceEvent) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", name)
	for _, e := range trace {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
