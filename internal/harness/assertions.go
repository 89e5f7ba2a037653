package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/opsdesk/internal/auth"
	"github.com/roach88/opsdesk/internal/hr"
	"github.com/roach88/opsdesk/internal/shell"
	"github.com/roach88/opsdesk/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}
	return buf.String()
}

// Probes is what final_state assertions can read at the end of a run.
type Probes struct {
	State      *store.State
	HRMounted  bool
	RefreshAPI int
}

type probe func(p Probes) any

// probes maps final_state keys to the value they read.
var probes = map[string]probe{
	"authenticated": func(p Probes) any { return auth.SelectIsAuthenticated(p.State) },
	"access_token":  func(p Probes) any { return auth.SelectAccessToken(p.State) },
	"refresh_token": func(p Probes) any { return auth.SelectRefreshToken(p.State) },
	"user_id": func(p Probes) any {
		if u := auth.SelectUser(p.State); u != nil {
			return u.ID
		}
		return int64(0)
	},
	"display_name": func(p Probes) any { return auth.SelectUserDisplayName(p.State) },
	"institution": func(p Probes) any {
		if inst := auth.SelectSelectedInstitution(p.State); inst != nil {
			return inst.ID
		}
		return int64(0)
	},
	"branch": func(p Probes) any {
		if b := auth.SelectSelectedBranch(p.State); b != nil {
			return b.ID
		}
		return int64(0)
	},
	"till": func(p Probes) any {
		if t := auth.SelectSelectedTill(p.State); t != nil {
			return t.ID
		}
		return int64(0)
	},
	"attached_institutions": func(p Probes) any { return len(auth.SelectAttachedInstitutions(p.State)) },
	"temporary_permissions": func(p Probes) any {
		perms := auth.SelectTemporaryPermissions(p.State)
		codes := make([]string, 0, len(perms))
		for _, perm := range perms {
			codes = append(codes, perm.Code)
		}
		return codes
	},
	"auth_error": func(p Probes) any {
		if e := auth.SelectAuthError(p.State); e != nil {
			return string(e.CustomCode)
		}
		return ""
	},
	"loading":        func(p Probes) any { return auth.SelectUserLoading(p.State) },
	"sidebar_opened": func(p Probes) any { return shell.SelectSidebarOpened(p.State) },
	"theme_color": func(p Probes) any {
		if inst := auth.SelectSelectedInstitution(p.State); inst != nil && inst.ThemeColor != nil {
			return *inst.ThemeColor
		}
		return ""
	},
	"hr_mounted":    func(p Probes) any { return p.HRMounted },
	"hr_path":       func(p Probes) any { return hr.SelectCurrentPath(p.State) },
	"refresh_calls": func(p Probes) any { return p.RefreshAPI },
}

// ProbeNames returns every final_state key in sorted order.
func ProbeNames() []string {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadProbes evaluates every probe.
func ReadProbes(p Probes) map[string]any {
	out := make(map[string]any, len(probes))
	for name, fn := range probes {
		out[name] = fn(p)
	}
	return out
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Type != a.Action {
			continue
		}
		switch {
		case a.Task == TaskAny && event.Task == "":
		case a.Task == TaskNone && event.Task != "":
		default:
			return nil
		}
	}

	expected := fmt.Sprintf("action %s", a.Action)
	if a.Task != "" {
		expected += fmt.Sprintf(" (task: %s)", a.Task)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that each action's first occurrence comes after
// the previous action's first occurrence.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if _, seen := positions[event.Type]; !seen {
			positions[event.Type] = i + 1
		}
	}

	for _, want := range a.Actions {
		if positions[want] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   fmt.Sprintf("missing action: %s", want),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Actions); i++ {
		prev, curr := a.Actions[i-1], a.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == a.Action {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks every expected probe. Keys are visited in sorted
// order so the first reported mismatch is stable.
func assertFinalState(state map[string]any, a Assertion) error {
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		actual, ok := state[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("probe %q", key),
				Actual:   "unknown probe",
			}
		}
		expected := a.Expect[key]
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s = %v", key, expected),
				Actual:   fmt.Sprintf("%s = %v", key, actual),
			}
		}
	}
	return nil
}

// stateValuesEqual compares a YAML-decoded expectation with a probe value.
// Integers of any width compare by value and string slices compare with
// YAML sequences.
func stateValuesEqual(expected, actual any) bool {
	return reflect.DeepEqual(normalize(expected), normalize(actual))
}

func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint64:
		return int64(val)
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// EvaluateAssertions checks assertions against the result's trace and state
// and returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result.State, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
