package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one scripted session run.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description says what the scenario checks.
	Description string `yaml:"description"`

	// Fixture is an optional mock API fixture file. LoadScenario resolves it
	// relative to the scenario file. Empty means mockapi.DefaultFixture.
	Fixture string `yaml:"fixture,omitempty"`

	// HR configures the HR module of the session under test.
	HR HRSettings `yaml:"hr,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// HRSettings mirrors the hr section of the session configuration.
type HRSettings struct {
	Enabled  bool   `yaml:"enabled"`
	BasePath string `yaml:"base_path,omitempty"`
}

// Step is one scenario step. Do names the step kind; Args depend on it.
type Step struct {
	Do   string         `yaml:"do"`
	Args map[string]any `yaml:"args,omitempty"`
}

// Step kinds.
const (
	StepLogin               = "login"
	StepLogout              = "logout"
	StepRefresh             = "refresh"
	StepDispatch            = "dispatch"
	StepSelect              = "select"
	StepGrant               = "grant"
	StepAdvance             = "advance"
	StepSettle              = "settle"
	StepExpireAccessTokens  = "expire_access_tokens"
	StepRevokeRefreshTokens = "revoke_refresh_tokens"
	StepMountHR             = "mount_hr"
	StepUnmountHR           = "unmount_hr"
	StepNavigate            = "navigate"
)

// requiredArgs lists the arguments each step kind must carry.
var requiredArgs = map[string][]string{
	StepLogin:               {"email", "password"},
	StepLogout:              nil,
	StepRefresh:             nil,
	StepDispatch:            {"type"},
	StepSelect:              {"institution"},
	StepGrant:               {"permissions"},
	StepAdvance:             {"duration"},
	StepSettle:              nil,
	StepExpireAccessTokens:  nil,
	StepRevokeRefreshTokens: nil,
	StepMountHR:             nil,
	StepUnmountHR:           nil,
	StepNavigate:            {"path"},
}

// Assertion checks the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is the action type for trace_contains and trace_count.
	Action string `yaml:"action,omitempty"`

	// Task restricts trace_contains to actions put by a workflow ("any") or
	// dispatched directly ("none"). Empty matches both.
	Task string `yaml:"task,omitempty"`

	// Count is the expected number of occurrences for trace_count.
	Count int `yaml:"count,omitempty"`

	// Actions is the expected order for trace_order.
	Actions []string `yaml:"actions,omitempty"`

	// Expect maps probe names to expected values for final_state.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Task filters for trace_contains.
const (
	TaskAny  = "any"
	TaskNone = "none"
)

// LoadScenario reads, parses and validates a scenario file. Unknown fields
// are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Fixture != "" && !filepath.IsAbs(s.Fixture) {
		s.Fixture = filepath.Join(filepath.Dir(path), s.Fixture)
	}
	if s.Fixture != "" {
		if _, err := os.Stat(s.Fixture); err != nil {
			return nil, fmt.Errorf("invalid scenario: fixture file not found: %s", s.Fixture)
		}
	}
	return s, nil
}

// ParseScenario parses and validates scenario YAML. Fixture paths are left
// as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		required, ok := requiredArgs[step.Do]
		if !ok {
			return fmt.Errorf("steps[%d]: unknown step %q", i, step.Do)
		}
		for _, key := range required {
			if _, present := step.Args[key]; !present {
				return fmt.Errorf("steps[%d]: %s requires arg %q", i, step.Do, key)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
		if a.Task != "" && a.Task != TaskAny && a.Task != TaskNone {
			return fmt.Errorf("assertions[%d]: task must be %q or %q", index, TaskAny, TaskNone)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		for key := range a.Expect {
			if _, ok := probes[key]; !ok {
				return fmt.Errorf("assertions[%d]: unknown state probe %q", index, key)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
