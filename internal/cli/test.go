package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/opsdesk/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern on the file name)
	GoldenDir string // overrides <scenario dir>/golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or ""
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r TestResult) String() string {
	var b strings.Builder
	for _, s := range r.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s", mark, s.Name)
		if s.Golden == "updated" {
			b.WriteString(" (golden updated)")
		}
		b.WriteByte('\n')
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	fmt.Fprintf(&b, "\nTest Summary: %d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
	if r.Failed == 0 && r.Total > 0 {
		b.WriteString("✓ All scenarios passed\n")
	}
	return b.String()
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>...",
		Short: "Run session scenarios",
		Long: `Run YAML session scenarios against an in-process mock API.

Each scenario's trace and final state are checked against its assertions.
When a golden file exists (<scenario dir>/golden/<name>.golden, or
<golden-dir>/<name>.golden) the trace must also match it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  opsdesk test ./scenarios
  opsdesk test ./scenarios --filter "login_*"
  opsdesk test ./scenarios --update
  opsdesk test ./scenarios/logout.yaml --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "directory holding golden files")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	f := opts.Formatter(cmd)

	files, err := harness.DiscoverScenarios(paths)
	var notFound *harness.ScenarioNotFoundError
	if errors.As(err, &notFound) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, notFound.Error(), nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to find scenarios", err)
	}
	files, err = filterScenarios(files, opts.Filter)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid filter pattern", err)
	}

	if len(files) == 0 {
		if f.Format == "json" {
			return f.Success(TestResult{Scenarios: []ScenarioResult{}})
		}
		return f.Success(MessageView{Message: "No scenarios found."})
	}

	cfg, err := opts.loadConfig(f)
	if err != nil {
		return err
	}
	suite := harness.RunSuite(cmd.Context(), files, harness.WithLogger(opts.Logger(cmd, cfg)))

	outcomes := make(map[string]harness.ScenarioOutcome, len(suite.Results))
	for _, o := range suite.Results {
		outcomes[o.Path] = o
	}
	failures := make(map[string]harness.ScenarioFailure, len(suite.Failures))
	for _, fl := range suite.Failures {
		failures[fl.Path] = fl
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, path := range files {
		var sr ScenarioResult
		if o, ok := outcomes[path]; ok {
			sr = checkScenario(opts, o)
		} else {
			fl := failures[path]
			name := fl.Name
			if name == "" {
				name = filepath.Base(path)
			}
			sr = ScenarioResult{Name: name, Path: path, Errors: []string{fl.Error}}
		}
		f.VerboseLog("%s: pass=%t", sr.Path, sr.Pass)

		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if result.Failed > 0 {
		msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
		if f.Format == "json" {
			if err := f.encode(CLIResponse{
				Status: "error",
				Data:   result,
				Error:  &CLIError{Code: ErrCodeTestFailed, Message: msg},
			}); err != nil {
				return err
			}
		} else if err := f.Success(result); err != nil {
			return err
		}
		// Test failures = exit code 1
		return NewExitError(ExitFailure, msg)
	}
	return f.Success(result)
}

// checkScenario combines a run's assertions with its golden file.
func checkScenario(opts *TestOptions, o harness.ScenarioOutcome) ScenarioResult {
	sr := ScenarioResult{
		Name:   o.Name,
		Path:   o.Path,
		Pass:   o.Result.Pass,
		Errors: o.Result.Errors,
	}
	trace := harness.FormatTrace(o.Name, o.Result.Trace)
	goldenPath := goldenFilePath(opts.GoldenDir, o.Path, o.Name)

	if opts.Update {
		if err := writeGolden(goldenPath, trace); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return sr
		}
		sr.Golden = "updated"
		return sr
	}

	want, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		// No golden file - assertions only.
	case err != nil:
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to read golden file: %v", err))
	case !bytes.Equal(want, trace):
		sr.Pass = false
		sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
	default:
		sr.Golden = "match"
	}
	return sr
}

// filterScenarios keeps files whose base name without extension matches
// pattern. An empty pattern keeps everything.
func filterScenarios(files []string, pattern string) ([]string, error) {
	if pattern == "" {
		return files, nil
	}
	var out []string
	for _, path := range files {
		base := filepath.Base(path)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, path)
		}
	}
	return out, nil
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(goldenDir, scenarioFile, name string) string {
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(scenarioFile), "golden")
	}
	return filepath.Join(goldenDir, name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}
