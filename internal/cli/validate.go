package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/opsdesk/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	File    string         `json:"file"`
	Valid   bool           `json:"valid"`
	Errors  []config.Issue `json:"errors,omitempty"`
	Backend string         `json:"backend,omitempty"`
	BaseURL string         `json:"base_url,omitempty"`
}

func (r ValidationResult) String() string {
	if !r.Valid {
		var b strings.Builder
		fmt.Fprintf(&b, "✗ %s has %d problem(s)\n", r.File, len(r.Errors))
		for _, is := range r.Errors {
			fmt.Fprintf(&b, "  %s\n", is)
		}
		return b.String()
	}
	return fmt.Sprintf("✓ %s is valid (backend %s, api %s)\n", r.File, r.Backend, r.BaseURL)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.cue>",
		Short: "Validate a config file",
		Long: `Validate an opsdesk CUE config file against the built-in schema.

Reports every problem with its position. Unknown fields, bad durations
and unsupported backends are errors.

Exit codes:
  0 - Valid
  1 - The file has problems
  2 - The file cannot be read`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.Formatter(cmd)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("config file not found: %s", path), nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to read config file", err)
	}
	f.VerboseLog("validating %s (%d bytes)", path, len(data))

	cfg, err := config.Parse(data, path)
	var cerr *config.Error
	switch {
	case errors.As(err, &cerr):
		result := ValidationResult{File: path, Errors: cerr.Issues}
		if f.Format == "json" {
			if err := f.Error(ErrCodeConfig, "invalid config", result); err != nil {
				return err
			}
		} else if err := f.Success(result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d config problem(s)", len(cerr.Issues)))
	case err != nil:
		return f.Fail(ExitFailure, ErrCodeConfig, "invalid config", err)
	}

	return f.Success(ValidationResult{
		File:    path,
		Valid:   true,
		Backend: cfg.Persist.Backend,
		BaseURL: cfg.API.BaseURL,
	})
}
