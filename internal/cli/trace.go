package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/opsdesk/internal/config"
	"github.com/roach88/opsdesk/internal/persist"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	RunID string
	Type  string // optional - filter to one action type
	Limit int
}

// TraceResult is the journal of one run.
type TraceResult struct {
	RunID   string          `json:"run_id"`
	Entries []persist.Entry `json:"entries"`
}

func (r TraceResult) String() string {
	if r.RunID == "" {
		return "Journal is empty.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%d actions)\n", r.RunID, len(r.Entries))
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "%6d  %s", e.Seq, e.Type)
		if e.TaskID != "" {
			fmt.Fprintf(&b, "  [%s]", e.TaskID)
		}
		if len(e.Payload) > 0 {
			fmt.Fprintf(&b, "  %s", e.Payload)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the action journal of a run",
		Long: `Print the actions journaled by an earlier command.

Every command that opens a session with the sqlite backend records the
actions it dispatched under a run id. Credentials are redacted. Without
--run the most recent run is shown.

Examples:
  opsdesk trace
  opsdesk trace --limit 10
  opsdesk trace --run 0192f0c4-... --type auth/LOGIN_START --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: most recent run)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "filter to one action type")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "show at most this many of the run's last actions (0 = all)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	f := opts.Formatter(cmd)
	cfg, err := opts.loadConfig(f)
	if err != nil {
		return err
	}
	if cfg.Persist.Backend != config.BackendSQLite {
		return f.Fail(ExitCommandError, ErrCodeJournal,
			fmt.Sprintf("the action journal needs the sqlite backend, not %q", cfg.Persist.Backend), nil)
	}

	db, err := persist.OpenSQLite(cfg.Persist.Path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStorage, "failed to open database", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	runID := opts.RunID
	if runID == "" {
		runID, err = db.LastRunID(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeJournal, "failed to read journal", err)
		}
	}

	result := TraceResult{RunID: runID, Entries: []persist.Entry{}}
	if runID == "" {
		return f.Success(result)
	}

	entries, err := db.Entries(ctx, runID, opts.Limit)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeJournal, "failed to read journal", err)
	}
	if len(entries) == 0 {
		return f.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("no journal entries for run %s", runID), nil)
	}
	for _, e := range entries {
		if opts.Type == "" || e.Type == opts.Type {
			result.Entries = append(result.Entries, e)
		}
	}
	return f.Success(result)
}
