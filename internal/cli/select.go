package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/opsdesk/internal/auth"
	"github.com/roach88/opsdesk/internal/model"
	"github.com/roach88/opsdesk/internal/session"
	"github.com/roach88/opsdesk/internal/store"
)

// SelectOptions holds flags for the select command.
type SelectOptions struct {
	*RootOptions
	Branch int64
}

// NewSelectCommand creates the select command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SelectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "select <institution-id>",
		Short: "Select an attached institution and branch",
		Long: `Select one of the institutions attached to the logged-in user.

Without --branch the institution's first branch is selected. The selected
till is cleared. Nothing changes when the institution is not attached or
the branch belongs to another institution.

Examples:
  opsdesk select 20
  opsdesk select 10 --branch 101`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return opts.Formatter(cmd).Fail(ExitCommandError, ErrCodeSelection,
					fmt.Sprintf("invalid institution id %q", args[0]), err)
			}
			return opts.withSession(cmd, func(_ context.Context, s *session.Session, f *OutputFormatter) error {
				if err := requireLogin(s, f); err != nil {
					return err
				}
				err := auth.SelectInstitution(s.Store, id, opts.Branch)
				switch {
				case errors.Is(err, auth.ErrInstitutionNotAttached), errors.Is(err, auth.ErrBranchNotInInstitution):
					return f.Fail(ExitFailure, ErrCodeSelection, err.Error(), err)
				case err != nil:
					return f.Fail(ExitCommandError, ErrCodeGeneric, "selection failed", err)
				}
				return f.Success(newSessionView(s.State()))
			})
		},
	}

	cmd.Flags().Int64Var(&opts.Branch, "branch", 0, "branch id (default: the institution's first branch)")

	return cmd
}

// GrantOptions holds flags for the grant command.
type GrantOptions struct {
	*RootOptions
	TTL time.Duration
}

// GrantView describes a temporary permission grant.
type GrantView struct {
	Permissions []string  `json:"permissions"`
	TTL         string    `json:"ttl"`
	ExpiresAt   time.Time `json:"expires_at"`
	Expired     bool      `json:"expired"`
}

func (g GrantView) String() string {
	return fmt.Sprintf("Granted %s until %s\n", strings.Join(g.Permissions, ", "), g.ExpiresAt.Format(time.TimeOnly))
}

// NewGrantCommand creates the grant command.
func NewGrantCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GrantOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "grant <permission-code>...",
		Short: "Grant temporary permissions for a limited time",
		Long: `Grant temporary permissions to the logged-in user.

The grant lives in memory only: the command keeps the session open until
the grant expires or the process is interrupted. Without --ttl the
auth.temporary_permission_ttl setting applies.

Examples:
  opsdesk grant sales.refund sales.void --ttl 10m`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session.Session, f *OutputFormatter) error {
				if err := requireLogin(s, f); err != nil {
					return err
				}
				return runGrant(ctx, opts, s, f, args)
			})
		},
	}

	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "how long the grant lasts (default from config)")

	return cmd
}

func runGrant(ctx context.Context, opts *GrantOptions, s *session.Session, f *OutputFormatter, codes []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.Config.Auth.TemporaryPermissionTTL
	}
	perms := make([]model.Permission, len(codes))
	for i, code := range codes {
		perms[i] = model.Permission{Code: code}
	}

	granted := make(chan struct{})
	var once sync.Once
	unsubscribe := s.Store.Subscribe(func(root *store.State) {
		if len(auth.SelectTemporaryPermissions(root)) > 0 {
			once.Do(func() { close(granted) })
		}
	})
	defer unsubscribe()

	s.Dispatch(auth.GrantTemporaryPermissions(perms, ttl))
	select {
	case <-granted:
	case <-ctx.Done():
		return f.Fail(ExitCommandError, ErrCodeGeneric, "grant interrupted", ctx.Err())
	}

	view := GrantView{
		Permissions: codes,
		TTL:         ttl.String(),
		ExpiresAt:   time.Now().Add(ttl),
	}
	if f.Format != "json" {
		if err := f.Success(view); err != nil {
			return err
		}
	}

	if err := s.Settle(ctx); err != nil {
		f.VerboseLog("interrupted before expiry: %v", err)
		if f.Format == "json" {
			return f.Success(view)
		}
		return nil
	}

	view.Expired = len(auth.SelectTemporaryPermissions(s.State())) == 0
	if f.Format == "json" {
		return f.Success(view)
	}
	return f.Success(MessageView{Message: "Temporary permissions expired"})
}
