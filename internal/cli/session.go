package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/opsdesk/internal/auth"
	"github.com/roach88/opsdesk/internal/model"
	"github.com/roach88/opsdesk/internal/session"
)

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	Email    string
	Password string
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Long: `Log in against the operations API.

Runs the login workflow: tokens are stored, the user and their attached
institutions are loaded and the default institution and branch are
selected. The session is written to the configured store.

Exit codes:
  0 - Logged in
  1 - Login rejected by the API
  2 - Command error (config, storage, etc.)

Examples:
  opsdesk login --email amina@acme.test --password 'Secret#123'
  opsdesk login --email amina@acme.test --password 'Secret#123' --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session.Session, f *OutputFormatter) error {
				return runLogin(ctx, opts, s, f)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email (required)")
	_ = cmd.MarkFlagRequired("email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password (required)")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runLogin(ctx context.Context, opts *LoginOptions, s *session.Session, f *OutputFormatter) error {
	err := s.Login(ctx, opts.Email, opts.Password)
	var aerr *model.AuthError
	switch {
	case errors.As(err, &aerr):
		return f.Fail(ExitFailure, ErrCodeAuth, fmt.Sprintf("login rejected: %s", aerr.Message), err)
	case err != nil:
		return f.Fail(ExitCommandError, ErrCodeGeneric, "login failed", err)
	}
	return f.Success(newSessionView(s.State()))
}

// LogoutOptions holds flags for the logout command.
type LogoutOptions struct {
	*RootOptions
	Purge bool
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogoutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the stored session",
		Long: `Run the logout workflow.

The session slice returns to its initial state and the stored snapshot is
overwritten. With --purge the snapshot is deleted from the store instead.

Examples:
  opsdesk logout
  opsdesk logout --purge`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session.Session, f *OutputFormatter) error {
				if err := s.Logout(ctx); err != nil {
					return f.Fail(ExitFailure, ErrCodeAuth, "logout failed", err)
				}
				if opts.Purge {
					if err := s.Persistor.Purge(ctx); err != nil {
						return f.Fail(ExitCommandError, ErrCodeStorage, "failed to purge session", err)
					}
					f.VerboseLog("stored session purged")
				}
				return f.Success(MessageView{Message: "Logged out"})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Purge, "purge", false, "delete the stored snapshot")

	return cmd
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Long: `Print the session restored from the configured store.

No request is made to the API. Exits with 1 when nobody is logged in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(_ context.Context, s *session.Session, f *OutputFormatter) error {
				if err := requireLogin(s, f); err != nil {
					return err
				}
				return f.Success(newSessionView(s.State()))
			})
		},
	}
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch the user and the selected institution",
		Long: `Re-fetch the current user and the selected institution from the API.

An expired access token is refreshed once. If the refresh token is no
longer accepted the session is logged out and the command exits with 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, s *session.Session, f *OutputFormatter) error {
				if err := requireLogin(s, f); err != nil {
					return err
				}
				if err := s.Refresh(ctx); err != nil {
					return f.Fail(ExitCommandError, ErrCodeRequest, "refresh failed", err)
				}
				if !auth.SelectIsAuthenticated(s.State()) {
					return f.Fail(ExitFailure, ErrCodeAuth, "session expired", nil)
				}
				return f.Success(newSessionView(s.State()))
			})
		},
	}
}
