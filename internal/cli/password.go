package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/opsdesk/internal/api"
)

// apiClient builds an unauthenticated client for the password reset
// endpoints.
func (o *RootOptions) apiClient(cmd *cobra.Command, f *OutputFormatter) (*api.Client, error) {
	cfg, err := o.loadConfig(f)
	if err != nil {
		return nil, err
	}
	return api.New(cfg.API.BaseURL,
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(o.Logger(cmd, cfg)),
		api.WithMetrics(o.Metrics()),
	), nil
}

// ForgotPasswordOptions holds flags for the forgot-password command.
type ForgotPasswordOptions struct {
	*RootOptions
	Email       string
	FrontendURL string
}

// NewForgotPasswordCommand creates the forgot-password command.
func NewForgotPasswordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ForgotPasswordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.Formatter(cmd)
			client, err := opts.apiClient(cmd, f)
			if err != nil {
				return err
			}
			if err := client.ForgotPassword(cmd.Context(), opts.Email, opts.FrontendURL); err != nil {
				return f.Fail(ExitFailure, ErrCodeRequest, "password reset request failed", err)
			}
			return f.Success(MessageView{Message: "If the account exists, a reset link has been sent."})
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email (required)")
	_ = cmd.MarkFlagRequired("email")
	cmd.Flags().StringVar(&opts.FrontendURL, "frontend-url", "", "base URL the reset link points to")

	return cmd
}

// NewVerifyTokenCommand creates the verify-token command.
func NewVerifyTokenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-token <token>",
		Short: "Check a password reset token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.Formatter(cmd)
			client, err := rootOpts.apiClient(cmd, f)
			if err != nil {
				return err
			}
			v, err := client.VerifyResetToken(cmd.Context(), args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeRequest, "token verification failed", err)
			}
			if !v.Valid {
				msg := v.Detail
				if msg == "" {
					msg = "token is not valid"
				}
				return f.Fail(ExitFailure, ErrCodeAuth, msg, nil)
			}
			return f.Success(MessageView{Message: "Token is valid"})
		},
	}
}

// ResetPasswordOptions holds flags for the reset-password command.
type ResetPasswordOptions struct {
	*RootOptions
	Token    string
	Password string
}

// NewResetPasswordCommand creates the reset-password command.
func NewResetPasswordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetPasswordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with a reset token",
		Long: `Set a new password with a reset token.

The password must be at least 8 characters long and contain a digit, an
uppercase letter, a lowercase letter and one of !@#$%^&*(),.?":{}|<>.
A weak password is rejected before any request is made.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.Formatter(cmd)
			if problems := api.ValidatePasswordStrength(opts.Password); len(problems) > 0 {
				if err := f.Error(ErrCodeAuth, "password too weak", problems); err != nil {
					return err
				}
				return NewExitError(ExitFailure, "password too weak: "+strings.Join(problems, " "))
			}

			client, err := opts.apiClient(cmd, f)
			if err != nil {
				return err
			}
			msg, err := client.ResetPassword(cmd.Context(), opts.Token, opts.Password)
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeRequest, "password reset failed", err)
			}
			if msg == "" {
				msg = "Password has been reset."
			}
			return f.Success(MessageView{Message: msg})
		},
	}

	cmd.Flags().StringVar(&opts.Token, "token", "", "reset token (required)")
	_ = cmd.MarkFlagRequired("token")
	cmd.Flags().StringVar(&opts.Password, "password", "", "new password (required)")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
