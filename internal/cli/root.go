package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/opsdesk/internal/config"
	"github.com/roach88/opsdesk/internal/metrics"
	"github.com/roach88/opsdesk/internal/session"
)

// closeTimeout bounds the final flush when a command closes its session.
const closeTimeout = 5 * time.Second

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath      string
	Verbose         bool
	Format          string // "json" | "text"
	MetricsTextfile string

	// Getenv reads environment overrides. Defaults to os.Getenv.
	Getenv func(string) string

	cfg     *config.Config
	metrics *metrics.Collectors
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the opsdesk CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Getenv: os.Getenv}

	cmd := &cobra.Command{
		Use:   "opsdesk",
		Short: "opsdesk - operations dashboard session client",
		Long: `Drive an opsdesk client session from the command line.

Logs in against the operations API, keeps the session in the configured
store, selects institutions and branches, and runs scripted session
scenarios.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				f := &OutputFormatter{Format: "text", Writer: cmd.OutOrStdout()}
				return f.Fail(ExitCommandError, ErrCodeGeneric,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.writeMetrics()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "path to the CUE config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")

	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewSelectCommand(opts))
	cmd.AddCommand(NewGrantCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewMockAPICommand(opts))
	cmd.AddCommand(NewForgotPasswordCommand(opts))
	cmd.AddCommand(NewVerifyTokenCommand(opts))
	cmd.AddCommand(NewResetPasswordCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// Formatter returns an output formatter writing to the command's streams.
func (o *RootOptions) Formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// Config loads the config file once, then applies environment overrides.
// A missing file yields the defaults.
func (o *RootOptions) Config() (config.Config, error) {
	if o.cfg != nil {
		return *o.cfg, nil
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.Getenv != nil {
		cfg.ApplyEnv(o.Getenv)
	}
	o.cfg = &cfg
	return cfg, nil
}

// Logger returns a text logger on the command's stderr. --verbose forces
// debug level; otherwise log.level from the config applies.
func (o *RootOptions) Logger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	level := cfg.Log.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// Metrics returns the process collectors.
func (o *RootOptions) Metrics() *metrics.Collectors {
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	return o.metrics
}

func (o *RootOptions) writeMetrics() error {
	path := o.MetricsTextfile
	if path == "" && o.cfg != nil {
		path = o.cfg.Metrics.Textfile
	}
	if path == "" {
		return nil
	}
	if err := o.Metrics().WriteTextfile(path); err != nil {
		return WrapExitError(ExitCommandError, "failed to write metrics", err)
	}
	return nil
}

// loadConfig loads the config and reports a failure through f.
func (o *RootOptions) loadConfig(f *OutputFormatter) (config.Config, error) {
	cfg, err := o.Config()
	if err != nil {
		return config.Config{}, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	f.VerboseLog("config: %s (backend %s, api %s)", o.ConfigPath, cfg.Persist.Backend, cfg.API.BaseURL)
	return cfg, nil
}

// withSession opens a session, runs fn and closes the session. A close
// failure is reported only when fn succeeded.
func (o *RootOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session.Session, f *OutputFormatter) error) error {
	f := o.Formatter(cmd)
	cfg, err := o.loadConfig(f)
	if err != nil {
		return err
	}
	logger := o.Logger(cmd, cfg)

	ctx := cmd.Context()
	s, err := session.New(ctx, cfg,
		session.WithLogger(logger),
		session.WithMetrics(o.Metrics()),
	)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStorage, "failed to open session", err)
	}

	runErr := fn(ctx, s, f)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := s.Close(closeCtx); err != nil {
		if runErr != nil {
			logger.Warn("session close failed", "error", err)
			return runErr
		}
		return f.Fail(ExitCommandError, ErrCodeStorage, "failed to close session", err)
	}
	return runErr
}

// requireLogin fails unless the session is authenticated.
func requireLogin(s *session.Session, f *OutputFormatter) error {
	if newSessionView(s.State()).Authenticated {
		return nil
	}
	return f.Fail(ExitFailure, ErrCodeAuth, "not logged in", errors.New("run opsdesk login first"))
}
