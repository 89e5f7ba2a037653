package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/opsdesk/internal/config"
	"github.com/roach88/opsdesk/internal/mockapi"
)

// MockAPIOptions holds flags for the mock-api command.
type MockAPIOptions struct {
	*RootOptions
	Addr    string
	Fixture string
}

// NewMockAPICommand creates the mock-api command.
func NewMockAPICommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MockAPIOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mock-api",
		Short: "Serve the in-memory operations API",
		Long: `Serve an in-memory implementation of the operations API under /api.

Accounts, institutions and password reset tokens come from a YAML fixture;
without --fixture a small built-in world is served (amina@acme.test,
password Secret#123). Stops on SIGINT or SIGTERM.

Examples:
  opsdesk mock-api
  opsdesk mock-api --addr 127.0.0.1:9000 --fixture ./fixtures/northwind.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMockAPI(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().StringVar(&opts.Fixture, "fixture", "", "YAML fixture file")

	return cmd
}

func runMockAPI(opts *MockAPIOptions, cmd *cobra.Command) error {
	f := opts.Formatter(cmd)

	fixture := mockapi.DefaultFixture()
	if opts.Fixture != "" {
		var err error
		fixture, err = mockapi.LoadFixture(opts.Fixture)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to load fixture", err)
		}
	}

	cfg, err := opts.Config()
	if err != nil {
		f.VerboseLog("config ignored: %v", err)
		cfg = config.Default()
	}
	logger := opts.Logger(cmd, cfg)

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to listen", err)
	}

	server := &http.Server{
		Handler:           mockapi.New(fixture, mockapi.WithLogger(logger)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() { errChan <- server.Serve(ln) }()

	baseURL := fmt.Sprintf("http://%s/api", ln.Addr())
	logger.Info("mock api listening", "addr", ln.Addr().String(), "users", len(fixture.Users))
	if err := f.Success(MessageView{Message: "Serving mock API at " + baseURL}); err != nil {
		return err
	}

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "mock api stopped", err)
		}
		return nil
	case <-ctx.Done():
		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "shutdown failed", err)
		}
		logger.Info("mock api stopped")
		return nil
	}
}
