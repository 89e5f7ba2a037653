package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/auth"
	"github.com/roach88/opsdesk/internal/config"
	"github.com/roach88/opsdesk/internal/hr"
	"github.com/roach88/opsdesk/internal/mockapi"
	"github.com/roach88/opsdesk/internal/model"
	"github.com/roach88/opsdesk/internal/persist"
	"github.com/roach88/opsdesk/internal/session"
	"github.com/roach88/opsdesk/internal/store"
	"github.com/roach88/opsdesk/internal/testutil"
)

// Epoch is the fake clock's starting time for every run.
var Epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// Option configures Run.
type Option func(*Harness)

// WithLogger routes session and mock API logs to l. Default: discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// Harness is the state of one scenario run.
type Harness struct {
	session *session.Session
	mock    *mockapi.Server
	clock   *testutil.FakeClock
	logger  *slog.Logger

	mu    sync.Mutex
	trace []TraceEvent
}

// Observe implements store.Observer by recording the action.
func (h *Harness) Observe(a action.Action, _ *store.State) {
	if a.Type == store.ActionInit {
		return
	}
	h.mu.Lock()
	h.trace = append(h.trace, TraceEvent{Seq: a.Seq, Type: string(a.Type), Task: a.TaskID})
	h.mu.Unlock()
}

func (h *Harness) recorded() []TraceEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]TraceEvent, len(h.trace))
	copy(out, h.trace)
	return out
}

// Run executes a scenario and returns its result. The returned error is for
// scenarios that could not run at all; failed assertions are reported in
// Result.Errors.
//
// Execution flow:
//  1. Start a mock API on a loopback listener with the scenario's fixture
//  2. Assemble a session with in-memory storage, a fake clock and
//     sequential task ids
//  3. Execute the steps
//  4. Read the state probes and evaluate the assertions
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		clock:  testutil.NewFakeClock(Epoch),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	fixture := mockapi.DefaultFixture()
	if scenario.Fixture != "" {
		var err error
		fixture, err = mockapi.LoadFixture(scenario.Fixture)
		if err != nil {
			return nil, fmt.Errorf("failed to load fixture: %w", err)
		}
	}
	h.mock = mockapi.New(fixture, mockapi.WithLogger(h.logger))
	srv := httptest.NewServer(h.mock.Handler())
	defer srv.Close()

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL + "/api"
	cfg.Persist.Backend = config.BackendMemory
	cfg.HR.Enabled = scenario.HR.Enabled
	if scenario.HR.BasePath != "" {
		cfg.HR.BasePath = scenario.HR.BasePath
	}

	s, err := session.New(ctx, cfg,
		session.WithLogger(h.logger),
		session.WithStorage(persist.NewMemoryStorage()),
		session.WithClock(h.clock),
		session.WithIDGenerator(testutil.NewSequenceIDs("task")),
		session.WithObserver(h),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	h.session = s
	defer func() {
		if err := s.Close(context.Background()); err != nil {
			h.logger.Warn("session close failed", "scenario", scenario.Name, "error", err)
		}
	}()

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Do, err)
		}
		h.logger.Debug("step completed", "scenario", scenario.Name, "step", i, "do", step.Do)
	}

	result := NewResult()
	result.Trace = h.recorded()
	result.State = ReadProbes(Probes{
		State:      s.State(),
		HRMounted:  s.HR.Mounted(),
		RefreshAPI: h.mock.RefreshCalls(),
	})
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	s := h.session

	switch step.Do {
	case StepLogin:
		email, err := argString(step.Args, "email")
		if err != nil {
			return err
		}
		password, err := argString(step.Args, "password")
		if err != nil {
			return err
		}
		s.Dispatch(auth.LoginStart(email, password))
		return s.Settle(ctx)

	case StepLogout:
		s.Dispatch(auth.LogoutStart())
		return s.Settle(ctx)

	case StepRefresh:
		return s.Refresh(ctx)

	case StepDispatch:
		typ, err := argString(step.Args, "type")
		if err != nil {
			return err
		}
		a := action.Of(action.Type(typ))
		if payload, ok := step.Args["payload"]; ok {
			a.Payload = payload
		}
		s.Dispatch(a)
		return s.Settle(ctx)

	case StepSelect:
		inst, err := argInt(step.Args, "institution")
		if err != nil {
			return err
		}
		var branch int64
		if _, ok := step.Args["branch"]; ok {
			if branch, err = argInt(step.Args, "branch"); err != nil {
				return err
			}
		}
		return auth.SelectInstitution(s.Store, inst, branch)

	case StepGrant:
		codes, err := argStrings(step.Args, "permissions")
		if err != nil {
			return err
		}
		var ttl time.Duration
		if _, ok := step.Args["ttl"]; ok {
			if ttl, err = argDuration(step.Args, "ttl"); err != nil {
				return err
			}
		}
		perms := make([]model.Permission, len(codes))
		for i, code := range codes {
			perms[i] = model.Permission{Code: code}
		}
		pending := h.clock.Pending()
		s.Dispatch(auth.GrantTemporaryPermissions(perms, ttl))
		// The grant is in place once its expiry timer is armed.
		return h.clock.BlockUntil(ctx, pending+1)

	case StepAdvance:
		d, err := argDuration(step.Args, "duration")
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		if h.clock.Pending() > 0 {
			return nil
		}
		return s.Settle(ctx)

	case StepSettle:
		return s.Settle(ctx)

	case StepExpireAccessTokens:
		h.mock.ExpireAccessTokens()
		return nil

	case StepRevokeRefreshTokens:
		h.mock.RevokeRefreshTokens()
		return nil

	case StepMountHR:
		s.HR.Mount()
		return nil

	case StepUnmountHR:
		s.HR.Unmount()
		return nil

	case StepNavigate:
		path, err := argString(step.Args, "path")
		if err != nil {
			return err
		}
		s.Dispatch(hr.Navigate(path))
		return nil

	default:
		return fmt.Errorf("unknown step %q", step.Do)
	}
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok {
		return "", fmt.Errorf("arg %q: want string, got %T", key, args[key])
	}
	return v, nil
}

func argInt(args map[string]any, key string) (int64, error) {
	switch v := args[key].(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("arg %q: want integer, got %T", key, args[key])
	}
}

func argStrings(args map[string]any, key string) ([]string, error) {
	list, ok := args[key].([]any)
	if !ok {
		return nil, fmt.Errorf("arg %q: want list, got %T", key, args[key])
	}
	out := make([]string, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("arg %q[%d]: want string, got %T", key, i, v)
		}
		out[i] = s
	}
	return out, nil
}

func argDuration(args map[string]any, key string) (time.Duration, error) {
	s, err := argString(args, key)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("arg %q: %w", key, err)
	}
	return d, nil
}
