// Package session assembles a running client session: reducer manager,
// store, saga runner, auth workflows, API client and persistence.
//
// There is no package-level session. A process creates one Session with New
// and hands its Manager and Runner to the feature modules that need them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/api"
	"github.com/roach88/opsdesk/internal/auth"
	"github.com/roach88/opsdesk/internal/config"
	"github.com/roach88/opsdesk/internal/hr"
	"github.com/roach88/opsdesk/internal/metrics"
	"github.com/roach88/opsdesk/internal/persist"
	"github.com/roach88/opsdesk/internal/saga"
	"github.com/roach88/opsdesk/internal/shell"
	"github.com/roach88/opsdesk/internal/store"
)

// Session is one assembled client session.
type Session struct {
	Config    config.Config
	Manager   *store.ReducerManager
	Store     *store.Store
	Runner    *saga.Runner
	Persistor *persist.Persistor
	// Journal is nil unless the backend is SQLite and the journal is enabled.
	Journal *persist.Journal
	API     *api.Client
	Tokens  *auth.TokenSource
	HR      *hr.Module
	Metrics *metrics.Collectors

	storage persist.Storage
	cancel  context.CancelFunc
	group   *errgroup.Group
	logger  *slog.Logger
}

type options struct {
	logger     *slog.Logger
	metrics    *metrics.Collectors
	storage    persist.Storage
	gateway    auth.Gateway
	presenter  auth.Presenter
	clock      saga.Clock
	ids        saga.TaskIDGenerator
	httpClient *http.Client
	observers  []store.Observer
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger of every component. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records on m. Default: fresh collectors.
func WithMetrics(m *metrics.Collectors) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithStorage replaces the configured persistence backend. The session
// closes it.
func WithStorage(s persist.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithGateway replaces the API client as the workflows' collaborator.
func WithGateway(g auth.Gateway) Option {
	return func(o *options) {
		o.gateway = g
	}
}

// WithPresenter replaces the shell presenter for post-logout effects.
func WithPresenter(p auth.Presenter) Option {
	return func(o *options) {
		o.presenter = p
	}
}

// WithClock sets the workflow clock.
func WithClock(c saga.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithIDGenerator sets the workflow task id generator.
func WithIDGenerator(g saga.TaskIDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithHTTPClient sets the API client's HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithObserver adds a store observer before the init action.
func WithObserver(obs store.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// New assembles a session and rehydrates it. A failed rehydrate is logged
// and the session starts logged out; only a failure to open storage is
// returned.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	if o.presenter == nil {
		o.presenter = shell.Presenter{}
	}

	storage := o.storage
	if storage == nil {
		var err error
		storage, err = OpenStorage(ctx, cfg.Persist)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}

	manager := store.NewReducerManager(map[string]store.Reducer{
		auth.SliceKey:  auth.Reducer,
		shell.SliceKey: shell.Reducer,
	})
	manager.SetLogger(o.logger)

	storeOpts := []store.Option{
		store.WithLogger(o.logger),
		store.WithMetrics(o.metrics),
		store.WithObserver(store.LogObserver(o.logger)),
	}
	for _, obs := range o.observers {
		storeOpts = append(storeOpts, store.WithObserver(obs))
	}

	var journal *persist.Journal
	if sqlite, ok := storage.(*persist.SQLiteStorage); ok && cfg.Persist.Journal {
		journal = persist.NewJournal(sqlite,
			persist.WithLogger(o.logger),
			persist.WithMetrics(o.metrics),
			persist.WithRedactedTypes(auth.SecretActionTypes...),
		)
		storeOpts = append(storeOpts, store.WithObserver(journal))
	}

	st := store.New(persist.WrapReducer(manager.Reduce), storeOpts...)
	tokens := auth.NewTokenSource(st)

	apiOpts := []api.Option{
		api.WithTimeout(cfg.API.Timeout),
		api.WithTokens(tokens),
		api.WithLogger(o.logger),
		api.WithMetrics(o.metrics),
	}
	if o.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(o.httpClient))
	}
	client := api.New(cfg.API.BaseURL, apiOpts...)

	gateway := o.gateway
	if gateway == nil {
		gateway = client
	}

	runnerOpts := []saga.Option{saga.WithLogger(o.logger), saga.WithMetrics(o.metrics)}
	if o.clock != nil {
		runnerOpts = append(runnerOpts, saga.WithClock(o.clock))
	}
	if o.ids != nil {
		runnerOpts = append(runnerOpts, saga.WithIDGenerator(o.ids))
	}
	runner := saga.NewRunner(st, runnerOpts...)

	workflows := auth.NewWorkflows(gateway, o.presenter,
		auth.WithTemporaryPermissionTTL(cfg.Auth.TemporaryPermissionTTL),
		auth.WithWorkflowLogger(o.logger),
	)
	runner.Run(workflows.Saga())

	module := hr.New(st, manager, runner, cfg.HR.BasePath, o.logger)
	if cfg.HR.Enabled {
		// Before rehydrate, so the module's persisted slices are restored too.
		module.Mount()
	}

	persistor := persist.NewPersistor(st, storage, persistConfig(cfg.Persist),
		persist.WithLogger(o.logger), persist.WithMetrics(o.metrics))
	_ = persistor.Rehydrate(ctx)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	group, gctx := errgroup.WithContext(runCtx)
	group.Go(func() error { return persistor.Run(gctx) })
	if journal != nil {
		group.Go(func() error { return journal.Run(gctx) })
	}

	return &Session{
		Config:    cfg,
		Manager:   manager,
		Store:     st,
		Runner:    runner,
		Persistor: persistor,
		Journal:   journal,
		API:       client,
		Tokens:    tokens,
		HR:        module,
		Metrics:   o.metrics,
		storage:   storage,
		cancel:    cancel,
		group:     group,
		logger:    o.logger,
	}, nil
}

// Storage returns the snapshot backend.
func (s *Session) Storage() persist.Storage {
	return s.storage
}

// State returns the current root state.
func (s *Session) State() *store.State {
	return s.Store.State()
}

// Dispatch dispatches a.
func (s *Session) Dispatch(a action.Action) action.Action {
	return s.Store.Dispatch(a)
}

// Settle waits until no workflow is running.
func (s *Session) Settle(ctx context.Context) error {
	return s.Runner.Settle(ctx)
}

// Login runs the login workflow to completion. A rejected login returns the
// normalised model.AuthError.
func (s *Session) Login(ctx context.Context, email, password string) error {
	s.Dispatch(auth.LoginStart(email, password))
	if err := s.Settle(ctx); err != nil {
		return err
	}
	if aerr := auth.SelectAuthError(s.State()); aerr != nil {
		return aerr
	}
	if !auth.SelectIsAuthenticated(s.State()) {
		return errors.New("login did not complete")
	}
	return s.Persistor.Flush(ctx)
}

// Logout runs the logout workflow to completion.
func (s *Session) Logout(ctx context.Context) error {
	s.Dispatch(auth.LogoutStart())
	if err := s.Settle(ctx); err != nil {
		return err
	}
	if aerr := auth.SelectAuthError(s.State()); aerr != nil {
		return aerr
	}
	return s.Persistor.Flush(ctx)
}

// Refresh re-fetches the current user and the selected institution.
func (s *Session) Refresh(ctx context.Context) error {
	s.Dispatch(auth.FetchRemoteUserStart())
	s.Dispatch(auth.FetchUpToDateInstitution())
	if err := s.Settle(ctx); err != nil {
		return err
	}
	return s.Persistor.Flush(ctx)
}

// Close stops the workflows, writes the last snapshot, drains the journal
// and closes storage.
func (s *Session) Close(ctx context.Context) error {
	s.Runner.Stop()
	flushErr := s.Persistor.Flush(ctx)

	s.Persistor.Close()
	if s.Journal != nil {
		s.Journal.Close()
	}

	done := make(chan error, 1)
	go func() { done <- s.group.Wait() }()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		runErr = ctx.Err()
	}
	s.cancel()

	closeErr := s.storage.Close()
	return errors.Join(flushErr, ignoreCanceled(runErr), closeErr)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
