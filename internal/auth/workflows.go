package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/model"
	"github.com/roach88/opsdesk/internal/saga"
)

// DefaultTemporaryPermissionTTL is how long a temporary grant lasts when the
// grant does not say otherwise.
const DefaultTemporaryPermissionTTL = 30 * time.Minute

// Watcher names registered by Workflows.Saga.
const (
	WatchLogin                     = "auth.login"
	WatchLogout                    = "auth.logout"
	WatchFetchRemoteUser           = "auth.fetchRemoteUser"
	WatchFetchRemoteInstitution    = "auth.fetchRemoteInstitution"
	WatchRefreshUser               = "auth.refreshUser"
	WatchGrantTemporaryPermissions = "auth.grantTemporaryPermissions"
)

// Gateway is the remote API as seen by the session workflows.
type Gateway interface {
	Login(ctx context.Context, email, password string) (*model.LoginResponse, error)
	FetchUserByID(ctx context.Context, id int64) (*model.User, error)
	FetchInstitutionByID(ctx context.Context, id int64) (*model.Institution, error)
	FetchAttachedInstitutions(ctx context.Context) ([]model.Institution, error)
}

// EffectKind names a post-logout presentation effect.
type EffectKind string

const (
	// EffectResetTheme restores the theme variables in Theme.
	EffectResetTheme EffectKind = "reset_theme"

	// EffectEnsureSidebarOpen opens the sidebar if it is closed.
	EffectEnsureSidebarOpen EffectKind = "ensure_sidebar_open"
)

// PostLogoutEffect is one step the presenter performs after logout.
type PostLogoutEffect struct {
	Kind  EffectKind
	Theme model.ThemeVars
}

// PostLogoutEffects returns the ordered effects applied after every logout.
func PostLogoutEffects() []PostLogoutEffect {
	return []PostLogoutEffect{
		{Kind: EffectResetTheme, Theme: model.DefaultTheme()},
		{Kind: EffectEnsureSidebarOpen},
	}
}

// Presenter carries out post-logout effects. It runs inside the logout task
// and must use eff for any store interaction.
type Presenter interface {
	Present(eff *saga.Effects, effects []PostLogoutEffect) error
}

// Workflows holds the collaborators of the session workflows.
type Workflows struct {
	gateway   Gateway
	presenter Presenter
	ttl       time.Duration
	logger    *slog.Logger
}

// WorkflowOption configures Workflows.
type WorkflowOption func(*Workflows)

// WithTemporaryPermissionTTL sets the default grant lifetime.
func WithTemporaryPermissionTTL(d time.Duration) WorkflowOption {
	return func(w *Workflows) {
		if d > 0 {
			w.ttl = d
		}
	}
}

// WithWorkflowLogger sets the logger. Default: slog.Default().
func WithWorkflowLogger(l *slog.Logger) WorkflowOption {
	return func(w *Workflows) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorkflows creates the session workflows. presenter may be nil, in which
// case logout performs no presentation effects.
func NewWorkflows(g Gateway, presenter Presenter, opts ...WorkflowOption) *Workflows {
	w := &Workflows{
		gateway:   g,
		presenter: presenter,
		ttl:       DefaultTemporaryPermissionTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Saga registers every session watcher. All of them are takeLatest.
func (w *Workflows) Saga() saga.Saga {
	return func(r *saga.Runner) {
		r.TakeLatest(TypeLoginStart, WatchLogin, w.login)
		r.TakeLatest(TypeLogoutStart, WatchLogout, w.logout)
		r.TakeLatest(TypeFetchRemoteUserStart, WatchFetchRemoteUser, w.fetchRemoteUser)
		r.TakeLatest(TypeFetchUpToDateInstitution, WatchFetchRemoteInstitution, w.fetchRemoteInstitution)
		r.TakeLatest(TypeRefreshUser, WatchRefreshUser, w.refreshUser)
		r.TakeLatest(TypeGrantTemporaryPermissions, WatchGrantTemporaryPermissions, w.grantTemporaryPermissions)
	}
}

var errBadPayload = errors.New("unexpected payload")

func (w *Workflows) login(ctx context.Context, eff *saga.Effects, trig action.Action) error {
	creds, ok := action.PayloadAs[Credentials](trig)
	if !ok {
		eff.Put(LoginFailure(NormalizeError(nil)))
		return fmt.Errorf("login: %w", errBadPayload)
	}

	resp, err := w.gateway.Login(ctx, model.NormalizeEmail(creds.Email), creds.Password)
	if err == nil && (resp == nil || resp.Tokens.Access == "" || resp.Tokens.Refresh == "" || resp.User == nil) {
		err = ErrIncompleteLogin
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		eff.Put(LoginFailure(NormalizeError(err)))
		return fmt.Errorf("login: %w", err)
	}

	if !eff.Put(SetAccessToken(resp.Tokens.Access)) {
		return ctx.Err()
	}
	eff.Put(SetRefreshToken(resp.Tokens.Refresh))
	eff.Put(SetCurrentUser(resp.User))

	if len(resp.InstitutionsAttached) > 0 {
		eff.Put(SetAttachedInstitutions(resp.InstitutionsAttached))
		first := resp.InstitutionsAttached[0]
		eff.Put(SetSelectedInstitution(&first))
		if len(first.Branches) > 0 {
			branch := first.Branches[0]
			eff.Put(SetSelectedBranch(&branch))
		}
	}

	w.logger.Info("login succeeded",
		"user", resp.User.ID,
		"institutions", len(resp.InstitutionsAttached),
	)
	return nil
}

func (w *Workflows) logout(ctx context.Context, eff *saga.Effects, _ action.Action) error {
	eff.Put(LogoutSuccess())

	if w.presenter == nil {
		return nil
	}
	if err := w.presenter.Present(eff, PostLogoutEffects()); err != nil {
		eff.Put(LogoutFailure(LogoutFailureMessage))
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (w *Workflows) fetchRemoteUser(ctx context.Context, eff *saga.Effects, _ action.Action) error {
	current := saga.Select(eff, SelectUser)
	if current == nil {
		return nil
	}

	u, err := w.gateway.FetchUserByID(ctx, current.ID)
	if err != nil {
		w.logger.Debug("fetch remote user failed", "user", current.ID, "error", err)
		return nil
	}
	if u != nil {
		eff.Put(SetCurrentUser(u))
	}
	return nil
}

func (w *Workflows) fetchRemoteInstitution(ctx context.Context, eff *saga.Effects, _ action.Action) error {
	selected := saga.Select(eff, SelectSelectedInstitution)
	if selected == nil {
		return nil
	}

	var (
		fresh    *model.Institution
		attached []model.Institution
		g        errgroup.Group
	)
	g.Go(func() error {
		inst, err := w.gateway.FetchInstitutionByID(ctx, selected.ID)
		if err != nil {
			w.logger.Debug("fetch institution failed", "institution", selected.ID, "error", err)
			return nil
		}
		fresh = inst
		return nil
	})
	g.Go(func() error {
		list, err := w.gateway.FetchAttachedInstitutions(ctx)
		if err != nil {
			w.logger.Debug("fetch attached institutions failed", "error", err)
			return nil
		}
		attached = list
		return nil
	})
	_ = g.Wait()

	if fresh != nil {
		eff.Put(SetSelectedInstitution(fresh))
	}
	if len(attached) > 0 {
		eff.Put(SetAttachedInstitutions(attached))
	}
	return nil
}

func (w *Workflows) refreshUser(ctx context.Context, eff *saga.Effects, trig action.Action) error {
	resp, ok := action.PayloadAs[model.LoginResponse](trig)
	if !ok {
		return fmt.Errorf("refresh user: %w", errBadPayload)
	}

	eff.Put(SetAccessToken(resp.Tokens.Access))
	eff.Put(SetRefreshToken(resp.Tokens.Refresh))
	eff.Put(SetCurrentUser(resp.User))
	if len(resp.InstitutionsAttached) > 0 {
		eff.Put(SetAttachedInstitutions(resp.InstitutionsAttached))
	}
	return nil
}

func (w *Workflows) grantTemporaryPermissions(ctx context.Context, eff *saga.Effects, trig action.Action) error {
	grant, ok := action.PayloadAs[TemporaryGrant](trig)
	if !ok {
		return fmt.Errorf("grant temporary permissions: %w", errBadPayload)
	}
	ttl := grant.TTL
	if ttl <= 0 {
		ttl = w.ttl
	}

	if !eff.Put(SetTemporaryPermissions(grant.Permissions)) {
		return ctx.Err()
	}
	if err := eff.Delay(ttl); err != nil {
		return err
	}
	eff.Put(ClearTemporaryPermissions())
	return nil
}
