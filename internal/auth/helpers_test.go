package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/model"
	"github.com/roach88/opsdesk/internal/saga"
	"github.com/roach88/opsdesk/internal/store"
	"github.com/roach88/opsdesk/internal/testutil"
)

// fakeGateway lets each test script the remote API.
type fakeGateway struct {
	login    func(ctx context.Context, email, password string) (*model.LoginResponse, error)
	user     func(ctx context.Context, id int64) (*model.User, error)
	inst     func(ctx context.Context, id int64) (*model.Institution, error)
	attached func(ctx context.Context) ([]model.Institution, error)
}

func (g *fakeGateway) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	return g.login(ctx, email, password)
}

func (g *fakeGateway) FetchUserByID(ctx context.Context, id int64) (*model.User, error) {
	return g.user(ctx, id)
}

func (g *fakeGateway) FetchInstitutionByID(ctx context.Context, id int64) (*model.Institution, error) {
	return g.inst(ctx, id)
}

func (g *fakeGateway) FetchAttachedInstitutions(ctx context.Context) ([]model.Institution, error) {
	return g.attached(ctx)
}

// codedError mimics an API error carrying a custom code.
type codedError struct {
	code   model.CustomCode
	detail string
}

func (e *codedError) Error() string                { return string(e.code) + ": " + e.detail }
func (e *codedError) CustomCode() model.CustomCode { return e.code }
func (e *codedError) Detail() string               { return e.detail }

// recordingPresenter records effects and the auth state it observed.
type recordingPresenter struct {
	mu        sync.Mutex
	effects   []PostLogoutEffect
	tokenSeen string
	err       error
}

func (p *recordingPresenter) Present(eff *saga.Effects, effects []PostLogoutEffect) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.effects = append(p.effects, effects...)
	p.tokenSeen = saga.Select(eff, SelectAccessToken)
	return p.err
}

// trace records action types in dispatch order.
type trace struct {
	mu    sync.Mutex
	types []action.Type
}

func (tr *trace) Observe(a action.Action, _ *store.State) {
	tr.mu.Lock()
	tr.types = append(tr.types, a.Type)
	tr.mu.Unlock()
}

func (tr *trace) after(t action.Type) []action.Type {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for i, ty := range tr.types {
		if ty == t {
			return append([]action.Type(nil), tr.types[i+1:]...)
		}
	}
	return nil
}

func (tr *trace) count(t action.Type) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n := 0
	for _, ty := range tr.types {
		if ty == t {
			n++
		}
	}
	return n
}

type session struct {
	st     *store.Store
	runner *saga.Runner
	clock  *testutil.FakeClock
	trace  *trace
}

func newSession(t *testing.T, gw Gateway, p Presenter) *session {
	t.Helper()

	mgr := store.NewReducerManager(map[string]store.Reducer{SliceKey: Reducer})
	tr := &trace{}
	st := store.New(mgr.Reduce, store.WithObserver(tr))
	clock := testutil.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	r := saga.NewRunner(st,
		saga.WithIDGenerator(testutil.NewSequenceIDs("")),
		saga.WithClock(clock),
	)
	r.Run(NewWorkflows(gw, p).Saga())
	t.Cleanup(r.Stop)

	return &session{st: st, runner: r, clock: clock, trace: tr}
}

func (s *session) dispatch(t *testing.T, a action.Action) {
	t.Helper()
	s.st.Dispatch(a)
	s.settle(t)
}

func (s *session) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.runner.Settle(ctx))
}

func (s *session) auth() *State {
	return Of(s.st.State())
}

func strPtr(s string) *string { return &s }

func acme() model.Institution {
	return model.Institution{
		ID:      1,
		Name:    "Acme",
		OwnerID: 99,
		Branches: []model.Branch{
			{ID: 10, Institution: 1, Name: "HQ", Tills: []model.Till{{ID: 100, Name: "Till 1", Branch: 10}}},
			{ID: 11, Institution: 1, Name: "Annex"},
		},
	}
}

func globex() model.Institution {
	return model.Institution{ID: 2, Name: "Globex", OwnerID: 7}
}

func amina() *model.User {
	return &model.User{
		ID:       7,
		Fullname: "amina okafor",
		Email:    "amina@example.com",
		IsActive: true,
		Roles: []model.Role{{
			ID:   1,
			Name: "Supervisor",
			Permissions: []model.Permission{
				{Code: "can_view_calls", Name: "View calls"},
				{Code: "can_edit_contacts", Name: "Edit contacts"},
			},
		}},
	}
}

func loginResponse(institutions ...model.Institution) *model.LoginResponse {
	return &model.LoginResponse{
		Tokens:               model.Tokens{Access: "A", Refresh: "R"},
		User:                 amina(),
		InstitutionsAttached: institutions,
	}
}
