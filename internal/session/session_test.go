package session_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opsdesk/internal/auth"
	"github.com/roach88/opsdesk/internal/config"
	"github.com/roach88/opsdesk/internal/hr"
	"github.com/roach88/opsdesk/internal/mockapi"
	"github.com/roach88/opsdesk/internal/model"
	"github.com/roach88/opsdesk/internal/persist"
	"github.com/roach88/opsdesk/internal/session"
	"github.com/roach88/opsdesk/internal/testutil"
)

type env struct {
	mock    *mockapi.Server
	cfg     config.Config
	storage *persist.MemoryStorage
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mock := mockapi.New(mockapi.DefaultFixture())
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL + "/api"
	cfg.Persist.Backend = config.BackendMemory
	return &env{mock: mock, cfg: cfg, storage: persist.NewMemoryStorage()}
}

func (e *env) open(t *testing.T, opts ...session.Option) *session.Session {
	t.Helper()
	opts = append([]session.Option{
		session.WithStorage(e.storage),
		session.WithIDGenerator(testutil.NewSequenceIDs("task")),
	}, opts...)
	s, err := session.New(context.Background(), e.cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLogin_SelectsFirstInstitutionAndBranch(t *testing.T) {
	e := newEnv(t)
	s := e.open(t)
	ctx := testCtx(t)

	require.NoError(t, s.Login(ctx, "Amina@Acme.test ", "Secret#123"))

	root := s.State()
	assert.True(t, auth.SelectIsAuthenticated(root))
	assert.Equal(t, "access-1-1", auth.SelectAccessToken(root))
	require.NotNil(t, auth.SelectSelectedInstitution(root))
	assert.Equal(t, int64(10), auth.SelectSelectedInstitution(root).ID)
	require.NotNil(t, auth.SelectSelectedBranch(root))
	assert.Equal(t, int64(100), auth.SelectSelectedBranch(root).ID)
	assert.Equal(t, "Amina Okafor", auth.SelectUserDisplayName(root))
}

func TestLogin_RejectedLeavesSessionUntouched(t *testing.T) {
	e := newEnv(t)
	s := e.open(t)
	ctx := testCtx(t)

	err := s.Login(ctx, "amina@acme.test", "nope")
	var aerr *model.AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, model.CodeInvalidCredentials, aerr.CustomCode)
	assert.Equal(t, "Invalid email or password", aerr.Message)

	root := s.State()
	assert.False(t, auth.SelectIsAuthenticated(root))
	assert.Empty(t, auth.SelectAccessToken(root))
}

func TestSessionSurvivesRestart(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx(t)

	first, err := session.New(ctx, e.cfg, session.WithStorage(e.storage))
	require.NoError(t, err)
	require.NoError(t, first.Login(ctx, "amina@acme.test", "Secret#123"))
	first.Dispatch(auth.GrantTemporaryPermissions([]model.Permission{{Code: "refunds.approve"}}, time.Hour))
	require.NoError(t, first.Close(ctx))

	second := e.open(t)
	select {
	case <-second.Persistor.Ready():
	default:
		t.Fatal("not rehydrated")
	}

	root := second.State()
	assert.True(t, auth.SelectIsAuthenticated(root))
	assert.Equal(t, "access-1-1", auth.SelectAccessToken(root))
	assert.Equal(t, int64(10), auth.SelectSelectedInstitution(root).ID)
	assert.Empty(t, auth.SelectTemporaryPermissions(root))
}

func TestRefresh_RecoversFromExpiredAccessToken(t *testing.T) {
	e := newEnv(t)
	s := e.open(t)
	ctx := testCtx(t)
	require.NoError(t, s.Login(ctx, "amina@acme.test", "Secret#123"))

	e.mock.ExpireAccessTokens()
	require.NoError(t, s.Refresh(ctx))

	root := s.State()
	assert.Equal(t, "access-1-2", auth.SelectAccessToken(root))
	assert.Equal(t, "refresh-1-2", auth.SelectRefreshToken(root))
	assert.True(t, auth.SelectIsAuthenticated(root))
	assert.Equal(t, 1, e.mock.RefreshCalls())
}

func TestRefresh_RevokedSessionLogsOut(t *testing.T) {
	e := newEnv(t)
	s := e.open(t)
	ctx := testCtx(t)
	require.NoError(t, s.Login(ctx, "amina@acme.test", "Secret#123"))

	e.mock.ExpireAccessTokens()
	e.mock.RevokeRefreshTokens()
	require.NoError(t, s.Refresh(ctx))

	root := s.State()
	assert.False(t, auth.SelectIsAuthenticated(root))
	assert.Empty(t, auth.SelectAccessToken(root))
	assert.Nil(t, auth.SelectSelectedInstitution(root))
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	s := e.open(t)
	ctx := testCtx(t)
	require.NoError(t, s.Login(ctx, "amina@acme.test", "Secret#123"))

	require.NoError(t, s.Logout(ctx))
	assert.False(t, auth.SelectIsAuthenticated(s.State()))

	data, err := e.storage.Get(ctx, "persist:root")
	require.NoError(t, err)
	assert.NotContains(t, string(data), "access-1-1")
}

func TestSQLiteBackendJournalsActions(t *testing.T) {
	e := newEnv(t)
	e.cfg.Persist.Backend = config.BackendSQLite
	e.cfg.Persist.Path = filepath.Join(t.TempDir(), "opsdesk.db")
	ctx := testCtx(t)

	s, err := session.New(ctx, e.cfg)
	require.NoError(t, err)
	require.NotNil(t, s.Journal)
	runID := s.Journal.RunID()
	require.NoError(t, s.Login(ctx, "amina@acme.test", "Secret#123"))
	require.NoError(t, s.Close(ctx))

	db, err := persist.OpenSQLite(e.cfg.Persist.Path)
	require.NoError(t, err)
	defer db.Close()

	last, err := db.LastRunID(ctx)
	require.NoError(t, err)
	assert.Equal(t, runID, last)

	entries, err := db.Entries(ctx, runID, 0)
	require.NoError(t, err)

	var types []string
	for _, en := range entries {
		types = append(types, en.Type)
		if en.Type == string(auth.TypeLoginStart) {
			assert.JSONEq(t, `{"email":"amina@acme.test","password":"[redacted]"}`, string(en.Payload))
		}
	}
	assert.Contains(t, types, string(auth.TypeLoginStart))
	assert.Contains(t, types, string(auth.TypeSetCurrentUser))
	assert.Contains(t, types, string(persist.ActionRehydrate))

	snap, err := db.Get(ctx, "persist:root")
	require.NoError(t, err)
	assert.Contains(t, string(snap), "access-1-1")
}

func TestSQLiteJournalOmitsTokens(t *testing.T) {
	e := newEnv(t)
	e.cfg.Persist.Backend = config.BackendSQLite
	e.cfg.Persist.Path = filepath.Join(t.TempDir(), "opsdesk.db")
	ctx := testCtx(t)

	first, err := session.New(ctx, e.cfg)
	require.NoError(t, err)
	require.NoError(t, first.Login(ctx, "amina@acme.test", "Secret#123"))
	require.NoError(t, first.Close(ctx))

	// The second run rehydrates the stored tokens and applies a refresh.
	second, err := session.New(ctx, e.cfg)
	require.NoError(t, err)
	require.True(t, auth.SelectIsAuthenticated(second.State()))
	second.Dispatch(auth.RefreshUser(model.LoginResponse{
		Tokens: model.Tokens{Access: "access-1-9", Refresh: "refresh-1-9"},
		User:   auth.SelectUser(second.State()),
	}))
	require.NoError(t, second.Settle(ctx))
	assert.Equal(t, "access-1-9", auth.SelectAccessToken(second.State()))
	require.NoError(t, second.Close(ctx))

	db, err := persist.OpenSQLite(e.cfg.Persist.Path)
	require.NoError(t, err)
	defer db.Close()

	var types []string
	for _, runID := range []string{first.Journal.RunID(), second.Journal.RunID()} {
		entries, err := db.Entries(ctx, runID, 0)
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		for _, en := range entries {
			types = append(types, en.Type)
			for _, secret := range []string{"access-1-1", "refresh-1-1", "access-1-9", "refresh-1-9"} {
				assert.NotContains(t, string(en.Payload), secret, "entry %s", en.Type)
			}
		}
	}
	assert.Contains(t, types, string(auth.TypeSetAccessToken))
	assert.Contains(t, types, string(auth.TypeRefreshUser))
	assert.Contains(t, types, string(persist.ActionRehydrate))
}

func TestHRModuleMountedFromConfig(t *testing.T) {
	e := newEnv(t)
	e.cfg.HR.Enabled = true
	e.cfg.HR.BasePath = "people"
	s := e.open(t)

	assert.True(t, s.HR.Mounted())
	assert.Equal(t, "/people", hr.SelectCurrentPath(s.State()))
	assert.False(t, s.HR.Mount())
}

func TestOpenStorage_UnknownBackend(t *testing.T) {
	_, err := session.OpenStorage(context.Background(), config.Persist{Backend: "floppy"})
	assert.ErrorContains(t, err, "floppy")
}
