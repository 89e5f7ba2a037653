package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/model"
)

func TestLogin_Success(t *testing.T) {
	var gotEmail string
	gw := &fakeGateway{login: func(ctx context.Context, email, password string) (*model.LoginResponse, error) {
		gotEmail = email
		return loginResponse(acme(), globex()), nil
	}}
	s := newSession(t, gw, nil)

	s.dispatch(t, LoginStart("  Amina@Example.com ", "pw"))

	assert.Equal(t, "amina@example.com", gotEmail)
	assert.Equal(t, []action.Type{
		TypeSetAccessToken,
		TypeSetRefreshToken,
		TypeSetCurrentUser,
		TypeSetAttachedInstitutions,
		TypeSetSelectedInstitution,
		TypeSetSelectedBranch,
	}, s.trace.after(TypeLoginStart))

	st := s.auth()
	assert.Equal(t, "A", st.AccessToken)
	assert.Equal(t, "R", st.RefreshToken)
	assert.Equal(t, int64(7), st.CurrentUser.ID)
	assert.Len(t, st.AttachedInstitutions, 2)
	assert.Equal(t, int64(1), st.SelectedInstitution.ID)
	assert.Equal(t, int64(10), st.SelectedBranch.ID)
	assert.False(t, st.Loading)
	assert.Nil(t, st.AuthError)
}

func TestLogin_NoInstitutions(t *testing.T) {
	gw := &fakeGateway{login: func(ctx context.Context, email, password string) (*model.LoginResponse, error) {
		return loginResponse(), nil
	}}
	s := newSession(t, gw, nil)

	s.dispatch(t, LoginStart("amina@example.com", "pw"))

	assert.Equal(t, []action.Type{
		TypeSetAccessToken,
		TypeSetRefreshToken,
		TypeSetCurrentUser,
	}, s.trace.after(TypeLoginStart))
	assert.Nil(t, s.auth().SelectedInstitution)
}

func TestLogin_FirstInstitutionWithoutBranches(t *testing.T) {
	gw := &fakeGateway{login: func(ctx context.Context, email, password string) (*model.LoginResponse, error) {
		return loginResponse(globex(), acme()), nil
	}}
	s := newSession(t, gw, nil)

	s.dispatch(t, LoginStart("amina@example.com", "pw"))

	assert.Equal(t, int64(2), s.auth().SelectedInstitution.ID)
	assert.Nil(t, s.auth().SelectedBranch)
	assert.NotContains(t, s.trace.after(TypeLoginStart), TypeSetSelectedBranch)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	gw := &fakeGateway{login: func(ctx context.Context, email, password string) (*model.LoginResponse, error) {
		return nil, &codedError{code: model.CodeInvalidCredentials, detail: "Invalid email or password"}
	}}
	s := newSession(t, gw, nil)

	s.dispatch(t, LoginStart("amina@example.com", "wrong"))

	assert.Equal(t, []action.Type{TypeLoginFailure}, s.trace.after(TypeLoginStart))
	st := s.auth()
	assert.Equal(t, &model.AuthError{CustomCode: model.CodeInvalidCredentials, Message: "Invalid email or password"}, st.AuthError)
	assert.Empty(t, st.AccessToken)
	assert.False(t, st.Loading)
}

func TestLogin_IncompleteResponse(t *testing.T) {
	tests := []struct {
		name string
		resp *model.LoginResponse
	}{
		{"nil response", nil},
		{"missing access", &model.LoginResponse{Tokens: model.Tokens{Refresh: "R"}, User: amina()}},
		{"missing refresh", &model.LoginResponse{Tokens: model.Tokens{Access: "A"}, User: amina()}},
		{"missing user", &model.LoginResponse{Tokens: model.Tokens{Access: "A", Refresh: "R"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{login: func(ctx context.Context, email, password string) (*model.LoginResponse, error) {
				return tt.resp, nil
			}}
			s := newSession(t, gw, nil)

			s.dispatch(t, LoginStart("amina@example.com", "pw"))

			assert.Equal(t, []action.Type{TypeLoginFailure}, s.trace.after(TypeLoginStart))
			assert.Equal(t, &model.AuthError{CustomCode: model.CodeOther, Message: "Unknown error"}, s.auth().AuthError)
		})
	}
}

func TestLogin_LatestWins(t *testing.T) {
	firstCalled := make(chan struct{})
	firstDone := make(chan error, 1)

	gw := &fakeGateway{login: func(ctx context.Context, email, password string) (*model.LoginResponse, error) {
		if email == "first@example.com" {
			close(firstCalled)
			select {
			case <-ctx.Done():
				firstDone <- ctx.Err()
			case <-time.After(5 * time.Second):
				firstDone <- nil
			}
			// Answer anyway: the superseded task must not commit it.
			resp := loginResponse()
			resp.Tokens = model.Tokens{Access: "A1", Refresh: "R1"}
			return resp, nil
		}
		resp := loginResponse()
		resp.Tokens = model.Tokens{Access: "A2", Refresh: "R2"}
		return resp, nil
	}}
	s := newSession(t, gw, nil)

	s.st.Dispatch(LoginStart("first@example.com", "pw"))
	<-firstCalled
	s.st.Dispatch(LoginStart("second@example.com", "pw"))

	require.ErrorIs(t, <-firstDone, context.Canceled, "first login call was not cancelled")
	s.settle(t)

	assert.Equal(t, "A2", s.auth().AccessToken)
	assert.Equal(t, "R2", s.auth().RefreshToken)
	assert.Equal(t, 1, s.trace.count(TypeSetAccessToken))
}

func TestLogout_ResetsAndPresents(t *testing.T) {
	gw := &fakeGateway{login: func(ctx context.Context, email, password string) (*model.LoginResponse, error) {
		return loginResponse(acme()), nil
	}}
	p := &recordingPresenter{}
	s := newSession(t, gw, p)

	s.dispatch(t, LoginStart("amina@example.com", "pw"))
	require.Equal(t, "A", s.auth().AccessToken)

	s.dispatch(t, LogoutStart())

	assert.Equal(t, InitialState(), s.auth())
	assert.Equal(t, []action.Type{TypeLogoutSuccess}, s.trace.after(TypeLogoutStart))
	assert.Equal(t, PostLogoutEffects(), p.effects)
	assert.Empty(t, p.tokenSeen, "effects run after the slice was reset")
}

func TestLogout_PresenterFailure(t *testing.T) {
	p := &recordingPresenter{err: errors.New("document unavailable")}
	s := newSession(t, &fakeGateway{}, p)
	s.st.Dispatch(SetAccessToken("A"))

	s.dispatch(t, LogoutStart())

	assert.Equal(t, []action.Type{TypeLogoutSuccess, TypeLogoutFailure}, s.trace.after(TypeLogoutStart))
	st := s.auth()
	assert.Empty(t, st.AccessToken, "the reset is not rolled back")
	require.NotNil(t, st.AuthError)
	assert.Equal(t, "Something went wrong !", st.AuthError.Message)
}

func TestPostLogoutEffectsOrder(t *testing.T) {
	effects := PostLogoutEffects()

	require.Len(t, effects, 2)
	assert.Equal(t, EffectResetTheme, effects[0].Kind)
	assert.Equal(t, model.DefaultTheme(), effects[0].Theme)
	assert.Equal(t, EffectEnsureSidebarOpen, effects[1].Kind)
}

func TestFetchRemoteUser(t *testing.T) {
	t.Run("no user is a no-op", func(t *testing.T) {
		called := false
		gw := &fakeGateway{user: func(ctx context.Context, id int64) (*model.User, error) {
			called = true
			return amina(), nil
		}}
		s := newSession(t, gw, nil)

		s.dispatch(t, FetchRemoteUserStart())
		assert.False(t, called)
		assert.Empty(t, s.trace.after(TypeFetchRemoteUserStart))
	})

	t.Run("replaces the user", func(t *testing.T) {
		gw := &fakeGateway{user: func(ctx context.Context, id int64) (*model.User, error) {
			u := amina()
			u.Fullname = "Amina O. Okafor"
			return u, nil
		}}
		s := newSession(t, gw, nil)
		s.st.Dispatch(SetCurrentUser(amina()))

		s.dispatch(t, FetchRemoteUserStart())
		assert.Equal(t, []action.Type{TypeSetCurrentUser}, s.trace.after(TypeFetchRemoteUserStart))
		assert.Equal(t, "Amina O. Okafor", s.auth().CurrentUser.Fullname)
	})

	t.Run("failure is swallowed", func(t *testing.T) {
		gw := &fakeGateway{user: func(ctx context.Context, id int64) (*model.User, error) {
			return nil, errors.New("timeout")
		}}
		s := newSession(t, gw, nil)
		s.st.Dispatch(SetCurrentUser(amina()))

		s.dispatch(t, FetchRemoteUserStart())
		assert.Empty(t, s.trace.after(TypeFetchRemoteUserStart))
		assert.Equal(t, "amina okafor", s.auth().CurrentUser.Fullname)
	})

	t.Run("absent record keeps the user", func(t *testing.T) {
		gw := &fakeGateway{user: func(ctx context.Context, id int64) (*model.User, error) {
			return nil, nil
		}}
		s := newSession(t, gw, nil)
		s.st.Dispatch(SetCurrentUser(amina()))

		s.dispatch(t, FetchRemoteUserStart())
		assert.Empty(t, s.trace.after(TypeFetchRemoteUserStart))
	})
}

func TestFetchRemoteInstitution(t *testing.T) {
	t.Run("updates selection then list", func(t *testing.T) {
		gw := &fakeGateway{
			inst: func(ctx context.Context, id int64) (*model.Institution, error) {
				i := acme()
				i.Name = "Acme Holdings"
				return &i, nil
			},
			attached: func(ctx context.Context) ([]model.Institution, error) {
				return []model.Institution{acme(), globex()}, nil
			},
		}
		s := newSession(t, gw, nil)
		a := acme()
		s.st.Dispatch(SetSelectedInstitution(&a))

		s.dispatch(t, FetchUpToDateInstitution())

		assert.Equal(t, []action.Type{TypeSetSelectedInstitution, TypeSetAttachedInstitutions}, s.trace.after(TypeFetchUpToDateInstitution))
		assert.Equal(t, "Acme Holdings", s.auth().SelectedInstitution.Name)
		assert.Len(t, s.auth().AttachedInstitutions, 2)
	})

	t.Run("no selection is a no-op", func(t *testing.T) {
		s := newSession(t, &fakeGateway{}, nil)
		s.dispatch(t, FetchUpToDateInstitution())
		assert.Empty(t, s.trace.after(TypeFetchUpToDateInstitution))
	})

	t.Run("failures are swallowed", func(t *testing.T) {
		gw := &fakeGateway{
			inst: func(ctx context.Context, id int64) (*model.Institution, error) {
				return nil, errors.New("500")
			},
			attached: func(ctx context.Context) ([]model.Institution, error) {
				return []model.Institution{globex()}, nil
			},
		}
		s := newSession(t, gw, nil)
		a := acme()
		s.st.Dispatch(SetSelectedInstitution(&a))

		s.dispatch(t, FetchUpToDateInstitution())

		assert.Equal(t, []action.Type{TypeSetAttachedInstitutions}, s.trace.after(TypeFetchUpToDateInstitution))
		assert.Equal(t, "Acme", s.auth().SelectedInstitution.Name)
	})

	t.Run("empty list is not applied", func(t *testing.T) {
		gw := &fakeGateway{
			inst: func(ctx context.Context, id int64) (*model.Institution, error) {
				return nil, nil
			},
			attached: func(ctx context.Context) ([]model.Institution, error) {
				return []model.Institution{}, nil
			},
		}
		s := newSession(t, gw, nil)
		a := acme()
		s.st.Dispatch(SetSelectedInstitution(&a))

		s.dispatch(t, FetchUpToDateInstitution())
		assert.Empty(t, s.trace.after(TypeFetchUpToDateInstitution))
	})
}

func TestRefreshUser_KeepsSelection(t *testing.T) {
	s := newSession(t, &fakeGateway{}, nil)
	a := acme()
	s.st.Dispatch(SetSelectedInstitution(&a))

	resp := loginResponse(globex())
	resp.Tokens = model.Tokens{Access: "A9", Refresh: "R9"}
	s.dispatch(t, RefreshUser(*resp))

	assert.Equal(t, []action.Type{
		TypeSetAccessToken,
		TypeSetRefreshToken,
		TypeSetCurrentUser,
		TypeSetAttachedInstitutions,
	}, s.trace.after(TypeRefreshUser))
	st := s.auth()
	assert.Equal(t, "A9", st.AccessToken)
	assert.Equal(t, int64(1), st.SelectedInstitution.ID)
	assert.Len(t, st.AttachedInstitutions, 1)
}

func TestGrantTemporaryPermissions_ClearsAfterTTL(t *testing.T) {
	s := newSession(t, &fakeGateway{}, nil)
	s.st.Dispatch(SetCurrentUser(amina()))
	perms := []model.Permission{{Code: "can_approve_refunds"}}

	s.st.Dispatch(GrantTemporaryPermissions(perms, 0))
	waitForTimers(t, s, 1)

	assert.True(t, HasPermission(s.auth(), "can_approve_refunds"))

	s.clock.Advance(29 * time.Minute)
	assert.True(t, HasPermission(s.auth(), "can_approve_refunds"))

	s.clock.Advance(time.Minute)
	s.settle(t)
	assert.False(t, HasPermission(s.auth(), "can_approve_refunds"))
	assert.Empty(t, s.auth().TemporaryPermissions)
}

func TestGrantTemporaryPermissions_NewerGrantWins(t *testing.T) {
	s := newSession(t, &fakeGateway{}, nil)

	s.st.Dispatch(GrantTemporaryPermissions([]model.Permission{{Code: "old"}}, 10*time.Minute))
	waitForTimers(t, s, 1)
	s.clock.Advance(5 * time.Minute)

	s.st.Dispatch(GrantTemporaryPermissions([]model.Permission{{Code: "new"}}, 10*time.Minute))
	waitForTimers(t, s, 2)

	// The first grant's deadline passes; its task was cancelled and must not clear the new grant.
	s.clock.Advance(5 * time.Minute)
	assert.Equal(t, []model.Permission{{Code: "new"}}, s.auth().TemporaryPermissions)

	s.clock.Advance(5 * time.Minute)
	s.settle(t)
	assert.Empty(t, s.auth().TemporaryPermissions)
}

func waitForTimers(t *testing.T, s *session, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.clock.BlockUntil(ctx, n))
}
