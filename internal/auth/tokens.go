package auth

import (
	"github.com/roach88/opsdesk/internal/store"
)

// TokenSource exposes the session tokens to the API client and lets the
// client store refreshed tokens or end the session.
type TokenSource struct {
	st *store.Store
}

// NewTokenSource creates a token source backed by st.
func NewTokenSource(st *store.Store) *TokenSource {
	return &TokenSource{st: st}
}

// AccessToken returns the current access token, or "".
func (t *TokenSource) AccessToken() string {
	return SelectAccessToken(t.st.State())
}

// RefreshToken returns the current refresh token, or "".
func (t *TokenSource) RefreshToken() string {
	return SelectRefreshToken(t.st.State())
}

// SetTokens stores a refreshed pair. An empty refresh token keeps the old one.
func (t *TokenSource) SetTokens(access, refresh string) {
	t.st.Dispatch(SetAccessToken(access))
	if refresh != "" {
		t.st.Dispatch(SetRefreshToken(refresh))
	}
}

// SessionExpired starts the logout workflow.
func (t *TokenSource) SessionExpired() {
	t.st.Dispatch(LogoutStart())
}
