package auth

import (
	"log/slog"
	"time"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/model"
)

// SliceKey is the key the session slice is registered under.
const SliceKey = "auth"

// Action types handled by the reducer.
const (
	TypeLoginStart                action.Type = "auth/LOGIN_START"
	TypeLoginFailure              action.Type = "auth/LOGIN_FAILURE"
	TypeLogoutStart               action.Type = "auth/LOGOUT_START"
	TypeLogoutSuccess             action.Type = "auth/LOGOUT_SUCCESS"
	TypeLogoutFailure             action.Type = "auth/LOGOUT_FAILURE"
	TypeSetAccessToken            action.Type = "auth/SET_ACCESS_TOKEN"
	TypeSetRefreshToken           action.Type = "auth/SET_REFRESH_TOKEN"
	TypeSetCurrentUser            action.Type = "auth/SET_CURRENT_USER"
	TypeSetAttachedInstitutions   action.Type = "auth/SET_ATTACHED_INSTITUTIONS"
	TypeSetSelectedInstitution    action.Type = "auth/SET_SELECTED_INSTITUTION"
	TypeSetSelectedBranch         action.Type = "auth/SET_SELECTED_BRANCH"
	TypeSetSelectedTill           action.Type = "auth/SET_SELECTED_TILL"
	TypeClearSelectedTill         action.Type = "auth/CLEAR_SELECTED_TILL"
	TypeSetTemporaryPermissions   action.Type = "auth/SET_TEMPORARY_PERMISSIONS"
	TypeClearTemporaryPermissions action.Type = "auth/CLEAR_TEMPORARY_PERMISSIONS"
	TypeClearAuthError            action.Type = "auth/CLEAR_AUTH_ERROR"
	TypeUpdateTheme               action.Type = "auth/UPDATE_THEME"
	TypeRemoveTheme               action.Type = "auth/REMOVE_THEME"
)

// Action types that only trigger workflows.
const (
	TypeFetchRemoteUserStart      action.Type = "auth/FETCH_REMOTE_USER_START"
	TypeFetchUpToDateInstitution  action.Type = "auth/FETCH_UPTODATE_INSTITUTION"
	TypeRefreshUser               action.Type = "auth/REFRESH_USER"
	TypeGrantTemporaryPermissions action.Type = "auth/GRANT_TEMPORARY_PERMISSIONS"
)

// SecretActionTypes carry a bare token as their payload.
var SecretActionTypes = []action.Type{TypeSetAccessToken, TypeSetRefreshToken}

// LogoutFailureMessage is stored on the slice when logout cannot complete.
const LogoutFailureMessage = "Something went wrong !"

// Credentials is the LOGIN_START payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LogValue keeps the password out of logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("email", c.Email),
		slog.String("password", "[redacted]"),
	)
}

// Redacted returns a copy safe to record in the action journal.
func (c Credentials) Redacted() any {
	return Credentials{Email: c.Email, Password: "[redacted]"}
}

// ThemeColors is the UPDATE_THEME payload. The first colour becomes the
// selected institution's theme colour.
type ThemeColors struct {
	Colors    []string `json:"colors"`
	Timestamp int64    `json:"timestamp"`
}

// TemporaryGrant is the GRANT_TEMPORARY_PERMISSIONS payload. A zero TTL
// uses the workflow default.
type TemporaryGrant struct {
	Permissions []model.Permission `json:"permissions"`
	TTL         time.Duration      `json:"ttl"`
}

// LoginStart requests a login.
func LoginStart(email, password string) action.Action {
	return action.New(TypeLoginStart, Credentials{Email: email, Password: password})
}

// LoginFailure records a normalised login failure.
func LoginFailure(err model.AuthError) action.Action {
	return action.New(TypeLoginFailure, err)
}

// LogoutStart requests a logout.
func LogoutStart() action.Action { return action.Of(TypeLogoutStart) }

// LogoutSuccess resets the slice to its initial state.
func LogoutSuccess() action.Action { return action.Of(TypeLogoutSuccess) }

// LogoutFailure records a logout failure message.
func LogoutFailure(message string) action.Action {
	return action.New(TypeLogoutFailure, message)
}

// SetAccessToken stores the access token.
func SetAccessToken(token string) action.Action {
	return action.New(TypeSetAccessToken, token)
}

// SetRefreshToken stores the refresh token.
func SetRefreshToken(token string) action.Action {
	return action.New(TypeSetRefreshToken, token)
}

// SetCurrentUser stores the user record and clears any auth error.
func SetCurrentUser(u *model.User) action.Action {
	return action.New(TypeSetCurrentUser, u)
}

// SetAttachedInstitutions replaces the attached institution list.
func SetAttachedInstitutions(list []model.Institution) action.Action {
	return action.New(TypeSetAttachedInstitutions, list)
}

// SetSelectedInstitution selects an institution. It does not touch the branch.
func SetSelectedInstitution(inst *model.Institution) action.Action {
	return action.New(TypeSetSelectedInstitution, inst)
}

// SetSelectedBranch selects a branch.
func SetSelectedBranch(b *model.Branch) action.Action {
	return action.New(TypeSetSelectedBranch, b)
}

// SetSelectedTill selects a till.
func SetSelectedTill(t *model.Till) action.Action {
	return action.New(TypeSetSelectedTill, t)
}

// ClearSelectedTill deselects the till.
func ClearSelectedTill() action.Action { return action.Of(TypeClearSelectedTill) }

// SetTemporaryPermissions replaces the temporary grants.
func SetTemporaryPermissions(perms []model.Permission) action.Action {
	return action.New(TypeSetTemporaryPermissions, perms)
}

// ClearTemporaryPermissions drops every temporary grant.
func ClearTemporaryPermissions() action.Action {
	return action.Of(TypeClearTemporaryPermissions)
}

// ClearAuthError clears the stored failure.
func ClearAuthError() action.Action { return action.Of(TypeClearAuthError) }

// UpdateTheme sets the selected institution's theme colour.
func UpdateTheme(colors ThemeColors) action.Action {
	return action.New(TypeUpdateTheme, colors)
}

// RemoveTheme blanks the selected institution's theme colour.
func RemoveTheme() action.Action { return action.Of(TypeRemoveTheme) }

// FetchRemoteUserStart re-fetches the current user.
func FetchRemoteUserStart() action.Action { return action.Of(TypeFetchRemoteUserStart) }

// FetchUpToDateInstitution re-fetches the selected institution and the
// attached list.
func FetchUpToDateInstitution() action.Action { return action.Of(TypeFetchUpToDateInstitution) }

// RefreshUser applies a fresh login response without changing selections.
func RefreshUser(resp model.LoginResponse) action.Action {
	return action.New(TypeRefreshUser, resp)
}

// GrantTemporaryPermissions sets temporary grants that clear after ttl.
func GrantTemporaryPermissions(perms []model.Permission, ttl time.Duration) action.Action {
	return action.New(TypeGrantTemporaryPermissions, TemporaryGrant{Permissions: perms, TTL: ttl})
}
