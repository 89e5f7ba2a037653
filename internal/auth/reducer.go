package auth

import (
	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/model"
)

// State is the session slice. Values are never mutated in place; the reducer
// returns a new *State for every change.
//
// An empty token means "not set".
type State struct {
	AccessToken          string
	RefreshToken         string
	CurrentUser          *model.User
	AttachedInstitutions []model.Institution
	SelectedInstitution  *model.Institution
	SelectedBranch       *model.Branch
	SelectedTill         *model.Till
	TemporaryPermissions []model.Permission
	AuthError            *model.AuthError
	Loading              bool
}

// InitialState returns the unauthenticated state.
func InitialState() *State {
	return &State{
		AttachedInstitutions: []model.Institution{},
		TemporaryPermissions: []model.Permission{},
	}
}

// Reducer is the session slice reducer. It is total: unknown action types and
// payloads of the wrong type return the input unchanged.
func Reducer(state any, a action.Action) any {
	s, _ := state.(*State)
	if s == nil {
		s = InitialState()
	}

	switch a.Type {
	case TypeLoginStart, TypeLogoutStart:
		next := *s
		next.Loading = true
		return &next

	case TypeLoginFailure:
		e, ok := action.PayloadAs[model.AuthError](a)
		if !ok {
			return s
		}
		next := *s
		next.AuthError = &e
		next.Loading = false
		return &next

	case TypeLogoutFailure:
		msg, ok := action.PayloadAs[string](a)
		if !ok {
			return s
		}
		code := model.CodeOther
		if s.AuthError != nil && s.AuthError.CustomCode != "" {
			code = s.AuthError.CustomCode
		}
		next := *s
		next.AuthError = &model.AuthError{CustomCode: code, Message: msg}
		next.Loading = false
		return &next

	case TypeSetAccessToken:
		tok, ok := action.PayloadAs[string](a)
		if !ok {
			return s
		}
		next := *s
		next.AccessToken = tok
		return &next

	case TypeSetRefreshToken:
		tok, ok := action.PayloadAs[string](a)
		if !ok {
			return s
		}
		next := *s
		next.RefreshToken = tok
		return &next

	case TypeSetCurrentUser:
		u, ok := action.PayloadAs[*model.User](a)
		if !ok {
			return s
		}
		next := *s
		next.CurrentUser = u
		next.AuthError = nil
		next.Loading = false
		return &next

	case TypeSetAttachedInstitutions:
		list, ok := action.PayloadAs[[]model.Institution](a)
		if !ok {
			return s
		}
		if list == nil {
			list = []model.Institution{}
		}
		next := *s
		next.AttachedInstitutions = list
		return &next

	case TypeSetSelectedInstitution:
		inst, ok := action.PayloadAs[*model.Institution](a)
		if !ok {
			return s
		}
		next := *s
		next.SelectedInstitution = inst
		return &next

	case TypeSetSelectedBranch:
		b, ok := action.PayloadAs[*model.Branch](a)
		if !ok {
			return s
		}
		next := *s
		next.SelectedBranch = b
		return &next

	case TypeSetSelectedTill:
		t, ok := action.PayloadAs[*model.Till](a)
		if !ok {
			return s
		}
		next := *s
		next.SelectedTill = t
		return &next

	case TypeClearSelectedTill:
		if s.SelectedTill == nil {
			return s
		}
		next := *s
		next.SelectedTill = nil
		return &next

	case TypeSetTemporaryPermissions:
		perms, ok := action.PayloadAs[[]model.Permission](a)
		if !ok {
			return s
		}
		if perms == nil {
			perms = []model.Permission{}
		}
		next := *s
		next.TemporaryPermissions = perms
		return &next

	case TypeClearTemporaryPermissions:
		next := *s
		next.TemporaryPermissions = []model.Permission{}
		return &next

	case TypeClearAuthError:
		next := *s
		next.AuthError = nil
		next.Loading = false
		return &next

	case TypeUpdateTheme:
		colors, ok := action.PayloadAs[ThemeColors](a)
		if !ok || len(colors.Colors) == 0 || s.SelectedInstitution == nil {
			return s
		}
		return withThemeColor(s, colors.Colors[0])

	case TypeRemoveTheme:
		if s.SelectedInstitution == nil {
			return s
		}
		return withThemeColor(s, "")

	case TypeLogoutSuccess:
		return InitialState()
	}

	return s
}

func withThemeColor(s *State, color string) *State {
	inst := *s.SelectedInstitution
	inst.ThemeColor = &color
	next := *s
	next.SelectedInstitution = &inst
	return &next
}
