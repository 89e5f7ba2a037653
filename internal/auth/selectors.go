package auth

import (
	"github.com/roach88/opsdesk/internal/model"
	"github.com/roach88/opsdesk/internal/selector"
	"github.com/roach88/opsdesk/internal/store"
)

var sliceOf = selector.Slice[*State](SliceKey)

// Of returns the session slice of root, or the initial state if the slice is
// missing.
func Of(root *store.State) *State {
	if s := sliceOf(root); s != nil {
		return s
	}
	return InitialState()
}

func project[R any](f func(*State) R) selector.Selector[R] {
	return selector.Create(sliceOf, func(s *State) R {
		if s == nil {
			s = InitialState()
		}
		return f(s)
	})
}

// Memoised selectors over the session slice.
var (
	SelectUser = project(func(s *State) *model.User { return s.CurrentUser })

	SelectAuthError = project(func(s *State) *model.AuthError { return s.AuthError })

	SelectUserLoading = project(func(s *State) bool { return s.Loading })

	SelectAccessToken = project(func(s *State) string { return s.AccessToken })

	SelectRefreshToken = project(func(s *State) string { return s.RefreshToken })

	SelectIsAuthenticated = project(func(s *State) bool {
		return s.AccessToken != "" && s.CurrentUser != nil
	})

	SelectAttachedInstitutions = project(func(s *State) []model.Institution { return s.AttachedInstitutions })

	SelectSelectedInstitution = project(func(s *State) *model.Institution { return s.SelectedInstitution })

	SelectSelectedBranch = project(func(s *State) *model.Branch { return s.SelectedBranch })

	SelectSelectedTill = project(func(s *State) *model.Till { return s.SelectedTill })

	SelectTemporaryPermissions = project(func(s *State) []model.Permission { return s.TemporaryPermissions })

	// SelectUserDisplayName is the user's full name in title case, or "".
	SelectUserDisplayName = project(func(s *State) string {
		if s.CurrentUser == nil {
			return ""
		}
		return model.DisplayName(s.CurrentUser.Fullname)
	})
)
