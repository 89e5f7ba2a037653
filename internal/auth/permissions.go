package auth

import (
	"errors"
	"slices"

	"github.com/roach88/opsdesk/internal/model"
	"github.com/roach88/opsdesk/internal/store"
)

// IsInstitutionOwner reports whether the current user owns the selected
// institution.
func IsInstitutionOwner(s *State) bool {
	if s == nil || s.CurrentUser == nil || s.SelectedInstitution == nil {
		return false
	}
	return s.CurrentUser.ID == s.SelectedInstitution.OwnerID
}

// HasPermission reports whether the current user holds code.
//
// The owner of the selected institution holds every permission. Otherwise a
// temporary grant or any role permission with the same code suffices.
func HasPermission(s *State, code string) bool {
	if s == nil || s.CurrentUser == nil {
		return false
	}
	if IsInstitutionOwner(s) {
		return true
	}
	for _, p := range s.TemporaryPermissions {
		if p.Code == code {
			return true
		}
	}
	for _, r := range s.CurrentUser.Roles {
		for _, p := range r.Permissions {
			if p.Code == code {
				return true
			}
		}
	}
	return false
}

// DefaultInstitutionID returns the selected institution's id, falling back
// to the first attached institution. ok is false when neither exists.
func DefaultInstitutionID(s *State) (id int64, ok bool) {
	if s == nil {
		return 0, false
	}
	if s.SelectedInstitution != nil {
		return s.SelectedInstitution.ID, true
	}
	if len(s.AttachedInstitutions) > 0 {
		return s.AttachedInstitutions[0].ID, true
	}
	return 0, false
}

// CurrentBranchID returns the selected branch id.
func CurrentBranchID(s *State) (int64, bool) {
	if s == nil || s.SelectedBranch == nil {
		return 0, false
	}
	return s.SelectedBranch.ID, true
}

// ExtractRequiredPermissions returns every role permission whose code is in
// codes, in role order.
func ExtractRequiredPermissions(roles []model.Role, codes []string) []model.Permission {
	var out []model.Permission
	for _, r := range roles {
		for _, p := range r.Permissions {
			if slices.Contains(codes, p.Code) {
				out = append(out, p)
			}
		}
	}
	return out
}

// HasAnyRequiredPermissions reports whether any role carries one of codes.
func HasAnyRequiredPermissions(roles []model.Role, codes []string) bool {
	return len(ExtractRequiredPermissions(roles, codes)) > 0
}

// Selection errors returned by SelectInstitution.
var (
	ErrInstitutionNotAttached = errors.New("institution is not attached to the current user")
	ErrBranchNotInInstitution = errors.New("branch does not belong to the institution")
)

// SelectInstitution selects an attached institution and one of its branches.
//
// A branchID of 0 picks the institution's first branch, or none if it has no
// branches. The till selection is cleared. Nothing is dispatched when the
// selection would be inconsistent.
func SelectInstitution(st *store.Store, institutionID, branchID int64) error {
	s := Of(st.State())

	inst := model.FindInstitution(s.AttachedInstitutions, institutionID)
	if inst == nil {
		return ErrInstitutionNotAttached
	}

	var branch *model.Branch
	switch {
	case branchID != 0:
		branch = inst.Branch(branchID)
		if branch == nil {
			return ErrBranchNotInInstitution
		}
	case len(inst.Branches) > 0:
		branch = &inst.Branches[0]
	}

	chosen := *inst
	st.Dispatch(SetSelectedInstitution(&chosen))
	st.Dispatch(SetSelectedBranch(branch))
	st.Dispatch(ClearSelectedTill())
	return nil
}
