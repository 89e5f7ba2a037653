package auth

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/opsdesk/internal/model"
)

// snapshot is the persisted projection of State. Temporary permissions, the
// auth error and the loading flag are session-local and never written.
type snapshot struct {
	AccessToken          string              `json:"accessToken"`
	RefreshToken         string              `json:"refreshToken"`
	User                 *model.User         `json:"user"`
	InstitutionsAttached []model.Institution `json:"institutionsAttached"`
	SelectedInstitution  *model.Institution  `json:"selectedInstitution"`
	SelectedBranch       *model.Branch       `json:"selectedBranch"`
	SelectedTill         *model.Till         `json:"selectedTill"`
}

// EncodeSnapshot serialises the persisted part of a *State.
func EncodeSnapshot(v any) ([]byte, error) {
	s, ok := v.(*State)
	if !ok || s == nil {
		return nil, fmt.Errorf("encode auth snapshot: unexpected value %T", v)
	}
	return json.Marshal(snapshot{
		AccessToken:          s.AccessToken,
		RefreshToken:         s.RefreshToken,
		User:                 s.CurrentUser,
		InstitutionsAttached: s.AttachedInstitutions,
		SelectedInstitution:  s.SelectedInstitution,
		SelectedBranch:       s.SelectedBranch,
		SelectedTill:         s.SelectedTill,
	})
}

// DecodeSnapshot rebuilds a *State from EncodeSnapshot output.
func DecodeSnapshot(data []byte) (any, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode auth snapshot: %w", err)
	}

	s := InitialState()
	s.AccessToken = snap.AccessToken
	s.RefreshToken = snap.RefreshToken
	s.CurrentUser = snap.User
	if snap.InstitutionsAttached != nil {
		s.AttachedInstitutions = snap.InstitutionsAttached
	}
	s.SelectedInstitution = snap.SelectedInstitution
	s.SelectedBranch = snap.SelectedBranch
	s.SelectedTill = snap.SelectedTill
	return s, nil
}
