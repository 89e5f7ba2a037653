// Package shell holds the navigation-shell slice: whether the sidebar is
// open and which theme variables are applied.
//
// It also provides the Presenter that carries out the post-logout effects
// requested by the auth workflows.
package shell

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/auth"
	"github.com/roach88/opsdesk/internal/model"
	"github.com/roach88/opsdesk/internal/saga"
	"github.com/roach88/opsdesk/internal/selector"
)

// SliceKey is the key the shell slice is registered under.
const SliceKey = "miscellaneous"

// Action types.
const (
	TypeToggleSidebar action.Type = "shell/TOGGLE_SIDEBAR"
	TypeSetTheme      action.Type = "shell/SET_THEME"
)

// State is the shell slice.
type State struct {
	SidebarOpened bool            `json:"sideBarOpened"`
	Theme         model.ThemeVars `json:"theme"`
}

// InitialState has the sidebar closed and the default theme.
func InitialState() *State {
	return &State{Theme: model.DefaultTheme()}
}

// ToggleSidebar flips the sidebar.
func ToggleSidebar() action.Action { return action.Of(TypeToggleSidebar) }

// SetTheme applies theme variables.
func SetTheme(t model.ThemeVars) action.Action { return action.New(TypeSetTheme, t) }

// Reducer is the shell slice reducer.
func Reducer(state any, a action.Action) any {
	s, _ := state.(*State)
	if s == nil {
		s = InitialState()
	}

	switch a.Type {
	case TypeToggleSidebar:
		next := *s
		next.SidebarOpened = !s.SidebarOpened
		return &next
	case TypeSetTheme:
		t, ok := action.PayloadAs[model.ThemeVars](a)
		if !ok || t == s.Theme {
			return s
		}
		next := *s
		next.Theme = t
		return &next
	}
	return s
}

var sliceOf = selector.Slice[*State](SliceKey)

func orInitial(s *State) *State {
	if s == nil {
		return InitialState()
	}
	return s
}

// Memoised selectors.
var (
	SelectSidebarOpened = selector.Create(sliceOf, func(s *State) bool { return orInitial(s).SidebarOpened })
	SelectTheme         = selector.Create(sliceOf, func(s *State) model.ThemeVars { return orInitial(s).Theme })
)

// Presenter applies post-logout effects to the shell slice.
type Presenter struct{}

// Present implements auth.Presenter. Effects run in order; the first one
// that cannot be applied stops the sequence.
func (Presenter) Present(eff *saga.Effects, effects []auth.PostLogoutEffect) error {
	for _, e := range effects {
		switch e.Kind {
		case auth.EffectResetTheme:
			if !eff.Put(SetTheme(e.Theme)) {
				return eff.Context().Err()
			}
		case auth.EffectEnsureSidebarOpen:
			if saga.Select(eff, SelectSidebarOpened) {
				continue
			}
			if !eff.Put(ToggleSidebar()) {
				return eff.Context().Err()
			}
		default:
			return fmt.Errorf("unsupported post-logout effect %q", e.Kind)
		}
	}
	return nil
}

// EncodeSnapshot serialises a *State.
func EncodeSnapshot(v any) ([]byte, error) {
	s, ok := v.(*State)
	if !ok || s == nil {
		return nil, fmt.Errorf("encode shell snapshot: unexpected value %T", v)
	}
	return json.Marshal(s)
}

// DecodeSnapshot rebuilds a *State. Missing theme variables fall back to
// the defaults.
func DecodeSnapshot(data []byte) (any, error) {
	s := InitialState()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode shell snapshot: %w", err)
	}
	return s, nil
}
