package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/opsdesk/internal/auth"
	"github.com/roach88/opsdesk/internal/model"
	"github.com/roach88/opsdesk/internal/store"
)

// Ref names an entity by id and display name.
type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s (%d)", r.Name, r.ID)
}

// SessionView is the printable summary of a session.
type SessionView struct {
	Authenticated        bool     `json:"authenticated"`
	UserID               int64    `json:"user_id,omitempty"`
	DisplayName          string   `json:"display_name,omitempty"`
	Email                string   `json:"email,omitempty"`
	Institution          *Ref     `json:"institution,omitempty"`
	Branch               *Ref     `json:"branch,omitempty"`
	Till                 *Ref     `json:"till,omitempty"`
	ThemeColor           string   `json:"theme_color,omitempty"`
	AttachedInstitutions []Ref    `json:"attached_institutions,omitempty"`
	TemporaryPermissions []string `json:"temporary_permissions,omitempty"`
}

func newSessionView(root *store.State) SessionView {
	v := SessionView{Authenticated: auth.SelectIsAuthenticated(root)}
	if !v.Authenticated {
		return v
	}

	if u := auth.SelectUser(root); u != nil {
		v.UserID = u.ID
		v.Email = u.Email
	}
	v.DisplayName = auth.SelectUserDisplayName(root)

	if inst := auth.SelectSelectedInstitution(root); inst != nil {
		v.Institution = &Ref{ID: inst.ID, Name: inst.Name}
		if inst.ThemeColor != nil {
			v.ThemeColor = *inst.ThemeColor
		}
	}
	if b := auth.SelectSelectedBranch(root); b != nil {
		v.Branch = &Ref{ID: b.ID, Name: b.Name}
	}
	if t := auth.SelectSelectedTill(root); t != nil {
		v.Till = &Ref{ID: t.ID, Name: t.Name}
	}
	for _, inst := range auth.SelectAttachedInstitutions(root) {
		v.AttachedInstitutions = append(v.AttachedInstitutions, Ref{ID: inst.ID, Name: inst.Name})
	}
	v.TemporaryPermissions = permissionCodes(auth.SelectTemporaryPermissions(root))
	return v
}

func (v SessionView) String() string {
	if !v.Authenticated {
		return "Not logged in\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Logged in as %s <%s> (user %d)\n", v.DisplayName, v.Email, v.UserID)
	if v.Institution != nil {
		fmt.Fprintf(&b, "Institution: %s\n", v.Institution)
	} else {
		b.WriteString("Institution: none selected\n")
	}
	if v.Branch != nil {
		fmt.Fprintf(&b, "Branch: %s\n", v.Branch)
	}
	if v.Till != nil {
		fmt.Fprintf(&b, "Till: %s\n", v.Till)
	}
	if len(v.AttachedInstitutions) > 0 {
		b.WriteString("Attached institutions:\n")
		for _, inst := range v.AttachedInstitutions {
			marker := " "
			if v.Institution != nil && v.Institution.ID == inst.ID {
				marker = "*"
			}
			fmt.Fprintf(&b, "  %s %d %s\n", marker, inst.ID, inst.Name)
		}
	}
	if len(v.TemporaryPermissions) > 0 {
		fmt.Fprintf(&b, "Temporary permissions: %s\n", strings.Join(v.TemporaryPermissions, ", "))
	}
	return b.String()
}

func permissionCodes(perms []model.Permission) []string {
	if len(perms) == 0 {
		return nil
	}
	codes := make([]string, len(perms))
	for i, p := range perms {
		codes[i] = p.Code
	}
	return codes
}

// MessageView is a single line of text output.
type MessageView struct {
	Message string `json:"message"`
}

func (m MessageView) String() string {
	return m.Message + "\n"
}
