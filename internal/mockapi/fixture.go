package mockapi

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/opsdesk/internal/model"
)

// Account states a fixture user can be in.
const (
	StatusActive          = ""
	StatusBlocked         = "blocked"
	StatusUnverified      = "unverified"
	StatusAdminUnverified = "admin_unverified"
)

// Fixture is the data the mock API serves.
//
// Fixture files are YAML documents using the API's wire field names, so the
// same records can be pasted from real responses.
type Fixture struct {
	Users        []Account           `json:"users"`
	Institutions []model.Institution `json:"institutions"`
	// ResetTokens are the password reset tokens the API accepts.
	ResetTokens []string `json:"reset_tokens,omitempty"`
}

// Account is a user record with its login secret.
type Account struct {
	User         model.User `json:"user"`
	Password     string     `json:"password"`
	Status       string     `json:"status,omitempty"`
	Institutions []int64    `json:"institutions,omitempty"`
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (Fixture, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(raw, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return Fixture{}, err
	}
	return f, nil
}

// LoadFixture reads and decodes a YAML fixture file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return ParseFixture(data)
}

// Validate checks that ids are unique and that account institutions exist.
func (f Fixture) Validate() error {
	users := make(map[int64]bool, len(f.Users))
	for _, a := range f.Users {
		if a.User.ID == 0 {
			return fmt.Errorf("fixture: user %q has no id", a.User.Email)
		}
		if users[a.User.ID] {
			return fmt.Errorf("fixture: duplicate user id %d", a.User.ID)
		}
		users[a.User.ID] = true
	}
	insts := make(map[int64]bool, len(f.Institutions))
	for _, inst := range f.Institutions {
		if insts[inst.ID] {
			return fmt.Errorf("fixture: duplicate institution id %d", inst.ID)
		}
		insts[inst.ID] = true
	}
	for _, a := range f.Users {
		for _, id := range a.Institutions {
			if !insts[id] {
				return fmt.Errorf("fixture: user %d attached to unknown institution %d", a.User.ID, id)
			}
		}
	}
	return nil
}

// DefaultFixture is a small two-institution world used by the CLI's mock-api
// command when no fixture file is given.
func DefaultFixture() Fixture {
	blue := "#1d4ed8"
	return Fixture{
		Institutions: []model.Institution{
			{
				ID: 10, Name: "Acme Retail", Email: "ops@acme.test", OwnerID: 1, ThemeColor: &blue,
				Branches: []model.Branch{
					{ID: 100, Institution: 10, Name: "Downtown", Tills: []model.Till{{ID: 1000, Name: "Till 1", Branch: 100}}},
					{ID: 101, Institution: 10, Name: "Airport"},
				},
			},
			{
				ID: 20, Name: "Globex", Email: "hq@globex.test", OwnerID: 2,
				Branches: []model.Branch{{ID: 200, Institution: 20, Name: "Main"}},
			},
		},
		Users: []Account{
			{
				User:         model.User{ID: 1, Fullname: "amina okafor", Email: "amina@acme.test", IsActive: true},
				Password:     "Secret#123",
				Institutions: []int64{10, 20},
			},
			{
				User: model.User{
					ID: 3, Fullname: "tomas berg", Email: "tomas@acme.test", IsActive: true,
					Roles: []model.Role{{ID: 1, Name: "cashier", Permissions: []model.Permission{
						{Code: "sales.create", Name: "Create sales"},
					}}},
				},
				Password:     "Secret#123",
				Institutions: []int64{10},
			},
			{
				User:     model.User{ID: 4, Fullname: "blocked user", Email: "blocked@acme.test"},
				Password: "Secret#123",
				Status:   StatusBlocked,
			},
		},
		ResetTokens: []string{"reset-token-1"},
	}
}
