package model

// Permission is a single capability granted through a role or a temporary grant.
type Permission struct {
	Code        string `json:"permission_code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Role groups permissions under a name.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions_details,omitempty"`
}

// Till is a point-of-sale register inside a branch.
type Till struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Branch int64  `json:"branch"`
}

// Branch is a physical location of an institution.
type Branch struct {
	ID          int64  `json:"id"`
	Institution int64  `json:"institution"`
	Tills       []Till `json:"tills"`
	Name        string `json:"branch_name"`
	Phone       string `json:"branch_phone_number,omitempty"`
	Location    string `json:"branch_location"`
	Longitude   string `json:"branch_longitude"`
	Latitude    string `json:"branch_latitude"`
	Email       string `json:"branch_email,omitempty"`
	OpeningTime string `json:"branch_opening_time,omitempty"`
	ClosingTime string `json:"branch_closing_time,omitempty"`
}

// Institution is a tenant organisation a user is attached to.
type Institution struct {
	ID          int64    `json:"id"`
	Email       string   `json:"Institution_email"`
	OwnerID     int64    `json:"institution_owner_id"`
	Name        string   `json:"Institution_name"`
	Logo        *string  `json:"Institution_logo"`
	ThemeColor  *string  `json:"theme_color"`
	Branches    []Branch `json:"branches,omitempty"`
	FirstPhone  string   `json:"first_phone_number"`
	SecondPhone string   `json:"second_phone_number"`
}

// Branch returns the branch with the given id, or nil.
func (i *Institution) Branch(id int64) *Branch {
	if i == nil {
		return nil
	}
	for idx := range i.Branches {
		if i.Branches[idx].ID == id {
			return &i.Branches[idx]
		}
	}
	return nil
}

// User is the authenticated principal.
type User struct {
	ID       int64    `json:"id"`
	Fullname string   `json:"fullname"`
	Email    string   `json:"email"`
	IsActive bool     `json:"is_active"`
	IsStaff  bool     `json:"is_staff"`
	Roles    []Role   `json:"roles"`
	Branches []Branch `json:"branches"`
}

// Tokens is the access/refresh pair issued by the remote API.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// LoginResponse is the payload returned by a successful login or a user refresh.
//
// The wire name of the attached list is institutions_attached.
type LoginResponse struct {
	Tokens               Tokens        `json:"tokens"`
	User                 *User         `json:"user"`
	InstitutionsAttached []Institution `json:"institutions_attached"`
}

// Redacted returns a copy without the token pair.
func (r LoginResponse) Redacted() any {
	r.Tokens = Tokens{Access: "[redacted]", Refresh: "[redacted]"}
	return r
}

// FindInstitution returns the institution with the given id from list, or nil.
func FindInstitution(list []Institution, id int64) *Institution {
	for idx := range list {
		if list[idx].ID == id {
			return &list[idx]
		}
	}
	return nil
}
