package model

import "fmt"

// CustomCode is the machine-readable reason attached to an authentication failure.
type CustomCode string

const (
	// CodeBlockedByAdmin indicates the account was disabled by an administrator.
	CodeBlockedByAdmin CustomCode = "BLOCKED_BY_ADMIN"

	// CodeSelfCreatedUnverified indicates a self-registered account that has not verified its email.
	CodeSelfCreatedUnverified CustomCode = "SELF_CREATED_UNVERIFIED"

	// CodeAdminCreatedUnverified indicates an admin-created account that has not been activated.
	CodeAdminCreatedUnverified CustomCode = "ADMIN_CREATED_UNVERIFIED"

	// CodeInvalidCredentials indicates a wrong email or password.
	CodeInvalidCredentials CustomCode = "INVALID_CREDENTIALS"

	// CodeOther covers every failure without a recognised code.
	CodeOther CustomCode = "OTHER"
)

// UnknownErrorMessage is the message used when a failure carries no detail.
const UnknownErrorMessage = "Unknown error"

// knownCodes lists the codes the remote API is documented to return.
var knownCodes = map[CustomCode]bool{
	CodeBlockedByAdmin:         true,
	CodeSelfCreatedUnverified:  true,
	CodeAdminCreatedUnverified: true,
	CodeInvalidCredentials:     true,
	CodeOther:                  true,
}

// Known reports whether c is one of the documented codes.
func (c CustomCode) Known() bool {
	return knownCodes[c]
}

// AuthError is the normalised failure stored on the session slice.
type AuthError struct {
	CustomCode CustomCode `json:"customCode"`
	Message    string     `json:"message"`
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.CustomCode, e.Message)
}
