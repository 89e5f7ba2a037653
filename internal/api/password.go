package api

import "strings"

const passwordSpecials = `!@#$%^&*(),.?":{}|<>`

// ValidatePasswordStrength returns the rules a new password breaks. An empty
// result means the password is acceptable.
func ValidatePasswordStrength(password string) []string {
	var problems []string
	if len(password) < 8 {
		problems = append(problems, "Password must be at least 8 characters long.")
	}
	if !strings.ContainsFunc(password, func(r rune) bool { return r >= '0' && r <= '9' }) {
		problems = append(problems, "Password must contain at least one digit.")
	}
	if !strings.ContainsFunc(password, func(r rune) bool { return r >= 'A' && r <= 'Z' }) {
		problems = append(problems, "Password must contain at least one uppercase letter.")
	}
	if !strings.ContainsFunc(password, func(r rune) bool { return r >= 'a' && r <= 'z' }) {
		problems = append(problems, "Password must contain at least one lowercase letter.")
	}
	if !strings.ContainsAny(password, passwordSpecials) {
		problems = append(problems, "Password must contain at least one special character.")
	}
	return problems
}
