package api

import (
	"errors"
	"fmt"

	"github.com/roach88/opsdesk/internal/model"
)

// ErrNoRefreshToken is returned when a 401 cannot be recovered because the
// session holds no refresh token.
var ErrNoRefreshToken = errors.New("no refresh token")

var errMalformedTokens = errors.New("refresh: malformed token response")

// RequestError is a non-2xx response from the remote API.
type RequestError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Code    model.CustomCode
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, msg)
}

// CustomCode returns the response's custom_code.
func (e *RequestError) CustomCode() model.CustomCode { return e.Code }

// Detail returns the response's detail message.
func (e *RequestError) Detail() string { return e.Message }

// IsStatus reports whether err is a RequestError with the given status.
func IsStatus(err error, status int) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status == status
	}
	return false
}

// errorBody is the error payload the remote API returns.
type errorBody struct {
	Detail     string `json:"detail"`
	CustomCode string `json:"custom_code"`
}
