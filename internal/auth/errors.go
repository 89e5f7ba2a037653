package auth

import (
	"errors"

	"github.com/roach88/opsdesk/internal/model"
)

// CodedError is an error that carries the remote API's custom code and
// detail message. api.RequestError implements it.
type CodedError interface {
	error
	CustomCode() model.CustomCode
	Detail() string
}

// ErrIncompleteLogin is returned when a login response lacks tokens or the user.
var ErrIncompleteLogin = errors.New("login response is missing tokens or user")

// NormalizeError converts any failure into the AuthError stored on the slice.
//
// An error carrying a custom code keeps that code and its detail (or
// model.UnknownErrorMessage when the detail is empty). Everything else,
// including nil, becomes {OTHER, "Unknown error"}.
func NormalizeError(err error) model.AuthError {
	var ce CodedError
	if err != nil && errors.As(err, &ce) && ce.CustomCode() != "" {
		msg := ce.Detail()
		if msg == "" {
			msg = model.UnknownErrorMessage
		}
		return model.AuthError{CustomCode: ce.CustomCode(), Message: msg}
	}
	return model.AuthError{CustomCode: model.CodeOther, Message: model.UnknownErrorMessage}
}
