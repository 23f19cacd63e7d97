// Package apperror defines the domain error taxonomy shared by the service
// and repository layers. Handlers translate these to HTTP status codes;
// nothing below the handler layer knows about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")
)

type AppError struct {
	Err     error  // sentinel this error wraps
	Message string // human-readable error message
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s already exists with id %s", resource, id),
	}
}

// InvalidCredentials covers both "unknown email" and "wrong password".
// The message is deliberately identical for the two cases so login responses
// don't leak which emails have accounts.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "invalid email or password",
	}
}

// NotAuthenticated indicates an operation that requires a session was called
// without one. Handlers map this to 401.
func NotAuthenticated() *AppError {
	return &AppError{
		Err:     ErrNotAuthenticated,
		Message: "authentication required",
	}
}
