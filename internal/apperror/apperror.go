// Package apperror defines the application's error taxonomy.
//
// Every error that crosses a layer boundary either wraps one of the sentinel
// values below or is an *AppError / *PermissionError that unwraps to one. The
// HTTP layer only ever looks at sentinels (errors.Is), so storage backends and
// services can add context freely with fmt.Errorf("...: %w", err).
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPermission means the store refused a read or write.
	ErrPermission = errors.New("permission denied")
	// ErrTransaction means the ledger transaction did not commit after the
	// store's own retries. Callers revert optimistic state and let the user resubmit.
	ErrTransaction = errors.New("transaction failed")

	// Identity provider rejections.
	ErrEmailInUse         = errors.New("email in use")
	ErrWeakPassword       = errors.New("weak password")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
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
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned when a request carries no valid session.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// TransactionFailed wraps the store error that stopped a ledger commit.
// The message is safe to show to the user; the cause stays in the chain for logs.
func TransactionFailed(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrTransaction, cause),
		Message: "Could not save your progress. Please try again.",
	}
}

// EmailInUse, WeakPassword and InvalidCredentials carry the fixed user-facing
// messages of the sign-up / sign-in forms.
func EmailInUse() *AppError {
	return &AppError{Err: ErrEmailInUse, Message: AuthMessage(ErrEmailInUse), Field: "email"}
}

func WeakPassword() *AppError {
	return &AppError{Err: ErrWeakPassword, Message: AuthMessage(ErrWeakPassword), Field: "password"}
}

func InvalidCredentials() *AppError {
	return &AppError{Err: ErrInvalidCredentials, Message: AuthMessage(ErrInvalidCredentials)}
}

// AuthMessage maps an identity error to the message shown on the auth form.
// Anything it does not recognise gets the generic fallback.
func AuthMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmailInUse):
		return "This email is already in use. Please sign in."
	case errors.Is(err, ErrWeakPassword):
		return "Password should be at least 6 characters."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	default:
		return "An unexpected error occurred."
	}
}
