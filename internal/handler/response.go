package handler

// Every error response from the API has the same shape:
//
//	{"error": "validation_error", "message": "amount must be a positive number", "field": "amount"}
//
// so clients always know which fields to expect, whatever the status code.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	_ "time/tzdata" // X-Timezone lookups must not depend on the host zoneinfo

	"github.com/sakif/hydrate/internal/apperror"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 16

// TimezoneHeader carries the caller's IANA timezone, e.g. "Europe/Berlin".
const TimezoneHeader = "X-Timezone"

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable error type, e.g. "not_found"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // request field at fault, when known
}

// writeJSON sends a JSON response. Headers and status go out before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps a domain error to its HTTP status and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrWeakPassword):
		return http.StatusBadRequest, "weak_password"
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrPermission):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrEmailInUse):
		return http.StatusConflict, "email_in_use"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrTransaction):
		return http.StatusServiceUnavailable, "transaction_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps a domain error to a status code and sends it.
//
// The message comes from an *apperror.AppError when there is one. Anything else
// gets a generic message: raw errors can carry SQL or file paths.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := statusFor(err)
	resp := ErrorResponse{Error: errorType, Message: "An internal error occurred"}

	var appErr *apperror.AppError
	var permErr *apperror.PermissionError
	switch {
	case errors.As(err, &appErr):
		resp.Message = appErr.Message
		resp.Field = appErr.Field
	case errors.As(err, &permErr):
		resp.Message = fmt.Sprintf("not allowed to %s %s", permErr.Op, permErr.Path)
	}
	if status == http.StatusInternalServerError {
		resp.Message = "An internal error occurred"
	}

	writeJSON(w, status, resp)
}

// decodeJSON reads a size-limited JSON body into dst and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("", "request body is empty")
		}
		return apperror.ValidationFailed("", "invalid JSON: "+err.Error())
	}
	return nil
}

// Locator resolves the caller's timezone for a request.
type Locator struct {
	Default *time.Location
}

// Location reads the X-Timezone header, then the tz query parameter, and
// falls back to the default. An unknown zone name is a validation error.
func (l Locator) Location(r *http.Request) (*time.Location, error) {
	name := r.Header.Get(TimezoneHeader)
	if name == "" {
		name = r.URL.Query().Get("tz")
	}
	if name == "" {
		if l.Default != nil {
			return l.Default, nil
		}
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperror.ValidationFailed("timezone", fmt.Sprintf("unknown timezone %q", name))
	}
	return loc, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
