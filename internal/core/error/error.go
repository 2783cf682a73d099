package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage is returned when a key is missing.
	RedisNotFoundMessage = "record not found"
	// DatabaseErrorMessage describes failures of the SQL backend.
	DatabaseErrorMessage = "database query failed"
	// SearchErrorMessage describes failures of the vector index or embedder.
	SearchErrorMessage = "cached query search failed"
)

// Sentinel errors shared across packages. Match them with errors.Is.
var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrAccessDenied   = errors.New("access denied to this thread")
	ErrAuthRequired   = errors.New("authentication required")
	ErrEmptyMessage   = errors.New("message must not be empty")
	ErrInvalidStatus  = errors.New("invalid thread status")
	ErrNotConfigured  = errors.New("dependency not configured")
)

// AppError wraps an underlying error with an HTTP-style status and a safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}

// NotFound builds a 404 error around a sentinel.
func NotFound(err error) *AppError {
	return New(err, http.StatusNotFound, err.Error())
}

// Forbidden builds a 403 error around a sentinel.
func Forbidden(err error) *AppError {
	return New(err, http.StatusForbidden, err.Error())
}

// Unauthorized builds a 401 error around a sentinel.
func Unauthorized(err error) *AppError {
	return New(err, http.StatusUnauthorized, err.Error())
}

// BadRequest builds a 400 error around a sentinel.
func BadRequest(err error) *AppError {
	return New(err, http.StatusBadRequest, err.Error())
}

// StatusOf returns the status carried by the first AppError in the chain, or 500.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
