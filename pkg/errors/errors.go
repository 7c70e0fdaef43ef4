package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by every layer. Repositories and services wrap these
// so handlers can map them to HTTP statuses with errors.Is.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
	ErrRateLimited   = errors.New("rate limited")
)

// kind describes how a sentinel is reported to API clients.
type kind struct {
	sentinel error
	code     string
	status   int
	message  string
}

// kinds is checked in order; the first sentinel err wraps wins.
var kinds = []kind{
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound, "resource not found"},
	{ErrAlreadyExists, "ALREADY_EXISTS", http.StatusConflict, "resource already exists"},
	{ErrConflict, "CONFLICT", http.StatusConflict, "request conflicts with current state"},
	{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest, ""},
	{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized, "authentication required"},
	{ErrForbidden, "FORBIDDEN", http.StatusForbidden, "not authorized"},
	{ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests, "too many requests"},
}

func kindOf(sentinel error) kind {
	for _, k := range kinds {
		if k.sentinel == sentinel {
			return k
		}
	}
	panic(fmt.Sprintf("errors: no kind registered for %v", sentinel))
}

// AppError carries a machine-readable code and the HTTP status it maps to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(sentinel error, message string) *AppError {
	k := kindOf(sentinel)
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
}

// NotFound reports a missing clinic or review.
func NotFound(resource, id string) *AppError {
	return newAppError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

// AlreadyExists reports a duplicate key such as a clinic slug.
func AlreadyExists(resource, field, value string) *AppError {
	return newAppError(ErrAlreadyExists, fmt.Sprintf("%s with %s %q already exists", resource, field, value))
}

// Conflict reports a state transition that is not allowed.
func Conflict(message string) *AppError {
	return newAppError(ErrConflict, message)
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return newAppError(ErrInvalidInput, message)
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return newAppError(ErrUnauthorized, message)
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return newAppError(ErrForbidden, message)
}

// RateLimited creates a 429 error.
func RateLimited(message string) *AppError {
	return newAppError(ErrRateLimited, message)
}

// Describe returns the status, code and client-facing message for err.
// AppErrors report themselves; wrapped sentinels get their registered code.
// Anything else is an internal error and known is false.
func Describe(err error) (status int, code, message string, known bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Code, appErr.Message, appErr.Status < http.StatusInternalServerError
	}

	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			msg := k.message
			if msg == "" {
				msg = err.Error()
			}
			return k.status, k.code, msg, true
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred", false
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	status, _, _, _ := Describe(err)
	return status
}
