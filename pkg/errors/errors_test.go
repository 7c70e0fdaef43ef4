package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEverySentinelHasAKind(t *testing.T) {
	for _, sentinel := range []error{
		ErrNotFound, ErrAlreadyExists, ErrInvalidInput, ErrUnauthorized,
		ErrForbidden, ErrConflict, ErrRateLimited,
	} {
		assert.NotPanics(t, func() { kindOf(sentinel) }, sentinel.Error())
	}
	assert.Panics(t, func() { kindOf(errors.New("unregistered")) })
}

func TestAppError_ErrorString(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "clinic not found"}
	assert.Equal(t, "NOT_FOUND: clinic not found", appErr.Error())

	appErr.Err = fmt.Errorf("no rows")
	assert.Equal(t, "NOT_FOUND: clinic not found: no rows", appErr.Error())
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		sentinel error
		code     string
		status   int
		message  string
	}{
		{"not found", NotFound("review", "abc-123"), ErrNotFound, "NOT_FOUND", http.StatusNotFound, "review with id abc-123 not found"},
		{"already exists", AlreadyExists("clinic", "slug", "smile-istanbul"), ErrAlreadyExists, "ALREADY_EXISTS", http.StatusConflict, `clinic with slug "smile-istanbul" already exists`},
		{"conflict", Conflict("review already approved"), ErrConflict, "CONFLICT", http.StatusConflict, "review already approved"},
		{"invalid input", InvalidInput("status must be approved or rejected"), ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest, "status must be approved or rejected"},
		{"unauthorized", Unauthorized("sign in to submit a review"), ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized, "sign in to submit a review"},
		{"forbidden", Forbidden("administrator only"), ErrForbidden, "FORBIDDEN", http.StatusForbidden, "administrator only"},
		{"rate limited", RateLimited("too many submissions"), ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests, "too many submissions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.message, tt.err.Message)
			assert.ErrorIs(t, tt.err, tt.sentinel)
		})
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
		known   bool
	}{
		{"app error keeps its message", Conflict("review already rejected"), http.StatusConflict, "CONFLICT", "review already rejected", true},
		{"wrapped app error", fmt.Errorf("moderate: %w", NotFound("review", "r1")), http.StatusNotFound, "NOT_FOUND", "review with id r1 not found", true},
		{"wrapped sentinel", fmt.Errorf("get clinic: %w", ErrNotFound), http.StatusNotFound, "NOT_FOUND", "resource not found", true},
		{"duplicate", fmt.Errorf("create clinic: %w", ErrAlreadyExists), http.StatusConflict, "ALREADY_EXISTS", "resource already exists", true},
		{"invalid input echoes the error", fmt.Errorf("fresh: %w", ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT", "fresh: invalid input", true},
		{"bare forbidden", ErrForbidden, http.StatusForbidden, "FORBIDDEN", "not authorized", true},
		{"unknown", errors.New("pool closed"), http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, message, known := Describe(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.message, message)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(fmt.Errorf("outer: %w", ErrUnauthorized)))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(ErrRateLimited))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(fmt.Errorf("unknown")))
}
