// Package errors defines the pipeline's sentinel errors and the AppError
// wrapper that carries an HTTP status for gateway responses. Validation and
// lookup failures are surfaced as structured outcomes by the components that
// detect them; these sentinels cover the cases that do cross a boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrClaimNotFound     = errors.New("claim not found")
	ErrDuplicateClaim    = errors.New("claim already submitted")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrLookupUnavailable = errors.New("reference data unavailable")
	ErrStoreUnavailable  = errors.New("claim log unavailable")
	ErrTimeout           = errors.New("operation timed out")
	ErrInternal          = errors.New("internal error")
)

// AppError pairs a sentinel with a message and the HTTP status the gateway
// should respond with.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the status code the gateway returns.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrClaimNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateClaim):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrLookupUnavailable), errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
