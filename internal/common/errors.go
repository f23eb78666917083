package common

import (
	"errors"
	"net/http"
)

// Error kinds surfaced by the pricing engine and its collaborators. Packages
// wrap them with context so callers can branch with errors.Is.
var (
	// ErrValidation marks missing or invalid item, condition or rule fields.
	ErrValidation = errors.New("validation failed")
	// ErrPrice marks invalid price input, unknown currencies and percentage
	// calculations without a base price.
	ErrPrice = errors.New("price error")
	// ErrDivideByZero is returned when a price is divided by zero.
	ErrDivideByZero = errors.New("division by zero")
	// ErrMergeStrategy is returned for an unknown merge strategy name.
	ErrMergeStrategy = errors.New("unknown merge strategy")
	// ErrAuthentication indicates a remote collaborator rejected our credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrConnection covers every other remote collaborator failure.
	ErrConnection = errors.New("connection failed")
	// ErrNotFound indicates the requested cart or item does not exist.
	ErrNotFound = errors.New("not found")
)

// Error codes used in API payloads.
const (
	CodeValidation     = "VALIDATION"
	CodePrice          = "PRICE"
	CodeDivideByZero   = "DIVIDE_BY_ZERO"
	CodeMergeStrategy  = "MERGE_STRATEGY"
	CodeAuthentication = "AUTHENTICATION"
	CodeConnection     = "CONNECTION"
	CodeNotFound       = "NOT_FOUND"
	CodeInternal       = "INTERNAL"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" && e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// CodeOf maps an error onto its API code.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrDivideByZero):
		return CodeDivideByZero
	case errors.Is(err, ErrPrice):
		return CodePrice
	case errors.Is(err, ErrMergeStrategy):
		return CodeMergeStrategy
	case errors.Is(err, ErrAuthentication):
		return CodeAuthentication
	case errors.Is(err, ErrConnection):
		return CodeConnection
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// StatusOf maps an error onto an HTTP status. AppError statuses win.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	switch CodeOf(err) {
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodePrice, CodeDivideByZero, CodeMergeStrategy:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAuthentication:
		return http.StatusBadGateway
	case CodeConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
