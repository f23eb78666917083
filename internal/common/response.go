package common

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Codes for transport-level failures that never reach the engine.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
)

// ErrorBody is the payload under the "error" key of every failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v as the response body.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Data wraps v in the {"data": ...} envelope.
func Data(w http.ResponseWriter, status int, v any) {
	JSON(w, status, map[string]any{"data": v})
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteError maps err onto a status and code. Messages of unclassified
// errors are not echoed to the client.
func WriteError(w http.ResponseWriter, err error) {
	if err == nil {
		JSONError(w, http.StatusInternalServerError, CodeInternal, "unknown error", nil)
		return
	}
	status, code := StatusOf(err), CodeOf(err)
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONError(w, status, code, appErr.Error(), appErr.Details)
		return
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	JSONError(w, status, code, msg, nil)
}
