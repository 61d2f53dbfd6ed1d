// Package response writes the JSON envelope shared by every HTTP endpoint and
// maps phoneauth errors onto status codes.
package response

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrEthical07/phoneauth"
)

// Envelope is the body of every response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Now is the clock used for error timestamps.
var Now = time.Now

// JSON writes a successful envelope around data.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{Success: true, Data: data})
}

// OK writes data with status 200.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// WriteError writes a failed envelope.
func WriteError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	write(w, status, Envelope{
		Success: false,
		Error: &ErrorBody{
			Code:      code,
			Message:   message,
			Timestamp: Now().UTC().Format(time.RFC3339),
			Details:   details,
		},
	})
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// BadRequest writes a 400 validation error.
func BadRequest(w http.ResponseWriter, message string, details map[string]any) {
	WriteError(w, http.StatusBadRequest, phoneauth.CodeValidation, message, details)
}

// Unauthorized writes a 401 authentication error.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, phoneauth.CodeAuthentication, message, nil)
}
