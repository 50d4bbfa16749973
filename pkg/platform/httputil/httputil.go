// Package httputil centralizes the JSON response envelope and domain error
// translation so every handler answers in the same shape.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "datashare/pkg/domain-errors"
)

// Envelope is the uniform success response body.
type Envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// WriteJSON writes a success envelope with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Envelope{
		Status:  "success",
		Data:    data,
		Message: message,
	})
}

// WriteError translates a domain error into the error envelope. Expected
// error kinds surface their message; internal errors surface a generic one so
// storage-layer text never reaches clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := dErrors.MessageOf(err)
	if code == dErrors.CodeInternal {
		message = "internal server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Status:  "error",
		Message: message,
	})
}
