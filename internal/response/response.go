// Package response writes the JSON envelope shared by all services.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope is the success body. Data is always present, null when there is nothing to return.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func Success(w http.ResponseWriter, status int, data any, message string) {
	write(w, status, Envelope{Success: true, Message: message, Data: data})
}

func Error(w http.ResponseWriter, status int, message, code string, errors any) {
	write(w, status, ErrorEnvelope{Message: message, Code: code, Errors: errors})
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write response", slog.Any("error", err))
	}
}
