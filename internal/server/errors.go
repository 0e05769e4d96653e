package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes carried in error responses
const (
	CodeMissingInput         = "MISSING_INPUT"
	CodeNotFound             = "NOT_FOUND"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeStorageInconsistency = "STORAGE_INCONSISTENCY"
	CodeInternalError        = "INTERNAL_ERROR"
)

// errorBody is the JSON shape of every error response:
// {"error": {"code": "...", "message": "..."}}
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
