package httpapi

import (
	"encoding/json"
	"net/http"

	"llamaworker/internal/worker"
	"llamaworker/pkg/types"
)

// statusForCode maps a worker error code to an HTTP status.
func statusForCode(code string) int {
	switch code {
	case worker.CodeNotReady, worker.CodeAlreadyLoaded, worker.CodeLoadFailed:
		return http.StatusConflict
	case worker.CodeInvalidRequest, worker.CodeUnknownEvent:
		return http.StatusBadRequest
	case worker.CodeFetchFailed:
		return http.StatusBadGateway
	case worker.CodeEngineUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeEventError writes a terminal ERROR event as a JSON error payload.
func writeEventError(w http.ResponseWriter, ev types.Event) {
	status := statusForCode(ev.Code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: ev.Error, Code: status, Reason: ev.Code})
}
