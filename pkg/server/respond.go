package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/paddockai/paddock/pkg/a2a"
	"github.com/paddockai/paddock/pkg/protocol"
)

// successEnvelope wraps every non-streaming success payload.
type successEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	TraceID string `json:"traceId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, successEnvelope{
		Success: true,
		Data:    data,
		TraceID: TraceID(r.Context()),
	})
}

// writeError maps the error to its envelope and status. An unknown
// task id is a deterministic 404 even though its code is A2A_TASK_ERROR.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := protocol.CodeOf(err).HTTPStatus()
	if errors.Is(err, a2a.ErrTaskNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, protocol.NewErrorEnvelope(err, TraceID(r.Context())))
}

func writeValidationError(w http.ResponseWriter, r *http.Request, message string, details map[string]any) {
	err := protocol.NewError(protocol.ErrValidation, message).WithDetails(details)
	writeError(w, r, err)
}
