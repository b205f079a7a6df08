package protocol

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type ErrorCode string

const (
	ErrAgentNotFound  ErrorCode = "AGENT_NOT_FOUND"
	ErrAgentConfig    ErrorCode = "AGENT_CONFIG_ERROR"
	ErrMCPConnection  ErrorCode = "MCP_CONNECTION_ERROR"
	ErrAgentExecution ErrorCode = "AGENT_EXECUTION_ERROR"
	ErrValidation     ErrorCode = "VALIDATION_ERROR"
	ErrA2ATask        ErrorCode = "A2A_TASK_ERROR"
	ErrInternal       ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatus maps an error code to its response status.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrAgentNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	case ErrMCPConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the service-wide coded error carried from components to the
// HTTP boundary.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// CodeOf extracts the error code, defaulting to INTERNAL_ERROR for
// uncoded errors.
func CodeOf(err error) ErrorCode {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ErrInternal
}

// ErrorEnvelope is the wire shape of every error response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	TraceID   string         `json:"traceId,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// NewErrorEnvelope builds the envelope for err, preserving code and
// details for coded errors.
func NewErrorEnvelope(err error, traceID string) ErrorEnvelope {
	body := ErrorBody{
		Code:      ErrInternal,
		Message:   "internal error",
		TraceID:   traceID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	var coded *Error
	if errors.As(err, &coded) {
		body.Code = coded.Code
		body.Message = coded.Message
		body.Details = coded.Details
		if coded.Err != nil {
			body.Message = fmt.Sprintf("%s: %v", coded.Message, coded.Err)
		}
	} else if err != nil {
		body.Message = err.Error()
	}
	return ErrorEnvelope{Error: body}
}
