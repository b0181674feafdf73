package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an Arbor error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrSourceBusy       ErrorCode = "SOURCE_BUSY"       // 409
	ErrEmptyCollection  ErrorCode = "EMPTY_COLLECTION"  // 422
	ErrAgentUnavailable ErrorCode = "AGENT_UNAVAILABLE" // 503
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// ArborError represents a structured error with code, status, and details.
type ArborError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *ArborError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ArborError {
	return &ArborError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing source, node, or placement.
func NewNotFound(identifier string) *ArborError {
	return &ArborError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewSourceBusy creates a 409 error for a source that already has an active
// planning run. The engine supports one run at a time per source.
func NewSourceBusy(sourceID string) *ArborError {
	return &ArborError{
		Code:    ErrSourceBusy,
		Status:  409,
		Message: fmt.Sprintf("a planning run is already active for source %q", sourceID),
		Details: map[string]any{"source_id": sourceID},
	}
}

// NewEmptyCollection creates a 422 error when a source has no file cards to plan.
func NewEmptyCollection(sourceID string) *ArborError {
	return &ArborError{
		Code:    ErrEmptyCollection,
		Status:  422,
		Message: fmt.Sprintf("source %q has no file cards", sourceID),
		Details: map[string]any{"source_id": sourceID},
	}
}

// NewAgentUnavailable creates a 503 error describing an unreachable agent.
// Planning entry points never return this; external-call failures degrade to
// deterministic fallbacks. It exists for surfaces that probe agent health.
func NewAgentUnavailable(agent string, err error) *ArborError {
	details := map[string]any{"agent": agent}
	if err != nil {
		details["cause"] = err.Error()
	}
	return &ArborError{
		Code:    ErrAgentUnavailable,
		Status:  503,
		Message: fmt.Sprintf("agent %q unavailable", agent),
		Details: details,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message is generic; the original error is kept in Details for logging.
func NewInternal(err error) *ArborError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &ArborError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error is (or wraps) an ArborError with the given code.
func Is(err error, code ErrorCode) bool {
	var aErr *ArborError
	if stderrors.As(err, &aErr) {
		return aErr.Code == code
	}
	return false
}
