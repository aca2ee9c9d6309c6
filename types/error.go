package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies failures across the orchestration pipeline.
type ErrorCode string

const (
	// ErrInvalidRequest marks malformed or incomplete caller input.
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrAgentNotFound marks a requested agent name with no registration.
	// During a run it is absorbed (the turn is skipped); it only surfaces
	// when a single-agent request names an unknown agent.
	ErrAgentNotFound ErrorCode = "AGENT_NOT_FOUND"

	// ErrAgentInvocation marks an agent call failure. Inside a run it is
	// absorbed into a synthetic terminated message and never surfaces.
	ErrAgentInvocation ErrorCode = "AGENT_INVOCATION_FAILED"

	// ErrTimeout marks the whole-session deadline expiring.
	ErrTimeout ErrorCode = "TIMEOUT"

	// ErrSessionNotFound marks a lookup of an unknown session id.
	ErrSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// ErrStoreFailure marks a session-store backend failure.
	ErrStoreFailure ErrorCode = "STORE_FAILURE"

	// ErrUnavailable marks a request the service cannot serve right now,
	// e.g. no agents registered.
	ErrUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// ErrInternal marks unexpected internal failures.
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is the structured error carried across package boundaries. It keeps
// the classification, the HTTP mapping and the retry hint together so
// handlers never have to re-derive them.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"-"`
	Retryable  bool      `json:"retryable,omitempty"`

	// Agent is the agent involved, when the failure is attributable to one.
	Agent string `json:"agent,omitempty"`

	Cause error `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an Error with the default HTTP status for its code.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: defaultHTTPStatus(code),
	}
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus overrides the HTTP status mapping.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks whether the caller may retry.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithAgent attributes the error to an agent.
func (e *Error) WithAgent(agent string) *Error {
	e.Agent = agent
	return e
}

func defaultHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAgentNotFound, ErrSessionNotFound:
		return http.StatusNotFound
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetErrorCode extracts the code from any error, defaulting to ErrInternal.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal
}

// IsRetryable reports whether the error carries a retry hint.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
