// Package errkind implements the closed error-kind taxonomy from spec.md
// §7: every failure the orchestration core surfaces to a caller carries one
// of these kinds, which in turn fixes its HTTP status and retry posture.
// Grounded on the teacher's internal/agent ToolError/LoopError shape
// (typed category + cause + structured Error()), generalized from
// tool-execution errors to the whole core.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the fixed error categories in spec.md §7. It is a
// classification, not a class hierarchy — callers type-switch on Kind via
// errors.As against *Error, never on concrete error types.
type Kind string

const (
	Validation           Kind = "validation"
	NotFound             Kind = "not_found"
	Conflict             Kind = "conflict"
	ConfigurationError   Kind = "configuration_error"
	UpstreamUnavailable  Kind = "upstream_unavailable"
	UpstreamTimeout      Kind = "upstream_timeout"
	UpstreamBadRequest   Kind = "upstream_bad_request"
	Cancelled            Kind = "cancelled"
	Internal             Kind = "internal"
)

// HTTPStatus maps a Kind to the status code spec.md §6/§7 names. Internal
// errors additionally carry an incident id in the response body.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation:
		return 400
	case NotFound:
		return 404
	case Conflict:
		return 409
	case ConfigurationError:
		return 422
	case UpstreamUnavailable:
		return 502
	case UpstreamTimeout:
		return 504
	case UpstreamBadRequest:
		return 400
	case Cancelled:
		return 499
	case Internal:
		return 500
	default:
		return 500
	}
}

// Error is the structured error every orchestration-core operation returns
// on failure: a Kind for dispatch, a human message safe to show a caller,
// an optional IncidentID (Internal kind only), and the wrapped Cause.
type Error struct {
	Kind       Kind
	Message    string
	IncidentID string
	Cause      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Cause.Error())
	}
	return fmt.Sprintf("[%s]", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind, unwrapping through any
// wrapper chain via errors.As.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to Internal for anything
// that isn't an *Error — the taxonomy is closed, so an unclassified error
// is always treated as the catch-all per spec.md §7.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return Internal
}

// Sentinel errors for conditions named by spec.md's Chat Engine/Scheduler/
// Roundtable algorithms that call sites need to test with errors.Is.
var (
	ErrSessionNotActive     = New(Validation, "session is not active")
	ErrAgentDisabled        = New(ConfigurationError, "agent is disabled")
	ErrSessionBusy          = New(Conflict, "session has a turn in flight")
	ErrToolLoopExhausted    = New(Internal, "tool call loop exceeded max_tool_rounds")
	ErrToolDeadlineExceeded = New(UpstreamTimeout, "tool call exceeded its deadline")
	ErrSessionTerminatedMid = New(Conflict, "session ended while a turn was in flight")
	ErrUpstreamUnavailable  = New(UpstreamUnavailable, "upstream model is unavailable")
	ErrKernelImmutable      = New(Internal, "kernel tree is immutable")
)
