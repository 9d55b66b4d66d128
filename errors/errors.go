// Package errors defines the error taxonomy shared across the orchestration
// core. Every failure that crosses a component boundary carries a Kind so that
// callers can decide between feeding the error back to the model, retrying, or
// terminating the request.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an orchestration failure.
type Kind string

const (
	// KindInvalidArguments indicates tool arguments failed schema validation.
	KindInvalidArguments Kind = "invalid_arguments"

	// KindUnknownTool indicates the model requested a tool that is not registered.
	KindUnknownTool Kind = "unknown_tool"

	// KindToolExecutionError indicates the tool server executed the call and
	// reported a failure (for example a SQL error).
	KindToolExecutionError Kind = "tool_execution_error"

	// KindToolUnavailable indicates the tool server could not be reached.
	KindToolUnavailable Kind = "tool_unavailable"

	// KindModelUnavailable indicates the model backend could not be reached or
	// reported rate limiting.
	KindModelUnavailable Kind = "model_unavailable"

	// KindMalformedModelResponse indicates the model backend returned a response
	// the gateway could not interpret.
	KindMalformedModelResponse Kind = "malformed_model_response"

	// KindIterationLimitExceeded indicates the orchestration loop reached its
	// iteration bound without producing a final answer.
	KindIterationLimitExceeded Kind = "iteration_limit_exceeded"

	// KindRequestCancelled indicates the caller cancelled the request.
	KindRequestCancelled Kind = "request_cancelled"

	// KindInternal covers failures that do not fit the taxonomy above.
	KindInternal Kind = "internal"
)

// Transient reports whether failures of this kind are worth a bounded local
// retry. Everything else propagates immediately.
func (k Kind) Transient() bool {
	return k == KindToolUnavailable || k == KindModelUnavailable
}

// Recoverable reports whether a failure of this kind should be folded back
// into the conversation as a tool-error message so the model can self-correct.
func (k Kind) Recoverable() bool {
	switch k {
	case KindInvalidArguments, KindUnknownTool, KindToolExecutionError:
		return true
	}
	return false
}

// Error is a kinded error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New creates a kinded error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a kinded error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message. Returns nil if err is nil.
func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the Kind from an error chain. Errors without a Kind are
// classified as KindInternal; a nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is supports errors.Is matching on the Kind: two *Error values match when
// their kinds are equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}
