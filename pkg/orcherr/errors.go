// Package orcherr defines the orchestrator-wide error taxonomy.
//
// Errors are modeled as a single tagged type (Error) carrying a Kind,
// rather than one Go type per kind, so callers can branch on Kind with
// a switch while still getting errors.Is/errors.As support through the
// wrapped cause.
package orcherr

import (
	"errors"
	"fmt"
)

// Kind is a stable error classification code. See spec §7.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindAuthentication   Kind = "authentication"
	KindRateLimit        Kind = "rate_limit"
	KindModelUnavailable Kind = "model_unavailable"
	KindTimeout          Kind = "timeout"
	KindCancelled        Kind = "cancelled"
	KindProcess          Kind = "process"
	KindFilesystem       Kind = "filesystem"
	KindSession          Kind = "session"
	KindBudget           Kind = "budget"
	KindConfig           Kind = "config"
	KindLimitExceeded    Kind = "limit_exceeded"
)

// Error is the structured error value surfaced to callers for terminal
// failures. Op is the operation name, Field the offending field (if
// any), and Cause the wrapped original error.
type Error struct {
	Kind    Kind
	Op      string // operation name, e.g. "router.select", "cache.get"
	Field   string // offending field, if applicable
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s=%q): %s", e.Op, e.Kind, e.Field, e.Message, e.causeSuffix())
	}
	return fmt.Sprintf("%s: %s: %s%s", e.Op, e.Kind, e.Message, e.causeSuffix())
}

func (e *Error) causeSuffix() string {
	if e.Cause == nil {
		return ""
	}
	return ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, orcherr.Of(kind)) style sentinel matching
// by comparing Kind when the target is also an *Error with an empty Op
// and Message, as Of builds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == ""
}

// New constructs an *Error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an *Error that preserves an original error's
// diagnostic text via Cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// WithField attaches the offending field name and returns the receiver
// for chaining.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// Of returns a bare sentinel used only for errors.Is comparisons against Kind.
func Of(kind Kind) *Error { return &Error{Kind: kind} }

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Recoverable reports whether the error kind is handled locally by a
// fallback/retry state machine before ever being surfaced to a caller
// (spec §7 propagation policy): Authentication and RateLimit/ModelUnavailable.
func Recoverable(kind Kind) bool {
	switch kind {
	case KindAuthentication, KindRateLimit, KindModelUnavailable:
		return true
	default:
		return false
	}
}
