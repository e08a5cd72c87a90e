// Package rerr defines the error kinds shared across the workbench.
//
// Kinds, not types: callers branch on KindOf(err) rather than concrete
// structs. Cache misses and collection bound overruns are control flow
// and deliberately have no kind here.
package rerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for propagation decisions.
type Kind string

const (
	KindParse              Kind = "parse_error"
	KindNavigation         Kind = "navigation_failure"
	KindCDP                Kind = "cdp_failure"
	KindDetailTokenExpired Kind = "detail_token_expired"
	KindDetailTokenInvalid Kind = "detail_token_invalid"
	KindModelRetryable     Kind = "model_retryable"
	KindModelFatal         Kind = "model_fatal"
	KindTimeout            Kind = "timeout_expired"
	KindInvariant          Kind = "invariant_violation"
)

// Error carries a kind, a short reason and an optional actionable hint.
type Error struct {
	ErrKind Kind
	Reason  string
	Hint    string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.ErrKind, e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.ErrKind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New creates an error of the given kind.
func New(kind Kind, reason string) *Error {
	return &Error{ErrKind: kind, Reason: reason}
}

// Wrap annotates err with a kind and reason.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{ErrKind: kind, Reason: reason, Wrapped: err}
}

// WithHint attaches an actionable hint shown to the calling agent.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// KindOf extracts the kind of err, or empty when err is not ours.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.ErrKind
	}
	return ""
}

// HintOf extracts the hint of err, if any.
func HintOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}

// IsRetryable reports whether err is a transient model failure worth
// backing off and retrying.
func IsRetryable(err error) bool {
	return KindOf(err) == KindModelRetryable
}

// ParseError carries the byte offset and line of the first unparseable
// region.
type ParseError struct {
	Offset int
	Line   int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d (offset %d): %s", e.Line, e.Offset, e.Msg)
}
