// Package engineerr defines the engine-visible error taxonomy shared by every
// component (registry, resolver, analyzer, order builder, adapters,
// executor) so failures can be classified, logged, and reported to
// transports uniformly. It is split out from runtime/engine so that
// lower-level components can construct these errors without importing the
// executor package.
package engineerr

import "fmt"

// Kind is the closed taxonomy of engine-visible error kinds.
type Kind string

const (
	KindBadSpec                  Kind = "bad_spec"
	KindUnresolvedPlaceholder     Kind = "unresolved_placeholder"
	KindCycleDetected             Kind = "cycle_detected"
	KindToolError                 Kind = "tool_error"
	KindDependencyIssue           Kind = "dependency_issue"
	KindShapeMismatchUnrecoverable Kind = "shape_mismatch_unrecoverable"
	KindTimeout                   Kind = "timeout"
	KindCancelled                 Kind = "cancelled"
	KindInternal                  Kind = "internal"
)

// Error is a structured engine failure. It supports errors.Is/As via Cause,
// preserving a causal chain across nested failures (tool wrapping executor
// wrapping adapter).
type Error struct {
	Kind        Kind
	Message     string
	FailingNode string
	Remediation string
	Cause       *Error
}

// New constructs an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithNode returns a copy of e with FailingNode set.
func (e *Error) WithNode(nodeID string) *Error {
	c := *e
	c.FailingNode = nodeID
	return &c
}

// WithRemediation returns a copy of e with Remediation set.
func (e *Error) WithRemediation(remediation string) *Error {
	c := *e
	c.Remediation = remediation
	return &c
}

// Wrap constructs an Error of the given kind that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into an *Error chain, classifying it
// KindInternal if it is not already one.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Kind: KindInternal, Message: err.Error()}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.FailingNode != "" {
		return fmt.Sprintf("%s: %s (node=%s)", e.Kind, e.Message, e.FailingNode)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause to support errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Terminal reports whether an error of this kind always ends the request
// once raised during execution (as opposed to being a planning-time
// warning that may or may not become terminal).
func (k Kind) Terminal() bool {
	switch k {
	case KindToolError, KindTimeout, KindCancelled, KindInternal, KindBadSpec:
		return true
	default:
		return false
	}
}
