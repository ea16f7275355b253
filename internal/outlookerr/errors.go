package outlookerr

import (
	"errors"
	"fmt"
)

// Kind is a stable classification of an outlook error. The HTTP layer maps
// kinds to status codes; the core never exposes bare error strings.
type Kind string

const (
	// KindInvalidParameter marks user-correctable input errors (4xx-equivalent).
	KindInvalidParameter Kind = "invalid_parameter"
	// KindUpstreamData marks weather provider failures (retryable 5xx-equivalent).
	// The core does not retry these; retries belong to the provider client.
	KindUpstreamData Kind = "upstream_data_error"
	// KindInsufficientData marks a day or window with zero valid observations.
	KindInsufficientData Kind = "insufficient_data"
	// KindEmptySample marks a summarization attempt over zero elements.
	KindEmptySample Kind = "empty_sample"
	// KindDataUnavailable marks a requested range entirely outside provider coverage.
	KindDataUnavailable Kind = "data_unavailable"
)

// Error is a structured outlook error carrying a Kind and message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches against another *Error by Kind, so sentinel-style checks like
// errors.Is(err, outlookerr.New(KindEmptySample, "")) work. Prefer IsKind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, or "" when err carries no Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
