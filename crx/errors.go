package crx

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	// KindInput: the source path is missing or not a directory.
	KindInput Kind = "Input"
	// KindKey: key generation or key validation failed.
	KindKey Kind = "Key"
	// KindArchive: reading the source tree or compressing it failed.
	KindArchive Kind = "Archive"
	// KindEncoding: a header structure could not be encoded.
	KindEncoding Kind = "Encoding"
	// KindSign: the signing primitive failed.
	KindSign Kind = "Sign"
	// KindIO: the container could not be written.
	KindIO Kind = "IO"
	// KindFormat: bytes do not have the container layout.
	KindFormat Kind = "Format"
	// KindVerify: the container is well-formed but a signature or id check failed.
	KindVerify Kind = "Verify"
)

// Error is the package's structured error type.
//
// RuleID is a stable identifier (e.g. CRX-INPUT-001, CRX-FMT-002) naming the
// failed check. Message is for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
