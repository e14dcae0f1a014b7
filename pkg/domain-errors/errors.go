// Package dErrors provides code-carrying domain errors. Services return these
// so transport layers can translate them into protocol responses without
// inspecting error strings.
package dErrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for callers and transports.
type Code string

const (
	// CodeValidation marks a malformed or semantically invalid payload.
	CodeValidation Code = "validation"
	// CodeInvalidInput marks a value rejected at a trust boundary.
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest marks a request the engine cannot interpret (for example
	// an unknown command action).
	CodeBadRequest Code = "bad_request"
	// CodeNotFound marks a missing venue, area, device, or user.
	CodeNotFound Code = "not_found"
	// CodeUnauthorized marks a missing or unverifiable principal credential.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks a banned principal or an unauthorized scope.
	CodeForbidden Code = "forbidden"
	// CodeConflict marks an atomic mutation the store rejected; no partial
	// effect was applied.
	CodeConflict Code = "conflict"
	// CodeUnavailable marks an unreachable authoritative store during
	// hydration with no usable cached copy.
	CodeUnavailable Code = "unavailable"
	// CodeInvariantViolation marks a broken domain invariant.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal marks an unexpected failure.
	CodeInternal Code = "internal"
)

// DomainError couples a classification code with a message and an optional
// wrapped cause.
type DomainError struct {
	Code    Code
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.cause }

// New constructs a DomainError with the given code and message.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Wrap annotates err with a domain code and message. Returns nil if err is nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{Code: code, Message: message, cause: err}
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		de = nil
	}
	return false
}

// CodeOf returns the outermost domain code of err, or CodeInternal when err
// carries none.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is defers to errors.Is; exported so call sites depending on this package do
// not also need to import errors.
func Is(err, target error) bool { return errors.Is(err, target) }
