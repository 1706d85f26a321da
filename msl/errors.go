package msl

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes MSL translation errors.
type ErrorKind uint8

const (
	// ErrUnsupportedConstruct indicates a module construct Metal cannot express.
	ErrUnsupportedConstruct ErrorKind = iota

	// ErrCapabilityMismatch indicates a feature the configured MSL version
	// or platform does not offer.
	ErrCapabilityMismatch

	// ErrInvalidModule indicates the IR module is malformed.
	ErrInvalidModule

	// ErrEntryPointNotFound indicates the requested entry point doesn't exist.
	ErrEntryPointNotFound

	// ErrInternal indicates a broken translator invariant.
	ErrInternal
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrUnsupportedConstruct:
		return "UnsupportedConstruct"
	case ErrCapabilityMismatch:
		return "CapabilityMismatch"
	case ErrInvalidModule:
		return "InvalidModule"
	case ErrEntryPointNotFound:
		return "EntryPointNotFound"
	case ErrInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error represents an MSL translation error.
type Error struct {
	// Kind categorizes the error.
	Kind ErrorKind

	// Message provides details about the error.
	Message string

	// MinVersion is the first MSL version that supports the rejected
	// feature. It is only set for capability mismatches.
	MinVersion *Version

	// Platform is the platform MinVersion applies to.
	Platform Platform
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.MinVersion != nil {
		return fmt.Sprintf("msl: %s: %s requires MSL %s on %s", e.Kind, e.Message, e.MinVersion, e.Platform)
	}
	return fmt.Sprintf("msl: %s: %s", e.Kind, e.Message)
}

// NewError creates a new MSL error.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// newCapabilityError reports that feature needs at least min on platform.
func newCapabilityError(feature string, platform Platform, min Version) *Error {
	return &Error{
		Kind:       ErrCapabilityMismatch,
		Message:    feature,
		MinVersion: &min,
		Platform:   platform,
	}
}

func unsupported(format string, args ...any) *Error {
	return NewError(ErrUnsupportedConstruct, format, args...)
}

func invalid(format string, args ...any) *Error {
	return NewError(ErrInvalidModule, format, args...)
}

func internal(format string, args ...any) *Error {
	return NewError(ErrInternal, format, args...)
}

// IsUnsupportedConstruct returns true if the error is ErrUnsupportedConstruct.
func (e *Error) IsUnsupportedConstruct() bool {
	return e.Kind == ErrUnsupportedConstruct
}

// IsCapabilityMismatch returns true if the error is ErrCapabilityMismatch.
func (e *Error) IsCapabilityMismatch() bool {
	return e.Kind == ErrCapabilityMismatch
}

// IsInternal returns true if the error is ErrInternal.
func (e *Error) IsInternal() bool {
	return e.Kind == ErrInternal
}

// KindOf returns the kind of err if it wraps an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
