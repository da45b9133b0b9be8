// Package errs defines the error taxonomy shared by all layers. Every
// error carries a kind for programmatic handling and a stable code for
// logs and clients.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error independent of where it was raised.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindNotFound
	KindAlreadyExists
	KindPreconditionFailed
	KindPermissionDenied
	KindConcurrencyConflict
	KindStorage
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindPermissionDenied:
		return "permission_denied"
	case KindConcurrencyConflict:
		return "concurrency_conflict"
	case KindStorage:
		return "storage"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the concrete error type. Code is a stable identifier of the
// raise site and never changes between releases.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Parent  error
}

func (e *Error) Error() string {
	if e.Parent != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Code, e.Kind, e.Message, e.Parent)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Parent
}

// Is matches on kind and code so callers can compare against a template
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind == e.Kind
}

func throw(kind Kind, parent error, code, message string) error {
	return &Error{Kind: kind, Code: code, Message: message, Parent: parent}
}

func ThrowInvalidArgument(parent error, code, message string) error {
	return throw(KindInvalidArgument, parent, code, message)
}

func ThrowNotFound(parent error, code, message string) error {
	return throw(KindNotFound, parent, code, message)
}

func ThrowAlreadyExists(parent error, code, message string) error {
	return throw(KindAlreadyExists, parent, code, message)
}

func ThrowPreconditionFailed(parent error, code, message string) error {
	return throw(KindPreconditionFailed, parent, code, message)
}

func ThrowPermissionDenied(parent error, code, message string) error {
	return throw(KindPermissionDenied, parent, code, message)
}

func ThrowConcurrencyConflict(parent error, code, message string) error {
	return throw(KindConcurrencyConflict, parent, code, message)
}

func ThrowStorage(parent error, code, message string) error {
	return throw(KindStorage, parent, code, message)
}

func ThrowInternal(parent error, code, message string) error {
	return throw(KindInternal, parent, code, message)
}

func isKind(err error, kind Kind) bool {
	e := &Error{}
	return errors.As(err, &e) && e.Kind == kind
}

func IsInvalidArgument(err error) bool     { return isKind(err, KindInvalidArgument) }
func IsNotFound(err error) bool            { return isKind(err, KindNotFound) }
func IsAlreadyExists(err error) bool       { return isKind(err, KindAlreadyExists) }
func IsPreconditionFailed(err error) bool  { return isKind(err, KindPreconditionFailed) }
func IsPermissionDenied(err error) bool    { return isKind(err, KindPermissionDenied) }
func IsConcurrencyConflict(err error) bool { return isKind(err, KindConcurrencyConflict) }
func IsStorage(err error) bool             { return isKind(err, KindStorage) }
func IsInternal(err error) bool            { return isKind(err, KindInternal) }

// Code extracts the stable code, or empty when err is not an *Error.
func Code(err error) string {
	e := &Error{}
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
