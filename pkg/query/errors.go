package query

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category for broker failures.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindTargetNotFound Kind = "target_not_found"
	KindConnection     Kind = "connection"
	KindIntrospection  Kind = "introspection"
	KindSynthesis      Kind = "synthesis"
	KindGuardRejection Kind = "guard_rejection"
	KindExecution      Kind = "execution"
)

// Error wraps an underlying error with its kind and a message that is safe to show to callers.
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

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }
func WrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the caller-safe message of the first *Error in err's chain.
func MessageOf(err error) string {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Message
	}
	return ""
}
