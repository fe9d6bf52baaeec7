// Package apperrors defines the kernel's error taxonomy. Each kind is a
// distinct wrapped error type so callers can branch with errors.As rather
// than string matching.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind names the taxonomy defined in the error handling design.
type Kind string

const (
	KindValidation Kind = "validation"
	KindTool       Kind = "tool"
	KindTimeout    Kind = "timeout"
	KindCancelled  Kind = "cancelled"
	KindIO         Kind = "io"
	KindPlan       Kind = "plan"
	KindSafety     Kind = "safety"
	KindModel      Kind = "model"
)

// Error is the common shape for every kernel error kind: which component
// raised it, what it was doing, a human message, and the wrapped cause.
type Error struct {
	Kind      Kind
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Component, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Action, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(kind Kind, component, action, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Action: action, Message: message, Err: err}
}

func Validation(component, action, message string, err error) *Error {
	return newErr(KindValidation, component, action, message, err)
}

func Tool(component, action, message string, err error) *Error {
	return newErr(KindTool, component, action, message, err)
}

func Timeout(component, action, message string, err error) *Error {
	return newErr(KindTimeout, component, action, message, err)
}

func Cancelled(component, action, message string, err error) *Error {
	return newErr(KindCancelled, component, action, message, err)
}

func IO(component, action, message string, err error) *Error {
	return newErr(KindIO, component, action, message, err)
}

func Plan(component, action, message string, err error) *Error {
	return newErr(KindPlan, component, action, message, err)
}

func Safety(component, action, message string, err error) *Error {
	return newErr(KindSafety, component, action, message, err)
}

func Model(component, action, message string, err error) *Error {
	return newErr(KindModel, component, action, message, err)
}

// IsKind reports whether err (or something it wraps) is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == k
}
