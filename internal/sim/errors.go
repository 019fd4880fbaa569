package sim

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine and registry errors.
type ErrorCode string

const (
	// ErrCodeUnknownScope indicates a scope not declared in the domain.
	ErrCodeUnknownScope ErrorCode = "UNKNOWN_SCOPE"

	// ErrCodeUnknownTemplate indicates a template not present in the domain.
	ErrCodeUnknownTemplate ErrorCode = "UNKNOWN_TEMPLATE"

	// ErrCodeUnknownAttribute indicates a property key outside the
	// template's attribute set. The attribute set is fixed at
	// instantiation; there is no implicit schema growth.
	ErrCodeUnknownAttribute ErrorCode = "UNKNOWN_ATTRIBUTE"

	// ErrCodeDuplicateInstance indicates (scope, name) is already registered.
	ErrCodeDuplicateInstance ErrorCode = "DUPLICATE_INSTANCE"

	// ErrCodeInstanceNotFound indicates no instance under (scope, name).
	ErrCodeInstanceNotFound ErrorCode = "INSTANCE_NOT_FOUND"

	// ErrCodeInvalidEvent indicates a rejected schedule call (negative
	// timestamp, or a timestamp behind the engine's virtual clock).
	ErrCodeInvalidEvent ErrorCode = "INVALID_EVENT"

	// ErrCodeEmptyQueue indicates a pop or step on an empty queue.
	ErrCodeEmptyQueue ErrorCode = "EMPTY_QUEUE"

	// ErrCodeEngineStopped indicates an operation on an engine that
	// halted after a handler failure.
	ErrCodeEngineStopped ErrorCode = "ENGINE_STOPPED"
)

// Error is a structured engine error. Every failure identifies the
// failing operation and the offending identifiers so it is reproducible
// given the same initial schedule.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Scope, Name, Template, and Kind identify the offending elements
	// where applicable.
	Scope    string
	Name     string
	Template string
	Kind     string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Scope != "" && e.Name != "":
		return fmt.Sprintf("%s: %s (scope=%s, name=%s)", e.Code, e.Message, e.Scope, e.Name)
	case e.Scope != "":
		return fmt.Sprintf("%s: %s (scope=%s)", e.Code, e.Message, e.Scope)
	case e.Template != "":
		return fmt.Sprintf("%s: %s (template=%s)", e.Code, e.Message, e.Template)
	case e.Kind != "":
		return fmt.Sprintf("%s: %s (kind=%s)", e.Code, e.Message, e.Kind)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// CodeOf extracts the ErrorCode from an error.
// Returns "" if the error is not a sim.Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsEmptyQueue reports whether the error is an empty-queue error.
func IsEmptyQueue(err error) bool {
	return CodeOf(err) == ErrCodeEmptyQueue
}

// IsInvalidEvent reports whether the error is an invalid-event error.
func IsInvalidEvent(err error) bool {
	return CodeOf(err) == ErrCodeInvalidEvent
}

// IsNotFound reports whether the error is an instance-not-found error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeInstanceNotFound
}

func newUnknownScopeError(scope string) *Error {
	return &Error{
		Code:    ErrCodeUnknownScope,
		Message: "scope is not declared in the domain",
		Scope:   scope,
	}
}

func newUnknownTemplateError(template string) *Error {
	return &Error{
		Code:     ErrCodeUnknownTemplate,
		Message:  "template is not defined in the domain",
		Template: template,
	}
}

func newUnknownAttributeError(scope, name, template, key string) *Error {
	return &Error{
		Code:     ErrCodeUnknownAttribute,
		Message:  fmt.Sprintf("attribute %q is not part of the template's attribute set", key),
		Scope:    scope,
		Name:     name,
		Template: template,
	}
}

func newDuplicateInstanceError(scope, name string) *Error {
	return &Error{
		Code:    ErrCodeDuplicateInstance,
		Message: "instance is already registered",
		Scope:   scope,
		Name:    name,
	}
}

func newInstanceNotFoundError(scope, name string) *Error {
	return &Error{
		Code:    ErrCodeInstanceNotFound,
		Message: "no instance registered under this identity",
		Scope:   scope,
		Name:    name,
	}
}

func newEmptyQueueError() *Error {
	return &Error{
		Code:    ErrCodeEmptyQueue,
		Message: "event queue is empty",
	}
}

// HandlerError wraps a failure raised by user handler code during
// dispatch. The offending event is attached so the failure is
// reproducible from the same initial schedule.
type HandlerError struct {
	Event Event
	Err   error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler failed for event kind=%s t=%s seq=%d: %v",
		e.Event.Kind, e.Event.Time, e.Event.Seq, e.Err)
}

// Unwrap returns the underlying handler failure.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// IsHandlerError reports whether the error originated in handler code.
// Uses errors.As to handle wrapped errors.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}
