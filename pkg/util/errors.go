// Package util provides utility functions and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the routing core and its transport.
var (
	ErrNotInitialized     = errors.New("route table not initialized")
	ErrRouteExists        = errors.New("route already exists")
	ErrUnknownEvent       = errors.New("unknown event")
	ErrRemote             = errors.New("controller call failed")
	ErrInvalidRoute       = errors.New("invalid route")
	ErrPreconditionFailed = errors.New("precondition not met")
	ErrValidationFailed   = errors.New("validation failed")
	ErrPermissionDenied   = errors.New("permission denied")
)

// IsFatal reports whether err is a programming error that a restart
// cannot fix. Remote failures and stream terminations are not fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrRouteExists) ||
		errors.Is(err, ErrUnknownEvent)
}

// PreconditionError represents a failed precondition check with context
type PreconditionError struct {
	Operation    string
	Resource     string
	Precondition string
	Details      string

	// Kind is the sentinel the error unwraps to. Nil means ErrPreconditionFailed.
	Kind error
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("precondition failed for %s on %s: %s", e.Operation, e.Resource, e.Precondition)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *PreconditionError) Unwrap() error {
	if e.Kind != nil {
		return e.Kind
	}
	return ErrPreconditionFailed
}

// NewPreconditionError creates a new precondition error
func NewPreconditionError(operation, resource, precondition, details string) *PreconditionError {
	return &PreconditionError{
		Operation:    operation,
		Resource:     resource,
		Precondition: precondition,
		Details:      details,
	}
}

// NewNotInitializedError reports a route table operation attempted before setup.
func NewNotInitializedError(operation string) *PreconditionError {
	return &PreconditionError{
		Operation:    operation,
		Resource:     "route table",
		Precondition: "setup must complete first",
		Kind:         ErrNotInitialized,
	}
}

// NewRouteExistsError reports an attempt to add a route for a host pair
// that already has one.
func NewRouteExistsError(src, dst string) *PreconditionError {
	return &PreconditionError{
		Operation:    "add route",
		Resource:     src + " <-> " + dst,
		Precondition: "pair must not have a route",
		Kind:         ErrRouteExists,
	}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// InvalidRouteError describes a route that breaks the point alternation
// invariant. It wraps ErrInvalidRoute.
type InvalidRouteError struct {
	Route  string
	Reason string
}

func (e *InvalidRouteError) Error() string {
	return fmt.Sprintf("invalid route %s: %s", e.Route, e.Reason)
}

func (e *InvalidRouteError) Unwrap() error {
	return ErrInvalidRoute
}

// NewInvalidRouteError creates an invalid route error
func NewInvalidRouteError(route, reason string) *InvalidRouteError {
	return &InvalidRouteError{Route: route, Reason: reason}
}
