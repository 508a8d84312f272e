// Package apperr holds the error kinds shared by both services. Handlers map
// them onto transport responses with errors.As; domain packages declare
// sentinels as pointers of these types so errors.Is keeps working.
package apperr

import (
	"errors"
	"fmt"
)

// ArgumentError rejects caller input before any state is touched.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Field == "" {
		return "invalid argument: " + e.Reason
	}
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing order, order line or product.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// AuthorizationError is returned when the caller does not own the resource.
// It is deliberately not collapsed into NotFoundError.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string { return "not authorized: " + e.Reason }

// ConflictError reports a uniqueness clash, e.g. a duplicate product name.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string { return fmt.Sprintf("%s conflict: %s", e.Resource, e.Reason) }

// TransportError wraps a broker failure. On the publish path the local
// commit has already happened when this is returned.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

func Argument(field, reason string) error { return &ArgumentError{Field: field, Reason: reason} }

func NotFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

func Unauthorized(reason string) error { return &AuthorizationError{Reason: reason} }

func Conflict(resource, reason string) error { return &ConflictError{Resource: resource, Reason: reason} }

func Transport(op string, err error) error { return &TransportError{Op: op, Err: err} }

func IsArgument(err error) bool {
	var target *ArgumentError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}
