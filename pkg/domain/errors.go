package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
)

// ---------------------------------------------------------------------------
// Error taxonomy: shared by the engine and every transport adapter
// ---------------------------------------------------------------------------

// DomainError is a sentinel error class. Concrete errors match one of these
// through errors.Is.
type DomainError string

func (e DomainError) Error() string { return string(e) }

const (
	ErrNotFound       DomainError = "not found"
	ErrDomainNotFound DomainError = "parent aggregate not found"
	ErrBadRequest     DomainError = "bad request"
	ErrConflict       DomainError = "conflict"
	ErrUnauthorized   DomainError = "unauthorized"
)

// DomainNotFoundError reports a missing parent aggregate. It matches both
// ErrDomainNotFound and ErrNotFound.
type DomainNotFoundError struct {
	ID EntityID
}

func (e *DomainNotFoundError) Error() string {
	return fmt.Sprintf("parent aggregate %q not found", e.ID)
}

func (e *DomainNotFoundError) Is(target error) bool {
	return target == ErrDomainNotFound || target == ErrNotFound
}

// ChildNotFoundError reports that no child satisfied the criteria. For bulk
// updates Unmatched lists every input id that had no counterpart.
type ChildNotFoundError struct {
	Kind      string
	ParentID  EntityID
	Criteria  string
	Unmatched []EntityID
}

func (e *ChildNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s not found in %q", e.Kind, e.ParentID)
	if e.Criteria != "" {
		fmt.Fprintf(&b, " matching %s", e.Criteria)
	}
	if len(e.Unmatched) > 0 {
		ids := make([]string, len(e.Unmatched))
		for i, id := range e.Unmatched {
			ids[i] = string(id)
		}
		fmt.Fprintf(&b, " (unmatched ids: %s)", strings.Join(ids, ", "))
	}
	return b.String()
}

func (e *ChildNotFoundError) Is(target error) bool { return target == ErrNotFound }

// TypeMismatchError reports a parent aggregate that does not expose the
// requested child collection.
type TypeMismatchError struct {
	Kind   string
	Parent string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s does not hold a %s collection", e.Parent, e.Kind)
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrBadRequest }

// NewTypeMismatch builds a TypeMismatchError naming the dynamic type of parent.
func NewTypeMismatch(kind string, parent any) *TypeMismatchError {
	name := "<nil>"
	if parent != nil {
		name = reflect.TypeOf(parent).String()
	}
	return &TypeMismatchError{Kind: kind, Parent: name}
}

// ConflictError reports child ids that already exist (or repeat) on save.
type ConflictError struct {
	Kind string
	IDs  []EntityID
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = string(id)
	}
	return fmt.Sprintf("%s already contains id(s) %s", e.Kind, strings.Join(ids, ", "))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// BadRequestf returns an error matching ErrBadRequest.
func BadRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// StatusClientClosedRequest is reported for calls abandoned by their caller.
const StatusClientClosedRequest = 499

// StatusOf maps an error onto the HTTP-style status code every transport
// reports. nil maps to 200.
func StatusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns a short machine-readable error code for err.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, ErrDomainNotFound):
		return "domain_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}
