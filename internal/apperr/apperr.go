package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, machine-readable category of an error.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindInvalidInput Kind = "invalid_input"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// ErrVersionConflict is returned by stores when a task was modified
// between the read and the conditional write.
var ErrVersionConflict = errors.New("task version conflict")

// Error carries a kind, a human-readable detail and the suggested HTTP status.
type Error struct {
	Kind   Kind   `json:"kind"`
	Detail string `json:"error"`
	Code   int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Detail)
}

// Is lets errors.Is match on kind alone, e.g. errors.Is(err, apperr.NotFound("")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NotFound(detail string) *Error {
	return &Error{Kind: KindNotFound, Detail: detail, Code: http.StatusNotFound}
}

func InvalidState(detail string) *Error {
	return &Error{Kind: KindInvalidState, Detail: detail, Code: http.StatusConflict}
}

func InvalidInput(detail string) *Error {
	return &Error{Kind: KindInvalidInput, Detail: detail, Code: http.StatusBadRequest}
}

func Unauthorized(detail string) *Error {
	return &Error{Kind: KindUnauthorized, Detail: detail, Code: http.StatusUnauthorized}
}

func Forbidden(detail string) *Error {
	return &Error{Kind: KindForbidden, Detail: detail, Code: http.StatusForbidden}
}

func Conflict(detail string) *Error {
	return &Error{Kind: KindConflict, Detail: detail, Code: http.StatusConflict}
}

func Internal(detail string) *Error {
	return &Error{Kind: KindInternal, Detail: detail, Code: http.StatusInternalServerError}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}
