// Package apperr defines the error taxonomy shared by the messaging and
// scheduling domains and its mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies a per-operation failure. None of them are fatal to the
// process; callers recover by correcting input or retrying.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindLinkage      Kind = "linkage"
	KindProvisioning Kind = "provisioning"
	KindConflict     Kind = "conflict"
	KindForbidden    Kind = "forbidden"
)

// Sentinels for errors.Is matching against any *Error of the same kind.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrLinkage      = &Error{Kind: KindLinkage}
	ErrProvisioning = &Error{Kind: KindProvisioning}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrForbidden    = &Error{Kind: KindForbidden}
)

// Error is a classified domain error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return string(e.Kind) + ": " + e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so the package
// sentinels match every error constructed by the helpers below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newf(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newf(KindNotFound, format, args...)
}

func Linkage(format string, args ...interface{}) error {
	return newf(KindLinkage, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newf(KindConflict, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
	return newf(KindForbidden, format, args...)
}

// Provisioning wraps a failed or timed-out meeting provisioning call.
func Provisioning(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindProvisioning, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

var statusByKind = map[Kind]int{
	KindValidation:   http.StatusBadRequest,
	KindNotFound:     http.StatusNotFound,
	KindLinkage:      http.StatusConflict,
	KindConflict:     http.StatusConflict,
	KindProvisioning: http.StatusBadGateway,
	KindForbidden:    http.StatusForbidden,
}

// HTTPError converts err into an *echo.HTTPError. Unclassified errors become
// a 500 without leaking their message.
func HTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	kind := KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, map[string]string{
		"kind":  string(kind),
		"error": err.Error(),
	})
}
