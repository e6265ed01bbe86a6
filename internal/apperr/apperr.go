// Package apperr defines the error kinds shared by the catalog, scanner,
// face clustering and share-token packages.
//
// Callers wrap a kind with context using fmt.Errorf("...: %w", apperr.ErrX)
// and classify with errors.Is. The HTTP boundary maps kinds to status codes
// through HTTPStatus.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound reports an unknown id, token, user or path.
	ErrNotFound = errors.New("not found")
	// ErrGone reports a record that existed but was tombstoned by a scan.
	// It is a NotFound kind.
	ErrGone = &kindError{msg: "gone", parent: ErrNotFound}
	// ErrUnauthorized reports missing or bad credentials, e.g. a wrong share password.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden reports an operation on an entity owned by another user.
	ErrForbidden = errors.New("forbidden")
	// ErrExpired reports a share token past its expiry.
	ErrExpired = errors.New("expired")
	// ErrUnsupported reports an unreadable or unrecognized media file.
	ErrUnsupported = errors.New("unsupported media")
	// ErrInvalidArgument reports bad input or configuration values.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict reports a concurrent or inconsistent operation on the same entity.
	ErrConflict = errors.New("conflict")
)

type kindError struct {
	msg    string
	parent error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.parent }

// HTTPStatus maps an error to the status code used by the HTTP boundary.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrExpired):
		return http.StatusGone
	case errors.Is(err, ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns a short machine-readable name for the error kind.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrGone):
		return "gone"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
