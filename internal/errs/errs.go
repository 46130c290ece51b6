// Package errs defines the error kinds surfaced by the engine. Every error that
// crosses a package boundary towards a caller is one of these kinds.
package errs

import (
	"errors"
	"net/http"

	goerrors "gopkg.in/src-d/go-errors.v1"
)

var (
	// InvalidArgument is returned for malformed periods, timezones, filters,
	// measures or pagination. No partial work is done.
	InvalidArgument = goerrors.NewKind("invalid argument: %s")

	// Conflict signals a duplicate unique-only submission.
	Conflict = goerrors.NewKind("conflict: %s")

	// Unprocessable is returned for structurally valid but meaningless input.
	Unprocessable = goerrors.NewKind("unprocessable: %s")

	// Upstream wraps store and presence failures.
	Upstream = goerrors.NewKind("upstream failure: %s")
)

// Invalid is shorthand for InvalidArgument.New.
func Invalid(msg string) error {
	return InvalidArgument.New(msg)
}

// Is reports whether err, or any error it wraps, is of kind k.
func Is(k *goerrors.Kind, err error) bool {
	for err != nil {
		if k.Is(err) {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

func IsInvalid(err error) bool       { return Is(InvalidArgument, err) }
func IsConflict(err error) bool      { return Is(Conflict, err) }
func IsUnprocessable(err error) bool { return Is(Unprocessable, err) }
func IsUpstream(err error) bool      { return Is(Upstream, err) }

// Code maps err to an http status code.
func Code(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsInvalid(err):
		return http.StatusBadRequest
	case IsConflict(err):
		return http.StatusConflict
	case IsUnprocessable(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the message safe to show to a caller. Upstream and unknown
// errors are reduced to a generic message so that query text and bound values
// never leak.
func Public(err error) string {
	switch {
	case IsInvalid(err), IsConflict(err), IsUnprocessable(err):
		return err.Error()
	default:
		return http.StatusText(http.StatusInternalServerError)
	}
}
