// Package errors is the engine-wide error taxonomy (spec.md §7). It wraps
// cockroachdb/errors so that internal logging messages, user-facing hints
// and structured reportable details travel together on a single error
// value, and so that a handler several layers up can still recover the
// abstract error kind with a plain errors.Is check.
package errors

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinel error kinds. These are the "abstract kinds, not type names" of
// spec.md §7; every error constructed with the builder below is Mark()-ed
// against exactly one of these.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrVersionConflict    = errors.New("version conflict")
	ErrValidation         = errors.New("validation error")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrPaymentProvider    = errors.New("payment provider error")
	ErrPayment            = errors.New("payment error")
	ErrBilling            = errors.New("billing error")
	ErrUsageBackend       = errors.New("usage backend error")
	ErrTaxEngine          = errors.New("tax engine error")
	ErrCrypt              = errors.New("crypt error")
	ErrSerde              = errors.New("serialization error")
	ErrDatabase           = errors.New("internal store error")
	ErrHTTPClient         = errors.New("http client error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrInternal           = errors.New("internal error")
	ErrSystem             = errors.New("system error")
)

// Is reports whether err is marked with (or equal to) target, which must
// be one of the sentinels above.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// HTTPStatusFromErr maps a marked error to the transport status the
// (out-of-scope) API layer would return, per spec.md §7.
func HTTPStatusFromErr(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrBilling):
		return http.StatusPreconditionFailed
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrUsageBackend):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
