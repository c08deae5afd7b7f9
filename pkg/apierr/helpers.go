package apierr

import (
	"errors"
)

// AsError extracts a structured *Error from err, walking the wrap chain.
// Anything else becomes an internal error with err kept as the cause.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return InternalError(err)
}
