// Package apperr defines the error kinds shared by the services and the
// HTTP layer.  Services wrap one of these sentinels with detail using
// fmt.Errorf("%w: ...") and handlers translate them with Status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks a caller that is not allowed to act on the entity.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks a uniqueness violation such as a second active
	// booking or a taken username.
	ErrConflict = errors.New("conflict")
	// ErrState marks an operation that is illegal in the entity's current status.
	ErrState = errors.New("invalid state")
	// ErrInvalidCredentials is returned by login for any credential mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrStorage wraps infrastructure failures.  Only these are retryable.
	ErrStorage = errors.New("storage unavailable")
)

// Storage wraps err so that both ErrStorage and err stay matchable with errors.Is.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// Retryable reports whether the caller may safely retry the operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorage)
}

// Status maps an error to the HTTP status code the API answers with.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrState):
		return http.StatusConflict
	case errors.Is(err, ErrStorage):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Classify returns err unchanged when it already carries one of the kinds
// above and wraps anything else as a storage failure.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrForbidden, ErrConflict, ErrState, ErrInvalidCredentials, ErrStorage} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return Storage(err)
}
