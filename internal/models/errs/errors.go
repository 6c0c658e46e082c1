package errs

import (
	"errors"
	"fmt"
)

// Common sentinel errors. Every failure in the order services maps onto one of them.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNotFound         = errors.New("not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrRateLimit        = errors.New("too many requests")
	ErrUnavailable      = errors.New("service unavailable")
	ErrInternal         = errors.New("internal server error")
)

// Specific failures built on top of the sentinels above.
var (
	ErrNoToken       = fmt.Errorf("%w: no token provided", ErrUnauthenticated)
	ErrInvalidToken  = fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	ErrUserNotFound  = fmt.Errorf("user %w", ErrNotFound)
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
)

// Type just for murshallig purpose.
// Should only be used immediately before marshalling.
type JSON struct {
	Error string `json:"error"`
}

// Let users know which required request parameter is not provided.
type RequiredJSONBodyParamError struct {
	ParamName string
}

func (e *RequiredJSONBodyParamError) Error() string {
	return fmt.Sprintf("%s: %s required", ErrInvalidRequest, e.ParamName)
}

func (e *RequiredJSONBodyParamError) Unwrap() error {
	return ErrInvalidRequest
}

// Public returns the message that may be shown to a client for err.
// Anything outside the taxonomy collapses into ErrInternal so that
// internal details never leave the service.
func Public(err error) string {
	switch {
	case errors.Is(err, ErrNoToken):
		return ErrNoToken.Error()
	case errors.Is(err, ErrUnauthenticated):
		return ErrInvalidToken.Error()
	case errors.Is(err, ErrUserNotFound):
		return ErrUserNotFound.Error()
	case errors.Is(err, ErrOrderNotFound):
		return ErrOrderNotFound.Error()
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrMethodNotAllowed):
		return ErrMethodNotAllowed.Error()
	case errors.Is(err, ErrRateLimit):
		return ErrRateLimit.Error()
	case errors.Is(err, ErrInvalidRequest):
		return innermost(err, ErrInvalidRequest).Error()
	}
	return ErrInternal.Error()
}

// innermost follows the wrap chain of err down to the error that wraps
// target directly, dropping operation prefixes added on the way up.
func innermost(err, target error) error {
	for {
		var next error

		switch u := err.(type) {
		case interface{ Unwrap() error }:
			next = u.Unwrap()
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				if errors.Is(e, target) {
					next = e
					break
				}
			}
		}

		if next == nil || next == target || !errors.Is(next, target) {
			return err
		}
		err = next
	}
}
