package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublic(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: ErrNoToken, want: "unauthenticated: no token provided"},
		{err: fmt.Errorf("%w: token is expired", ErrInvalidToken), want: "unauthenticated: invalid token"},
		{err: ErrUserNotFound, want: "user not found"},
		{err: ErrOrderNotFound, want: "order not found"},
		{err: ErrRateLimit, want: "too many requests"},
		{err: ErrMethodNotAllowed, want: "method not allowed"},
		{err: &RequiredJSONBodyParamError{ParamName: "items"}, want: "invalid request: items required"},
		{
			err:  fmt.Errorf("update order 5: %w", fmt.Errorf("%w: status must not exceed 50 characters", ErrInvalidRequest)),
			want: "invalid request: status must not exceed 50 characters",
		},
		{
			err:  fmt.Errorf("create order: %w", &RequiredJSONBodyParamError{ParamName: "totalAmount"}),
			want: "invalid request: totalAmount required",
		},
		{err: fmt.Errorf("op: %w", ErrInvalidRequest), want: "invalid request"},
		{err: fmt.Errorf("%w: %w", ErrUnavailable, errors.New("dial tcp: connection refused")), want: "internal server error"},
		{err: errors.New("boom"), want: "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Public(tt.err))
		})
	}
}
