package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KretovDmitry/ordergate/internal/jwt"
	"github.com/KretovDmitry/ordergate/internal/models/claims"
	"github.com/KretovDmitry/ordergate/internal/models/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	const secret = "Kyoto"

	verifier, err := jwt.NewVerifier(secret)
	require.NoError(t, err)

	token, err := jwt.BuildString(42, secret, time.Hour)
	require.NoError(t, err)

	errorHandler := func(w http.ResponseWriter, _ *http.Request, err error) {
		code := http.StatusInternalServerError
		if errors.Is(err, errs.ErrUnauthenticated) {
			code = http.StatusUnauthorized
		}
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(errs.JSON{Error: err.Error()})
	}

	type want struct {
		userID     int
		statusCode int
		reached    bool
	}

	tests := []struct {
		name   string
		header string
		want   want
	}{
		{
			name:   "OK",
			header: token,
			want:   want{statusCode: http.StatusOK, userID: 42, reached: true},
		},
		{
			name:   "no header",
			header: "",
			want:   want{statusCode: http.StatusUnauthorized},
		},
		{
			name:   "invalid token",
			header: "Bearer invalid",
			want:   want{statusCode: http.StatusUnauthorized},
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var (
				reached bool
				userID  int
			)
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				c, ok := claims.FromContext(r.Context())
				require.True(t, ok, "claims must be in context")
				userID = c.UserID
			})

			r := httptest.NewRequest(http.MethodGet, "/api/orders", http.NoBody)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			Middleware(verifier, errorHandler)(next).ServeHTTP(w, r)

			assert.Equal(t, tt.want.statusCode, w.Code, "status mismatch")
			assert.Equal(t, tt.want.reached, reached, "next handler reach mismatch")
			assert.Equal(t, tt.want.userID, userID, "user id mismatch")
		})
	}
}
