package jwt

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/KretovDmitry/ordergate/internal/models/claims"
	"github.com/KretovDmitry/ordergate/internal/models/errs"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "Kyoto"

func sign(t *testing.T, method jwt.SigningMethod, key any, c jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, c).SignedString(key)
	require.NoError(t, err)
	return "Bearer " + s
}

func TestNewVerifier(t *testing.T) {
	_, err := NewVerifier("")
	assert.Error(t, err)

	v, err := NewVerifier(secret)
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestVerify(t *testing.T) {
	v, err := NewVerifier(secret)
	require.NoError(t, err)

	valid, err := BuildString(42, secret, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantID  int
		wantErr error
	}{
		{
			name:   "OK",
			header: valid,
			wantID: 42,
		},
		{
			name:    "empty header",
			header:  "",
			wantErr: errs.ErrNoToken,
		},
		{
			name:    "wrong scheme",
			header:  "Basic Z29waGVyOmdvcGhlcg==",
			wantErr: errs.ErrNoToken,
		},
		{
			name:    "bearer without token",
			header:  "Bearer ",
			wantErr: errs.ErrNoToken,
		},
		{
			name:    "garbage token",
			header:  "Bearer not.a.jwt",
			wantErr: errs.ErrInvalidToken,
		},
		{
			name: "expired",
			header: func() string {
				s, err := BuildString(42, secret, -time.Minute)
				require.NoError(t, err)
				return s
			}(),
			wantErr: errs.ErrInvalidToken,
		},
		{
			name: "wrong secret",
			header: func() string {
				s, err := BuildString(42, "Osaka", time.Hour)
				require.NoError(t, err)
				return s
			}(),
			wantErr: errs.ErrInvalidToken,
		},
		{
			name: "tampered payload",
			header: func() string {
				other, err := BuildString(7, secret, time.Hour)
				require.NoError(t, err)
				a := strings.Split(valid, ".")
				b := strings.Split(other, ".")
				// Signature of user 42 over the claims of user 7.
				return strings.Join([]string{b[0], b[1], a[2]}, ".")
			}(),
			wantErr: errs.ErrInvalidToken,
		},
		{
			name: "missing expiration",
			header: sign(t, jwt.SigningMethodHS256, []byte(secret), claims.Auth{
				UserID: 42,
			}),
			wantErr: errs.ErrInvalidToken,
		},
		{
			name: "missing user id",
			header: sign(t, jwt.SigningMethodHS256, []byte(secret), claims.Auth{
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
			}),
			wantErr: errs.ErrInvalidToken,
		},
		{
			name: "user id out of range",
			header: sign(t, jwt.SigningMethodHS256, []byte(secret), claims.Auth{
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
				UserID: math.MaxInt32 + 1,
			}),
			wantErr: errs.ErrInvalidToken,
		},
		{
			name: "largest user id",
			header: sign(t, jwt.SigningMethodHS256, []byte(secret), claims.Auth{
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					IssuedAt:  jwt.NewNumericDate(time.Now()),
				},
				UserID: math.MaxInt32,
			}),
			wantID: math.MaxInt32,
		},
		{
			name:    "none algorithm",
			header:  sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, claims.Auth{UserID: 42}),
			wantErr: errs.ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := v.Verify(tt.header)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, errs.ErrUnauthenticated)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.UserID)
			assert.NotNil(t, got.IssuedAt)
		})
	}
}
