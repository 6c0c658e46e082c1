package auth

import (
	"net/http"

	"github.com/KretovDmitry/ordergate/internal/models/claims"
)

// TokenVerifier is implemented by *jwt.Verifier.
type TokenVerifier interface {
	Verify(authorization string) (*claims.Auth, error)
}

// Middleware authorizes the request with the bearer token from the
// Authorization header and stores the verified claims in the request context.
// Failures go to errorHandler and never reach next.
func Middleware(
	verifier TokenVerifier,
	errorHandler func(w http.ResponseWriter, r *http.Request, err error),
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		f := func(w http.ResponseWriter, r *http.Request) {
			c, err := verifier.Verify(r.Header.Get("Authorization"))
			if err != nil {
				errorHandler(w, r, err)
				return
			}

			r = r.WithContext(claims.NewContext(r.Context(), c))

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(f)
	}
}
