package claims

import (
	"context"

	"github.com/golang-jwt/jwt/v4"
)

// Auth is the verified payload of a bearer credential.
type Auth struct {
	jwt.RegisteredClaims
	UserID int `json:"userId"`
}

// key is an unexported type for keys defined in this package.
// This prevents collisions with keys defined in other packages.
type key int

// authKey is the key for claims.Auth values in Contexts. It is
// unexported; clients use claims.NewContext and claims.FromContext
// instead of using this key directly.
var authKey key

// NewContext returns a new Context that carries value a.
func NewContext(ctx context.Context, a *Auth) context.Context {
	return context.WithValue(ctx, authKey, a)
}

// FromContext returns the Auth value stored in ctx, if any.
func FromContext(ctx context.Context) (*Auth, bool) {
	a, ok := ctx.Value(authKey).(*Auth)
	return a, ok
}
