package jwt

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/KretovDmitry/ordergate/internal/models/claims"
	"github.com/KretovDmitry/ordergate/internal/models/errs"
	"github.com/golang-jwt/jwt/v4"
)

const bearerPrefix = "Bearer "

// BuildString creates a bearer JWT string for the given user ID and token expiration time.
func BuildString(userID int, secret string, tokenExp time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims.Auth{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenExp)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return bearerPrefix + tokenString, nil
}

// Verifier checks bearer credentials against one shared signing secret.
// It holds no other state and is safe for concurrent use.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("empty signing secret")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify takes the raw Authorization header value and returns the verified claims.
// It fails with errs.ErrNoToken when there is no bearer token at all
// and with errs.ErrInvalidToken on any verification failure.
func (v *Verifier) Verify(authorization string) (*claims.Auth, error) {
	tokenString, found := strings.CutPrefix(authorization, bearerPrefix)
	tokenString = strings.TrimSpace(tokenString)
	if !found || tokenString == "" {
		return nil, errs.ErrNoToken
	}

	return v.Parse(tokenString)
}

// Parse verifies a bare token string.
func (v *Verifier) Parse(tokenString string) (*claims.Auth, error) {
	c := new(claims.Auth)

	token, err := jwt.ParseWithClaims(tokenString, c,
		func(token *jwt.Token) (interface{}, error) {
			// Verify that the token method is HMAC.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf(
					"unexpected signing method: %v", token.Header["alg"],
				)
			}

			return v.secret, nil
		})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, errs.ErrInvalidToken
	}

	// v4 treats a missing exp as "never expires".
	if c.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiration", errs.ErrInvalidToken)
	}

	if c.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user id", errs.ErrInvalidToken)
	}
	// Stored as INTEGER.
	if c.UserID > math.MaxInt32 {
		return nil, fmt.Errorf("%w: user id out of range", errs.ErrInvalidToken)
	}

	return c, nil
}
