// Package identity resolves session credentials to application users.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the profile carried by a verified session token.
type SessionClaims struct {
	Email string
	Name  string
	Image string
}

// SessionVerifier checks a session credential and extracts the profile
// the identity provider vouched for.
type SessionVerifier interface {
	Verify(token string) (*SessionClaims, error)
}

// ErrInvalidSession indicates the session token failed verification.
var ErrInvalidSession = errors.New("invalid session token")

// tokenClaims is the JWT payload issued by the identity provider.
type tokenClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier verifies HS256-signed session tokens.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a TokenVerifier with the shared secret.
func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 characters")
	}
	return &TokenVerifier{secret: []byte(secret)}, nil
}

// Verify parses and verifies a session token. The signature and expiry
// checks are handled by the jwt library; restricting the method set
// prevents algorithm confusion attacks.
func (v *TokenVerifier) Verify(token string) (*SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(
		token,
		&tokenClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSession
	}

	return &SessionClaims{
		Email: claims.Email,
		Name:  claims.Name,
		Image: claims.Image,
	}, nil
}

// SignSession mints a session token for the given profile. Used by the
// local token tool and by tests; in production the identity provider
// issues tokens with the same shared secret.
func SignSession(secret string, claims SessionClaims, ttl time.Duration) (string, error) {
	now := time.Now()

	c := tokenClaims{
		Email: claims.Email,
		Name:  claims.Name,
		Image: claims.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}
