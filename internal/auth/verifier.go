// Package auth validates the session tokens the upstream reporting backend
// issues at login. The gateway shares the backend's HS256 signing secret and
// verifies tokens locally instead of round-tripping every request upstream;
// the raw token still travels with submission calls so the backend applies
// its own checks.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Predefined token errors.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token has expired")
)

// Claims are the claims the upstream backend puts in its session tokens: a
// numeric user ID and an expiry.
type Claims struct {
	jwt.RegisteredClaims

	UserID json.Number `json:"userId"`
}

// VerifierConfig holds configuration for the token verifier.
type VerifierConfig struct {
	// SigningKey is the HS256 secret shared with the upstream backend.
	SigningKey string
}

// Verifier validates session tokens locally.
type Verifier struct {
	signingKey []byte
}

// NewVerifier creates a token verifier.
func NewVerifier(cfg VerifierConfig) *Verifier {
	return &Verifier{signingKey: []byte(cfg.SigningKey)}
}

// Verify parses and validates a session token and returns the user ID.
func (v *Verifier) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.UserID.String() == "" {
		return "", fmt.Errorf("%w: userId claim missing", ErrInvalidToken)
	}

	return claims.UserID.String(), nil
}

// BearerToken extracts the bearer token from a request's Authorization
// header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}

	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrInvalidToken
	}
	return header[len(prefix):], nil
}
