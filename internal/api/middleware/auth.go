package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/patrolpoint/patrolpoint/internal/api/models"
	"github.com/patrolpoint/patrolpoint/internal/auth"
)

type userIDKey struct{}
type sessionTokenKey struct{}

// Auth creates authentication middleware that validates session bearer
// tokens locally. The raw token is kept in the context because upstream
// submission calls forward it to the reporting backend.
func Auth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r)
			if err != nil {
				if errors.Is(err, auth.ErrMissingToken) {
					writeUnauthorized(w, r, "missing authorization header")
				} else {
					writeUnauthorized(w, r, "invalid authorization header format")
				}
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "session token has expired")
				case errors.Is(err, auth.ErrInvalidToken):
					writeUnauthorized(w, r, "invalid session token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			ctx = context.WithValue(ctx, sessionTokenKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 Unauthorized response.
// Implemented directly here to avoid an import cycle with response.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetUserID retrieves the authenticated user ID from the context.
// Returns an empty string if not authenticated.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GetSessionToken retrieves the raw bearer token from the context.
func GetSessionToken(ctx context.Context) string {
	if token, ok := ctx.Value(sessionTokenKey{}).(string); ok {
		return token
	}
	return ""
}
