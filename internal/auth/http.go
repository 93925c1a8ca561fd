// ABOUTME: HTTP middleware authenticating requests via bearer access tokens
// ABOUTME: Verifies the token, loads the user, and injects Identity into context

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lanternops/agentadmin/internal/store"
)

// UserLookup loads a user by ID. Satisfied by store.Store.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*store.User, error)
}

// Middleware returns HTTP middleware that authenticates requests with a
// bearer access token. The token must verify as class "access"; refresh
// tokens are rejected here regardless of signature validity. Inactive or
// deleted users fail authentication, not authorization.
func Middleware(users UserLookup, codec *Codec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r)
			if errMsg != "" {
				unauthorized(w, errMsg)
				return
			}

			claims, err := codec.Verify(token, TokenClassAccess)
			if err != nil {
				unauthorized(w, verifyFailureMessage(err))
				return
			}

			user, err := users.GetUser(r.Context(), claims.UserID)
			if err != nil {
				unauthorized(w, "authentication failed")
				return
			}
			if !user.IsActive {
				unauthorized(w, "user is inactive")
				return
			}

			id := &Identity{
				ID:          user.ID,
				Username:    user.Username,
				IsSuperuser: user.IsSuperuser,
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// verifyFailureMessage maps a verification error to the stable message
// surfaced to clients. Every failure kind is terminal for the request.
func verifyFailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrExpiredToken):
		return "token expired"
	case errors.Is(err, ErrWrongTokenClass):
		return "wrong token class"
	default:
		return "invalid token"
	}
}

// extractBearerToken pulls a bearer token from the Authorization header,
// falling back to the legacy "token" header used by older frontends.
// Returns the token and an error message (empty on success).
func extractBearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", "invalid authorization header format"
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return "", "empty token"
		}
		return token, ""
	}
	if legacy := r.Header.Get("token"); legacy != "" {
		return legacy, ""
	}
	return "", "missing authorization header"
}

// unauthorized writes the stable error envelope for authentication
// failures. Internal detail never reaches the caller.
func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code": http.StatusUnauthorized,
		"msg":  msg,
		"data": nil,
	})
}
