// ABOUTME: HTTP middleware enforcing route permissions after authentication
// ABOUTME: Runs downstream of auth.Middleware and reads Identity from context

package authz

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lanternops/agentadmin/internal/auth"
)

// Require returns middleware that authorizes every request through the
// resolver using the request method and URL path. Requests without an
// authenticated identity are rejected; the auth middleware must run
// first.
func Require(resolver *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				writeEnvelope(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			if err := resolver.Authorize(r.Context(), id, r.Method, r.URL.Path); err != nil {
				switch {
				case errors.Is(err, ErrNoRoles), errors.Is(err, ErrDenied):
					writeEnvelope(w, http.StatusForbidden, err.Error())
				default:
					writeEnvelope(w, http.StatusInternalServerError, "authorization check failed")
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAgent returns middleware for routes carrying an {agent_id} URL
// parameter. A non-integer id is a 400; an agent outside the user's
// scope is a 403. The handler can rely on the id being both well-formed
// and visible to the caller.
func RequireAgent(resolver *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				writeEnvelope(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			agentID, err := strconv.ParseInt(chi.URLParam(r, "agent_id"), 10, 64)
			if err != nil {
				writeEnvelope(w, http.StatusBadRequest, "invalid agent id")
				return
			}

			scope, err := resolver.AgentScope(r.Context(), id)
			if err != nil {
				writeEnvelope(w, http.StatusInternalServerError, "authorization check failed")
				return
			}
			if !scope.Allows(agentID) {
				writeEnvelope(w, http.StatusForbidden, "agent not accessible")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeEnvelope(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code": code,
		"msg":  msg,
		"data": nil,
	})
}
