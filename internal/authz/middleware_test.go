// ABOUTME: Tests for the permission-enforcement middleware
// ABOUTME: Verifies status codes and the error envelope for denials

package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternops/agentadmin/internal/auth"
	"github.com/lanternops/agentadmin/internal/store"
)

func TestRequireMiddleware(t *testing.T) {
	f := newFixture(t)
	f.grantAPI(t, "GET", "/api/v1/user/list")

	handler := Require(f.resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(id *auth.Identity, method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if id != nil {
			req = req.WithContext(auth.WithIdentity(context.Background(), id))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("allowed", func(t *testing.T) {
		rec := do(f.identity(), "GET", "/api/v1/user/list")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("denied", func(t *testing.T) {
		rec := do(f.identity(), "GET", "/api/v1/role/list")
		assert.Equal(t, http.StatusForbidden, rec.Code)

		var body struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, http.StatusForbidden, body.Code)
		assert.Contains(t, body.Msg, "permission denied")
	})

	t.Run("no identity", func(t *testing.T) {
		rec := do(nil, "GET", "/api/v1/user/list")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("superuser", func(t *testing.T) {
		super := &auth.Identity{ID: 1000, Username: "root", IsSuperuser: true}
		rec := do(super, "DELETE", "/api/v1/anything/at/all")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireAgentMiddleware(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	agent := &store.Agent{Name: "helper", IsActive: true}
	require.NoError(t, f.mem.CreateAgent(ctx, agent))
	require.NoError(t, f.mem.SetRoleAgents(ctx, f.role.ID, []int64{agent.ID}))

	router := chi.NewRouter()
	router.With(RequireAgent(f.resolver)).Get("/agent/{agent_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	do := func(id *auth.Identity, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", path, nil)
		if id != nil {
			req = req.WithContext(auth.WithIdentity(req.Context(), id))
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("in scope", func(t *testing.T) {
		rec := do(f.identity(), fmt.Sprintf("/agent/%d", agent.ID))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("out of scope", func(t *testing.T) {
		rec := do(f.identity(), fmt.Sprintf("/agent/%d", agent.ID+100))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := do(f.identity(), "/agent/abc")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("superuser always in scope", func(t *testing.T) {
		super := &auth.Identity{ID: 1000, Username: "root", IsSuperuser: true}
		rec := do(super, fmt.Sprintf("/agent/%d", agent.ID+100))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no identity", func(t *testing.T) {
		rec := do(nil, fmt.Sprintf("/agent/%d", agent.ID))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
