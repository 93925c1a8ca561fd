// ABOUTME: Agent registry endpoints: scope-filtered listing and detail
// ABOUTME: Visibility is governed by the caller's agent scope, never by an empty set

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lanternops/agentadmin/internal/auth"
	"github.com/lanternops/agentadmin/internal/store"
)

type agentResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Endpoint  string    `json:"endpoint"`
	Desc      string    `json:"desc"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func agentOut(a *store.Agent) agentResponse {
	return agentResponse{
		ID: a.ID, Name: a.Name, Endpoint: a.Endpoint, Desc: a.Desc,
		IsActive: a.IsActive, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

// handleAgentList lists the agents visible to the caller. The scope's
// FilterIDs drives the store filter: nil for unrestricted, an explicit
// set for restricted users, and an empty set (no rows) for NoAccess.
func (s *Server) handleAgentList(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	scope, err := s.resolver.AgentScope(r.Context(), id)
	if err != nil {
		s.logger.Error("resolving agent scope failed", "user_id", id.ID, "error", err)
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}

	filter := store.AgentFilter{
		Page: queryPage(r),
		Name: r.URL.Query().Get("name"),
		IDs:  scope.FilterIDs(),
	}
	agents, total, err := s.store.ListAgents(r.Context(), filter)
	if err != nil {
		failStore(w, err)
		return
	}
	out := make([]agentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentOut(a))
	}
	successPage(w, out, total, filter.Page)
}

// handleAgentGet returns one agent. Scope is enforced by the
// RequireAgent middleware upstream of this handler.
func (s *Server) handleAgentGet(w http.ResponseWriter, r *http.Request) {
	agentID, err := strconv.ParseInt(chi.URLParam(r, "agent_id"), 10, 64)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	agent, err := s.store.GetAgent(r.Context(), agentID)
	if err != nil {
		failStore(w, err)
		return
	}
	success(w, agentOut(agent))
}
