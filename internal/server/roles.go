// ABOUTME: Role management endpoints including the grant (authorized) surface
// ABOUTME: Every write invalidates the resolver cache so grants apply immediately

package server

import (
	"net/http"
	"time"

	"github.com/lanternops/agentadmin/internal/store"
)

type roleResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Desc      string    `json:"desc"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func roleOut(role *store.Role) roleResponse {
	return roleResponse{
		ID: role.ID, Name: role.Name, Desc: role.Desc,
		CreatedAt: role.CreatedAt, UpdatedAt: role.UpdatedAt,
	}
}

func (s *Server) handleRoleList(w http.ResponseWriter, r *http.Request) {
	filter := store.RoleFilter{Page: queryPage(r), Name: r.URL.Query().Get("name")}
	roles, total, err := s.store.ListRoles(r.Context(), filter)
	if err != nil {
		failStore(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleOut(role))
	}
	successPage(w, out, total, filter.Page)
}

func (s *Server) handleRoleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r)
	if !ok {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	role, err := s.store.GetRole(r.Context(), id)
	if err != nil {
		failStore(w, err)
		return
	}
	success(w, roleOut(role))
}

type roleCreateRequest struct {
	Name string `json:"name" validate:"required,min=2,max=64"`
	Desc string `json:"desc"`
}

func (s *Server) handleRoleCreate(w http.ResponseWriter, r *http.Request) {
	var req roleCreateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	role := &store.Role{Name: req.Name, Desc: req.Desc}
	if err := s.store.CreateRole(r.Context(), role); err != nil {
		failStore(w, err)
		return
	}
	s.logger.Info("role created", "role_id", role.ID, "name", role.Name)
	success(w, map[string]int64{"id": role.ID})
}

type roleUpdateRequest struct {
	ID   int64  `json:"id" validate:"required,min=1"`
	Name string `json:"name" validate:"required,min=2,max=64"`
	Desc string `json:"desc"`
}

func (s *Server) handleRoleUpdate(w http.ResponseWriter, r *http.Request) {
	var req roleUpdateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	role, err := s.store.GetRole(r.Context(), req.ID)
	if err != nil {
		failStore(w, err)
		return
	}
	role.Name = req.Name
	role.Desc = req.Desc
	if err := s.store.UpdateRole(r.Context(), role); err != nil {
		failStore(w, err)
		return
	}
	s.resolver.InvalidateAll()
	success(w, nil)
}

func (s *Server) handleRoleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r)
	if !ok {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.store.DeleteRole(r.Context(), id); err != nil {
		failStore(w, err)
		return
	}
	s.resolver.InvalidateAll()
	s.logger.Info("role deleted", "role_id", id)
	success(w, nil)
}

type roleGrantsResponse struct {
	Role     roleResponse   `json:"role"`
	MenuIDs  []int64        `json:"menu_ids"`
	APIs     []store.APIRef `json:"apis"`
	AgentIDs []int64        `json:"agent_ids"`
}

// handleRoleAuthorizedGet returns a role's full grant set.
func (s *Server) handleRoleAuthorizedGet(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r)
	if !ok {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	role, err := s.store.GetRole(r.Context(), id)
	if err != nil {
		failStore(w, err)
		return
	}

	menus, err := s.store.MenusOfRole(r.Context(), role.ID)
	if err != nil {
		failStore(w, err)
		return
	}
	apis, err := s.store.APIsOfRole(r.Context(), role.ID)
	if err != nil {
		failStore(w, err)
		return
	}
	agentIDs, err := s.store.AgentIDsOfRole(r.Context(), role.ID)
	if err != nil {
		failStore(w, err)
		return
	}

	out := roleGrantsResponse{
		Role:     roleOut(role),
		MenuIDs:  make([]int64, 0, len(menus)),
		APIs:     make([]store.APIRef, 0, len(apis)),
		AgentIDs: agentIDs,
	}
	for _, m := range menus {
		out.MenuIDs = append(out.MenuIDs, m.ID)
	}
	for _, api := range apis {
		out.APIs = append(out.APIs, store.APIRef{Method: api.Method, Path: api.Path})
	}
	if out.AgentIDs == nil {
		out.AgentIDs = []int64{}
	}
	success(w, out)
}

type roleGrantsRequest struct {
	ID       int64          `json:"id" validate:"required,min=1"`
	MenuIDs  []int64        `json:"menu_ids"`
	APIs     []store.APIRef `json:"apis"`
	AgentIDs []int64        `json:"agent_ids"`
}

// handleRoleAuthorizedSet replaces a role's grant set wholesale.
func (s *Server) handleRoleAuthorizedSet(w http.ResponseWriter, r *http.Request) {
	var req roleGrantsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.store.SetRoleGrants(r.Context(), req.ID, req.MenuIDs, req.APIs); err != nil {
		failStore(w, err)
		return
	}
	if err := s.store.SetRoleAgents(r.Context(), req.ID, req.AgentIDs); err != nil {
		failStore(w, err)
		return
	}
	s.resolver.InvalidateAll()
	s.logger.Info("role grants updated", "role_id", req.ID,
		"menus", len(req.MenuIDs), "apis", len(req.APIs), "agents", len(req.AgentIDs))
	success(w, nil)
}
