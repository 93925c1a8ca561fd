// ABOUTME: API permission record endpoints including route-table refresh
// ABOUTME: Refresh reconciles stored records against the live chi route table

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lanternops/agentadmin/internal/store"
)

type apiRouteResponse struct {
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Path    string `json:"path"`
	Summary string `json:"summary"`
	Tags    string `json:"tags"`
}

func apiOut(route *store.APIRoute) apiRouteResponse {
	return apiRouteResponse{
		ID: route.ID, Method: route.Method, Path: route.Path,
		Summary: route.Summary, Tags: route.Tags,
	}
}

func (s *Server) handleAPIList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.APIRouteFilter{
		Page:    queryPage(r),
		Path:    q.Get("path"),
		Summary: q.Get("summary"),
		Tags:    q.Get("tags"),
	}
	routes, total, err := s.store.ListAPIRoutes(r.Context(), filter)
	if err != nil {
		failStore(w, err)
		return
	}
	out := make([]apiRouteResponse, 0, len(routes))
	for _, route := range routes {
		out = append(out, apiOut(route))
	}
	successPage(w, out, total, filter.Page)
}

func (s *Server) handleAPIGet(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r)
	if !ok {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	route, err := s.store.GetAPIRoute(r.Context(), id)
	if err != nil {
		failStore(w, err)
		return
	}
	success(w, apiOut(route))
}

type apiWriteRequest struct {
	ID      int64  `json:"id"`
	Method  string `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Path    string `json:"path" validate:"required,startswith=/"`
	Summary string `json:"summary"`
	Tags    string `json:"tags"`
}

func (s *Server) handleAPICreate(w http.ResponseWriter, r *http.Request) {
	var req apiWriteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	route := &store.APIRoute{Method: req.Method, Path: req.Path, Summary: req.Summary, Tags: req.Tags}
	if err := s.store.CreateAPIRoute(r.Context(), route); err != nil {
		failStore(w, err)
		return
	}
	success(w, map[string]int64{"id": route.ID})
}

func (s *Server) handleAPIUpdate(w http.ResponseWriter, r *http.Request) {
	var req apiWriteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ID < 1 {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	route, err := s.store.GetAPIRoute(r.Context(), req.ID)
	if err != nil {
		failStore(w, err)
		return
	}
	route.Method = req.Method
	route.Path = req.Path
	route.Summary = req.Summary
	route.Tags = req.Tags
	if err := s.store.UpdateAPIRoute(r.Context(), route); err != nil {
		failStore(w, err)
		return
	}
	s.resolver.InvalidateAll()
	success(w, nil)
}

func (s *Server) handleAPIDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r)
	if !ok {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.store.DeleteAPIRoute(r.Context(), id); err != nil {
		failStore(w, err)
		return
	}
	s.resolver.InvalidateAll()
	success(w, nil)
}

// handleAPIRefresh reconciles the stored permission records against the
// routes the server actually serves. New routes are inserted, stale ones
// removed; grants on surviving (method, path) pairs are preserved.
func (s *Server) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	routes := s.collectRoutes()
	if err := s.store.SyncAPIRoutes(r.Context(), routes); err != nil {
		failStore(w, err)
		return
	}
	s.resolver.InvalidateAll()
	s.logger.Info("api routes refreshed", "count", len(routes))
	success(w, map[string]int{"count": len(routes)})
}

// SyncRoutes reconciles the permission records at startup so freshly
// added routes are grantable without an operator hitting /api/refresh.
func (s *Server) SyncRoutes(ctx context.Context) error {
	routes := s.collectRoutes()
	if err := s.store.SyncAPIRoutes(ctx, routes); err != nil {
		return fmt.Errorf("syncing api routes: %w", err)
	}
	s.logger.Info("api routes synced", "count", len(routes))
	return nil
}

// collectRoutes walks the chi route tree and returns every API route as
// a permission record. Chi's {param} syntax matches the stored template
// syntax, so route patterns are usable as-is.
func (s *Server) collectRoutes() []store.APIRoute {
	var routes []store.APIRoute
	walker := func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if !strings.HasPrefix(route, "/api/v1/") {
			return nil
		}
		route = strings.TrimSuffix(route, "/")
		routes = append(routes, store.APIRoute{
			Method: method,
			Path:   route,
			Tags:   moduleOf(route),
		})
		return nil
	}
	if err := chi.Walk(s.router, walker); err != nil {
		s.logger.Error("walking route tree failed", "error", err)
	}
	return routes
}
