// ABOUTME: Department management endpoints
// ABOUTME: Flat CRUD; the frontend assembles the department tree from parent_id

package server

import (
	"net/http"

	"github.com/lanternops/agentadmin/internal/store"
)

type deptResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Desc     string `json:"desc"`
	ParentID int64  `json:"parent_id"`
	Order    int    `json:"order"`
}

func deptOut(d *store.Dept) deptResponse {
	return deptResponse{ID: d.ID, Name: d.Name, Desc: d.Desc, ParentID: d.ParentID, Order: d.Order}
}

func (s *Server) handleDeptList(w http.ResponseWriter, r *http.Request) {
	filter := store.DeptFilter{Page: queryPage(r), Name: r.URL.Query().Get("name")}
	depts, total, err := s.store.ListDepts(r.Context(), filter)
	if err != nil {
		failStore(w, err)
		return
	}
	out := make([]deptResponse, 0, len(depts))
	for _, d := range depts {
		out = append(out, deptOut(d))
	}
	successPage(w, out, total, filter.Page)
}

func (s *Server) handleDeptGet(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r)
	if !ok {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	dept, err := s.store.GetDept(r.Context(), id)
	if err != nil {
		failStore(w, err)
		return
	}
	success(w, deptOut(dept))
}

type deptWriteRequest struct {
	ID       int64  `json:"id"`
	Name     string `json:"name" validate:"required,min=1,max=64"`
	Desc     string `json:"desc"`
	ParentID int64  `json:"parent_id"`
	Order    int    `json:"order"`
}

func (s *Server) handleDeptCreate(w http.ResponseWriter, r *http.Request) {
	var req deptWriteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	dept := &store.Dept{Name: req.Name, Desc: req.Desc, ParentID: req.ParentID, Order: req.Order}
	if err := s.store.CreateDept(r.Context(), dept); err != nil {
		failStore(w, err)
		return
	}
	success(w, map[string]int64{"id": dept.ID})
}

func (s *Server) handleDeptUpdate(w http.ResponseWriter, r *http.Request) {
	var req deptWriteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ID < 1 {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	dept, err := s.store.GetDept(r.Context(), req.ID)
	if err != nil {
		failStore(w, err)
		return
	}
	dept.Name = req.Name
	dept.Desc = req.Desc
	dept.ParentID = req.ParentID
	dept.Order = req.Order
	if err := s.store.UpdateDept(r.Context(), dept); err != nil {
		failStore(w, err)
		return
	}
	success(w, nil)
}

func (s *Server) handleDeptDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r)
	if !ok {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.store.DeleteDept(r.Context(), id); err != nil {
		failStore(w, err)
		return
	}
	success(w, nil)
}
