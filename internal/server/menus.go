// ABOUTME: Menu management endpoints and menu tree assembly
// ABOUTME: Menus are stored flat; responses nest children under parents

package server

import (
	"net/http"
	"sort"

	"github.com/lanternops/agentadmin/internal/store"
)

type menuNode struct {
	ID        int64       `json:"id"`
	MenuType  string      `json:"menu_type"`
	Name      string      `json:"name"`
	Path      string      `json:"path"`
	Component string      `json:"component"`
	Icon      string      `json:"icon"`
	Order     int         `json:"order"`
	ParentID  int64       `json:"parent_id"`
	IsHidden  bool        `json:"is_hidden"`
	Redirect  string      `json:"redirect"`
	Keepalive bool        `json:"keepalive"`
	Children  []*menuNode `json:"children"`
}

func menuOut(m *store.Menu) *menuNode {
	return &menuNode{
		ID:        m.ID,
		MenuType:  m.MenuType,
		Name:      m.Name,
		Path:      m.Path,
		Component: m.Component,
		Icon:      m.Icon,
		Order:     m.Order,
		ParentID:  m.ParentID,
		IsHidden:  m.IsHidden,
		Redirect:  m.Redirect,
		Keepalive: m.Keepalive,
		Children:  []*menuNode{},
	}
}

// buildMenuTree nests menus under their parents. Menus whose parent is
// missing from the set surface as roots so a partial grant still renders.
func buildMenuTree(menus []*store.Menu) []*menuNode {
	nodes := make(map[int64]*menuNode, len(menus))
	for _, m := range menus {
		nodes[m.ID] = menuOut(m)
	}

	var roots []*menuNode
	for _, m := range menus {
		node := nodes[m.ID]
		if parent, ok := nodes[m.ParentID]; ok && m.ParentID != m.ID {
			parent.Children = append(parent.Children, node)
			continue
		}
		roots = append(roots, node)
	}

	var sortNodes func(ns []*menuNode)
	sortNodes = func(ns []*menuNode) {
		sort.Slice(ns, func(i, j int) bool {
			if ns[i].Order != ns[j].Order {
				return ns[i].Order < ns[j].Order
			}
			return ns[i].ID < ns[j].ID
		})
		for _, n := range ns {
			sortNodes(n.Children)
		}
	}
	sortNodes(roots)
	if roots == nil {
		roots = []*menuNode{}
	}
	return roots
}

func (s *Server) handleMenuList(w http.ResponseWriter, r *http.Request) {
	menus, err := s.store.ListMenus(r.Context())
	if err != nil {
		failStore(w, err)
		return
	}
	success(w, buildMenuTree(menus))
}

func (s *Server) handleMenuGet(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r)
	if !ok {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	menu, err := s.store.GetMenu(r.Context(), id)
	if err != nil {
		failStore(w, err)
		return
	}
	success(w, menuOut(menu))
}

type menuWriteRequest struct {
	ID        int64  `json:"id"`
	MenuType  string `json:"menu_type" validate:"omitempty,oneof=catalog menu"`
	Name      string `json:"name" validate:"required,min=1,max=64"`
	Path      string `json:"path"`
	Component string `json:"component"`
	Icon      string `json:"icon"`
	Order     int    `json:"order"`
	ParentID  int64  `json:"parent_id"`
	IsHidden  bool   `json:"is_hidden"`
	Redirect  string `json:"redirect"`
	Keepalive bool   `json:"keepalive"`
}

func (req *menuWriteRequest) apply(menu *store.Menu) {
	menu.MenuType = req.MenuType
	menu.Name = req.Name
	menu.Path = req.Path
	menu.Component = req.Component
	menu.Icon = req.Icon
	menu.Order = req.Order
	menu.ParentID = req.ParentID
	menu.IsHidden = req.IsHidden
	menu.Redirect = req.Redirect
	menu.Keepalive = req.Keepalive
}

func (s *Server) handleMenuCreate(w http.ResponseWriter, r *http.Request) {
	var req menuWriteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	menu := &store.Menu{}
	req.apply(menu)
	if err := s.store.CreateMenu(r.Context(), menu); err != nil {
		failStore(w, err)
		return
	}
	success(w, map[string]int64{"id": menu.ID})
}

func (s *Server) handleMenuUpdate(w http.ResponseWriter, r *http.Request) {
	var req menuWriteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ID < 1 {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	menu, err := s.store.GetMenu(r.Context(), req.ID)
	if err != nil {
		failStore(w, err)
		return
	}
	req.apply(menu)
	if err := s.store.UpdateMenu(r.Context(), menu); err != nil {
		failStore(w, err)
		return
	}
	success(w, nil)
}

func (s *Server) handleMenuDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r)
	if !ok {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.store.DeleteMenu(r.Context(), id); err != nil {
		failStore(w, err)
		return
	}
	success(w, nil)
}
