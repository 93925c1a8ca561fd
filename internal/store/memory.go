// ABOUTME: In-memory Store implementation for tests and dev runs
// ABOUTME: Mirrors the SQLite semantics including filters, paging, and grant cleanup

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store kept entirely in memory. It exists for tests and
// for running without a database file; behavior matches SQLiteStore.
type MemoryStore struct {
	mu sync.RWMutex

	users  map[int64]*User
	roles  map[int64]*Role
	apis   map[int64]*APIRoute
	agents map[int64]*Agent
	depts  map[int64]*Dept
	menus  map[int64]*Menu
	files  map[string]*FileMapping
	audits []*AuditLog

	userRoles  map[int64][]int64 // user -> roles
	roleAPIs   map[int64][]int64 // role -> api routes
	roleMenus  map[int64][]int64 // role -> menus
	roleAgents map[int64][]int64 // role -> agents

	nextID int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[int64]*User),
		roles:      make(map[int64]*Role),
		apis:       make(map[int64]*APIRoute),
		agents:     make(map[int64]*Agent),
		depts:      make(map[int64]*Dept),
		menus:      make(map[int64]*Menu),
		files:      make(map[string]*FileMapping),
		userRoles:  make(map[int64][]int64),
		roleAPIs:   make(map[int64][]int64),
		roleMenus:  make(map[int64][]int64),
		roleAgents: make(map[int64][]int64),
	}
}

func (m *MemoryStore) nextIDLocked() int64 {
	m.nextID++
	return m.nextID
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// --- Users ---

func (m *MemoryStore) CreateUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return ErrDuplicate
		}
	}
	user.ID = m.nextIDLocked()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListUsers(_ context.Context, filter UserFilter) ([]*User, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*User
	for _, u := range m.users {
		if filter.Username != "" && !strings.Contains(u.Username, filter.Username) {
			continue
		}
		if filter.Email != "" && !strings.Contains(u.Email, filter.Email) {
			continue
		}
		if filter.DeptID != 0 && u.DeptID != filter.DeptID {
			continue
		}
		cp := *u
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := int64(len(matched))
	return pageSlice(matched, filter.Page), total, nil
}

func (m *MemoryStore) UpdateUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	delete(m.userRoles, id)
	return nil
}

func (m *MemoryStore) SetUserPassword(_ context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	u.LastLogin = &t
	return nil
}

func (m *MemoryStore) SetUserRoles(_ context.Context, userID int64, roleIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	m.userRoles[userID] = append([]int64(nil), roleIDs...)
	return nil
}

func (m *MemoryStore) RolesOfUser(_ context.Context, userID int64) ([]*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var roles []*Role
	for _, id := range m.userRoles[userID] {
		if r, ok := m.roles[id]; ok {
			cp := *r
			roles = append(roles, &cp)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

// --- Roles ---

func (m *MemoryStore) CreateRole(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == role.Name {
			return ErrDuplicate
		}
	}
	role.ID = m.nextIDLocked()
	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRole(_ context.Context, id int64) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) GetRoleByName(_ context.Context, name string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListRoles(_ context.Context, filter RoleFilter) ([]*Role, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*Role
	for _, r := range m.roles {
		if filter.Name != "" && !strings.Contains(r.Name, filter.Name) {
			continue
		}
		cp := *r
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := int64(len(matched))
	return pageSlice(matched, filter.Page), total, nil
}

func (m *MemoryStore) UpdateRole(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role.ID]; !ok {
		return ErrNotFound
	}
	role.UpdatedAt = time.Now()
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteRole(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	delete(m.roleAPIs, id)
	delete(m.roleMenus, id)
	delete(m.roleAgents, id)
	for userID, roleIDs := range m.userRoles {
		m.userRoles[userID] = removeID(roleIDs, id)
	}
	return nil
}

func (m *MemoryStore) SetRoleGrants(_ context.Context, roleID int64, menuIDs []int64, apis []APIRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	m.roleMenus[roleID] = append([]int64(nil), menuIDs...)
	var apiIDs []int64
	for _, ref := range apis {
		for id, route := range m.apis {
			if route.Method == ref.Method && route.Path == ref.Path {
				apiIDs = append(apiIDs, id)
				break
			}
		}
	}
	m.roleAPIs[roleID] = apiIDs
	return nil
}

func (m *MemoryStore) SetRoleAgents(_ context.Context, roleID int64, agentIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	m.roleAgents[roleID] = append([]int64(nil), agentIDs...)
	return nil
}

func (m *MemoryStore) APIsOfRole(_ context.Context, roleID int64) ([]*APIRoute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var routes []*APIRoute
	for _, id := range m.roleAPIs[roleID] {
		if r, ok := m.apis[id]; ok {
			cp := *r
			routes = append(routes, &cp)
		}
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })
	return routes, nil
}

func (m *MemoryStore) MenusOfRole(_ context.Context, roleID int64) ([]*Menu, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var menus []*Menu
	for _, id := range m.roleMenus[roleID] {
		if mn, ok := m.menus[id]; ok {
			cp := *mn
			menus = append(menus, &cp)
		}
	}
	sort.Slice(menus, func(i, j int) bool {
		if menus[i].Order != menus[j].Order {
			return menus[i].Order < menus[j].Order
		}
		return menus[i].ID < menus[j].ID
	})
	return menus, nil
}

func (m *MemoryStore) AgentIDsOfRole(_ context.Context, roleID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64(nil), m.roleAgents[roleID]...), nil
}

// --- API routes ---

func (m *MemoryStore) CreateAPIRoute(_ context.Context, route *APIRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.apis {
		if r.Method == route.Method && r.Path == route.Path {
			return ErrDuplicate
		}
	}
	route.ID = m.nextIDLocked()
	cp := *route
	m.apis[route.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAPIRoute(_ context.Context, id int64) (*APIRoute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.apis[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListAPIRoutes(_ context.Context, filter APIRouteFilter) ([]*APIRoute, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*APIRoute
	for _, r := range m.apis {
		if filter.Path != "" && !strings.Contains(r.Path, filter.Path) {
			continue
		}
		if filter.Summary != "" && !strings.Contains(r.Summary, filter.Summary) {
			continue
		}
		if filter.Tags != "" && !strings.Contains(r.Tags, filter.Tags) {
			continue
		}
		cp := *r
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Tags != matched[j].Tags {
			return matched[i].Tags < matched[j].Tags
		}
		return matched[i].ID < matched[j].ID
	})
	total := int64(len(matched))
	return pageSlice(matched, filter.Page), total, nil
}

func (m *MemoryStore) UpdateAPIRoute(_ context.Context, route *APIRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apis[route.ID]; !ok {
		return ErrNotFound
	}
	cp := *route
	m.apis[route.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteAPIRoute(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apis[id]; !ok {
		return ErrNotFound
	}
	delete(m.apis, id)
	for roleID, apiIDs := range m.roleAPIs {
		m.roleAPIs[roleID] = removeID(apiIDs, id)
	}
	return nil
}

func (m *MemoryStore) SyncAPIRoutes(_ context.Context, routes []APIRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	desired := make(map[string]APIRoute, len(routes))
	for _, r := range routes {
		desired[r.Method+" "+r.Path] = r
	}

	for id, existing := range m.apis {
		key := existing.Method + " " + existing.Path
		want, ok := desired[key]
		if !ok {
			delete(m.apis, id)
			for roleID, apiIDs := range m.roleAPIs {
				m.roleAPIs[roleID] = removeID(apiIDs, id)
			}
			continue
		}
		existing.Summary = want.Summary
		existing.Tags = want.Tags
		delete(desired, key)
	}
	for _, r := range desired {
		r.ID = m.nextIDLocked()
		cp := r
		m.apis[r.ID] = &cp
	}
	return nil
}

// --- Agents ---

func (m *MemoryStore) CreateAgent(_ context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent.ID = m.nextIDLocked()
	now := time.Now()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	cp := *agent
	m.agents[agent.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAgent(_ context.Context, id int64) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ListAgents(_ context.Context, filter AgentFilter) ([]*Agent, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var allowed map[int64]bool
	if filter.IDs != nil {
		allowed = make(map[int64]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			allowed[id] = true
		}
	}

	var matched []*Agent
	for _, a := range m.agents {
		if allowed != nil && !allowed[a.ID] {
			continue
		}
		if filter.Name != "" && !strings.Contains(a.Name, filter.Name) {
			continue
		}
		cp := *a
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := int64(len(matched))
	return pageSlice(matched, filter.Page), total, nil
}

func (m *MemoryStore) UpdateAgent(_ context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[agent.ID]; !ok {
		return ErrNotFound
	}
	agent.UpdatedAt = time.Now()
	cp := *agent
	m.agents[agent.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteAgent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; !ok {
		return ErrNotFound
	}
	delete(m.agents, id)
	for roleID, agentIDs := range m.roleAgents {
		m.roleAgents[roleID] = removeID(agentIDs, id)
	}
	return nil
}

// --- Departments ---

func (m *MemoryStore) CreateDept(_ context.Context, dept *Dept) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dept.ID = m.nextIDLocked()
	now := time.Now()
	dept.CreatedAt = now
	dept.UpdatedAt = now
	cp := *dept
	m.depts[dept.ID] = &cp
	return nil
}

func (m *MemoryStore) GetDept(_ context.Context, id int64) (*Dept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.depts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) ListDepts(_ context.Context, filter DeptFilter) ([]*Dept, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*Dept
	for _, d := range m.depts {
		if filter.Name != "" && !strings.Contains(d.Name, filter.Name) {
			continue
		}
		cp := *d
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Order != matched[j].Order {
			return matched[i].Order < matched[j].Order
		}
		return matched[i].ID < matched[j].ID
	})
	total := int64(len(matched))
	return pageSlice(matched, filter.Page), total, nil
}

func (m *MemoryStore) UpdateDept(_ context.Context, dept *Dept) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.depts[dept.ID]; !ok {
		return ErrNotFound
	}
	dept.UpdatedAt = time.Now()
	cp := *dept
	m.depts[dept.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteDept(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.depts[id]; !ok {
		return ErrNotFound
	}
	delete(m.depts, id)
	return nil
}

// --- Menus ---

func (m *MemoryStore) CreateMenu(_ context.Context, menu *Menu) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	menu.ID = m.nextIDLocked()
	if menu.MenuType == "" {
		menu.MenuType = MenuTypeMenu
	}
	now := time.Now()
	menu.CreatedAt = now
	menu.UpdatedAt = now
	cp := *menu
	m.menus[menu.ID] = &cp
	return nil
}

func (m *MemoryStore) GetMenu(_ context.Context, id int64) (*Menu, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mn, ok := m.menus[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mn
	return &cp, nil
}

func (m *MemoryStore) ListMenus(_ context.Context) ([]*Menu, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var menus []*Menu
	for _, mn := range m.menus {
		cp := *mn
		menus = append(menus, &cp)
	}
	sort.Slice(menus, func(i, j int) bool {
		if menus[i].Order != menus[j].Order {
			return menus[i].Order < menus[j].Order
		}
		return menus[i].ID < menus[j].ID
	})
	return menus, nil
}

func (m *MemoryStore) UpdateMenu(_ context.Context, menu *Menu) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.menus[menu.ID]; !ok {
		return ErrNotFound
	}
	menu.UpdatedAt = time.Now()
	cp := *menu
	m.menus[menu.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteMenu(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.menus[id]; !ok {
		return ErrNotFound
	}
	for _, mn := range m.menus {
		if mn.ParentID == id {
			return ErrHasChildren
		}
	}
	delete(m.menus, id)
	for roleID, menuIDs := range m.roleMenus {
		m.roleMenus[roleID] = removeID(menuIDs, id)
	}
	return nil
}

// --- Files ---

func (m *MemoryStore) CreateFileMapping(_ context.Context, mapping *FileMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mapping.ID == "" {
		mapping.ID = uuid.NewString()
	}
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now()
	}
	if _, exists := m.files[mapping.ID]; exists {
		return ErrDuplicate
	}
	cp := *mapping
	m.files[mapping.ID] = &cp
	return nil
}

func (m *MemoryStore) GetFileMapping(_ context.Context, fileID string) (*FileMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[fileID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

// --- Audit ---

func (m *MemoryStore) InsertAuditLog(_ context.Context, entry *AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	cp := *entry
	m.audits = append(m.audits, &cp)
	return nil
}

func (m *MemoryStore) ListAuditLogs(_ context.Context, filter AuditLogFilter) ([]*AuditLog, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*AuditLog
	for _, e := range m.audits {
		if filter.Username != "" && !strings.Contains(e.Username, filter.Username) {
			continue
		}
		if filter.Module != "" && e.Module != filter.Module {
			continue
		}
		if filter.Method != "" && e.Method != filter.Method {
			continue
		}
		if filter.Path != "" && !strings.Contains(e.Path, filter.Path) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	// newest first
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := int64(len(matched))
	return pageSlice(matched, filter.Page), total, nil
}

func pageSlice[T any](items []T, p Page) []T {
	page, size := p.Normalize()
	start := (page - 1) * size
	if start >= len(items) {
		return nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
