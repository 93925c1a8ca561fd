// ABOUTME: Tests for the SQLite store covering CRUD, grants, and sync behavior
// ABOUTME: Uses a temp-dir database per test

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &User{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		IsActive:     true,
	}
	require.NoError(t, s.CreateUser(ctx, user))
	require.NotZero(t, user.ID)

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.True(t, got.IsActive)
	assert.False(t, got.IsSuperuser)
	assert.Nil(t, got.LastLogin)

	byName, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	_, err = s.GetUser(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &User{Username: "bob", PasswordHash: "h", IsActive: true}))
	err := s.CreateUser(ctx, &User{Username: "bob", PasswordHash: "h2", IsActive: true})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUpdateLastLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &User{Username: "carol", PasswordHash: "h", IsActive: true}
	require.NoError(t, s.CreateUser(ctx, user))

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateLastLogin(ctx, user.ID, at))

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	assert.Equal(t, at, got.LastLogin.UTC())
}

func TestListUsersFilterAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"admin", "analyst", "bert"} {
		require.NoError(t, s.CreateUser(ctx, &User{Username: name, PasswordHash: "h", IsActive: true}))
	}

	users, total, err := s.ListUsers(ctx, UserFilter{Username: "a"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, users, 2)

	users, total, err = s.ListUsers(ctx, UserFilter{Page: Page{Page: 2, PageSize: 2}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, users, 1)
	assert.Equal(t, "bert", users[0].Username)
}

func TestUserRoleAssignment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &User{Username: "dave", PasswordHash: "h", IsActive: true}
	require.NoError(t, s.CreateUser(ctx, user))

	ops := &Role{Name: "ops"}
	audit := &Role{Name: "audit"}
	require.NoError(t, s.CreateRole(ctx, ops))
	require.NoError(t, s.CreateRole(ctx, audit))

	require.NoError(t, s.SetUserRoles(ctx, user.ID, []int64{ops.ID, audit.ID}))
	roles, err := s.RolesOfUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, roles, 2)

	// replacement, not accumulation
	require.NoError(t, s.SetUserRoles(ctx, user.ID, []int64{audit.ID}))
	roles, err = s.RolesOfUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "audit", roles[0].Name)

	require.NoError(t, s.DeleteUser(ctx, user.ID))
	roles, err = s.RolesOfUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestRoleGrants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	role := &Role{Name: "viewer"}
	require.NoError(t, s.CreateRole(ctx, role))

	listUsers := &APIRoute{Method: "GET", Path: "/api/v1/user/list"}
	getUser := &APIRoute{Method: "GET", Path: "/api/v1/user/get"}
	require.NoError(t, s.CreateAPIRoute(ctx, listUsers))
	require.NoError(t, s.CreateAPIRoute(ctx, getUser))

	menu := &Menu{Name: "users", Path: "/system/user"}
	require.NoError(t, s.CreateMenu(ctx, menu))

	refs := []APIRef{
		{Method: "GET", Path: "/api/v1/user/list"},
		{Method: "POST", Path: "/api/v1/does/not/exist"}, // skipped
	}
	require.NoError(t, s.SetRoleGrants(ctx, role.ID, []int64{menu.ID}, refs))

	apis, err := s.APIsOfRole(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, apis, 1)
	assert.Equal(t, "/api/v1/user/list", apis[0].Path)

	menus, err := s.MenusOfRole(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, menus, 1)
	assert.Equal(t, "users", menus[0].Name)

	require.NoError(t, s.DeleteRole(ctx, role.ID))
	apis, err = s.APIsOfRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, apis)
}

func TestRoleAgents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	role := &Role{Name: "support"}
	require.NoError(t, s.CreateRole(ctx, role))

	a1 := &Agent{Name: "helper", IsActive: true}
	a2 := &Agent{Name: "triage", IsActive: true}
	require.NoError(t, s.CreateAgent(ctx, a1))
	require.NoError(t, s.CreateAgent(ctx, a2))

	require.NoError(t, s.SetRoleAgents(ctx, role.ID, []int64{a1.ID}))
	ids, err := s.AgentIDsOfRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a1.ID}, ids)
}

func TestListAgentsScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a1 := &Agent{Name: "alpha", IsActive: true}
	a2 := &Agent{Name: "beta", IsActive: true}
	require.NoError(t, s.CreateAgent(ctx, a1))
	require.NoError(t, s.CreateAgent(ctx, a2))

	// nil IDs: no restriction
	agents, total, err := s.ListAgents(ctx, AgentFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, agents, 2)

	// restricted to one
	agents, total, err = s.ListAgents(ctx, AgentFilter{IDs: []int64{a2.ID}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, agents, 1)
	assert.Equal(t, "beta", agents[0].Name)

	// empty non-nil: nothing visible
	agents, total, err = s.ListAgents(ctx, AgentFilter{IDs: []int64{}})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
	assert.Empty(t, agents)
}

func TestSyncAPIRoutes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := &APIRoute{Method: "GET", Path: "/api/v1/old", Summary: "old"}
	kept := &APIRoute{Method: "GET", Path: "/api/v1/user/list", Summary: "before"}
	require.NoError(t, s.CreateAPIRoute(ctx, stale))
	require.NoError(t, s.CreateAPIRoute(ctx, kept))

	role := &Role{Name: "sync"}
	require.NoError(t, s.CreateRole(ctx, role))
	require.NoError(t, s.SetRoleGrants(ctx, role.ID, nil, []APIRef{
		{Method: "GET", Path: "/api/v1/old"},
		{Method: "GET", Path: "/api/v1/user/list"},
	}))

	require.NoError(t, s.SyncAPIRoutes(ctx, []APIRoute{
		{Method: "GET", Path: "/api/v1/user/list", Summary: "after", Tags: "user"},
		{Method: "POST", Path: "/api/v1/user/create", Summary: "create", Tags: "user"},
	}))

	routes, total, err := s.ListAPIRoutes(ctx, APIRouteFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	byPath := make(map[string]*APIRoute)
	for _, r := range routes {
		byPath[r.Path] = r
	}
	require.Contains(t, byPath, "/api/v1/user/list")
	assert.Equal(t, "after", byPath["/api/v1/user/list"].Summary)
	require.Contains(t, byPath, "/api/v1/user/create")
	assert.NotContains(t, byPath, "/api/v1/old")

	// grants on surviving routes persist; stale grants are gone
	apis, err := s.APIsOfRole(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, apis, 1)
	assert.Equal(t, "/api/v1/user/list", apis[0].Path)
}

func TestMenuTreeDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	parent := &Menu{Name: "system", MenuType: MenuTypeCatalog}
	require.NoError(t, s.CreateMenu(ctx, parent))
	child := &Menu{Name: "users", ParentID: parent.ID}
	require.NoError(t, s.CreateMenu(ctx, child))

	err := s.DeleteMenu(ctx, parent.ID)
	assert.ErrorIs(t, err, ErrHasChildren)

	require.NoError(t, s.DeleteMenu(ctx, child.ID))
	require.NoError(t, s.DeleteMenu(ctx, parent.ID))

	menus, err := s.ListMenus(ctx)
	require.NoError(t, err)
	assert.Empty(t, menus)
}

func TestDeptRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := &Dept{Name: "engineering", Order: 2}
	require.NoError(t, s.CreateDept(ctx, d))
	first := &Dept{Name: "ops", Order: 1}
	require.NoError(t, s.CreateDept(ctx, first))

	depts, total, err := s.ListDepts(ctx, DeptFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, depts, 2)
	assert.Equal(t, "ops", depts[0].Name)

	d.Name = "platform"
	require.NoError(t, s.UpdateDept(ctx, d))
	got, err := s.GetDept(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "platform", got.Name)
}

func TestFileMappingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mapping := &FileMapping{
		OriginalName: "report.pdf",
		FileType:     "application/pdf",
		FileSize:     2048,
		FilePath:     "/var/lib/agentadmin/uploads/abc.pdf",
		UserID:       7,
	}
	require.NoError(t, s.CreateFileMapping(ctx, mapping))
	require.NotEmpty(t, mapping.ID)

	got, err := s.GetFileMapping(ctx, mapping.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", got.OriginalName)
	assert.Equal(t, "application/pdf", got.FileType)
	assert.EqualValues(t, 2048, got.FileSize)
	assert.EqualValues(t, 7, got.UserID)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetFileMapping(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuditLogListing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertAuditLog(ctx, &AuditLog{
			Username:  "admin",
			Module:    "user",
			Method:    "POST",
			Path:      "/api/v1/user/create",
			Status:    200,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.InsertAuditLog(ctx, &AuditLog{
		Username: "alice", Module: "role", Method: "GET", Path: "/api/v1/role/list", Status: 200,
		CreatedAt: base.Add(time.Hour),
	}))

	entries, total, err := s.ListAuditLogs(ctx, AuditLogFilter{Username: "admin"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, entries, 3)
	// newest first
	assert.True(t, entries[0].CreatedAt.After(entries[2].CreatedAt))

	entries, total, err = s.ListAuditLogs(ctx, AuditLogFilter{Module: "role"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Username)
}

func TestSeedIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := &SeedFile{
		Users: []SeedUser{{Username: "admin", Password: "changeme", IsSuperuser: true, Roles: []string{"ops"}}},
		Roles: []SeedRole{{Name: "ops", Desc: "operations", Agents: []string{"helper"}}},
		Agents: []SeedAgent{
			{Name: "helper", Endpoint: "http://localhost:9000"},
		},
		Menus: []SeedMenu{{
			Name: "system", MenuType: MenuTypeCatalog,
			Children: []SeedMenu{{Name: "users", Path: "/system/user"}},
		}},
	}

	require.NoError(t, Seed(ctx, s, seed, nil))
	require.NoError(t, Seed(ctx, s, seed, nil))

	users, total, err := s.ListUsers(ctx, UserFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsSuperuser)
	assert.NotEqual(t, "changeme", users[0].PasswordHash)

	role, err := s.GetRoleByName(ctx, "ops")
	require.NoError(t, err)
	ids, err := s.AgentIDsOfRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	menus, err := s.ListMenus(ctx)
	require.NoError(t, err)
	assert.Len(t, menus, 2)
	var child *Menu
	for _, m := range menus {
		if m.Name == "users" {
			child = m
		}
	}
	require.NotNil(t, child)
	assert.NotZero(t, child.ParentID)
}
