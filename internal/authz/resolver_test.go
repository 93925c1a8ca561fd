// ABOUTME: Tests for the permission resolver and agent scope resolution
// ABOUTME: Uses the in-memory store as the grant source

package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternops/agentadmin/internal/auth"
	"github.com/lanternops/agentadmin/internal/store"
)

type fixture struct {
	mem      *store.MemoryStore
	resolver *Resolver
	user     *store.User
	role     *store.Role
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	ctx := context.Background()

	user := &store.User{Username: "worker", PasswordHash: "h", IsActive: true}
	require.NoError(t, mem.CreateUser(ctx, user))
	role := &store.Role{Name: "operator"}
	require.NoError(t, mem.CreateRole(ctx, role))
	require.NoError(t, mem.SetUserRoles(ctx, user.ID, []int64{role.ID}))

	return &fixture{mem: mem, resolver: NewResolver(mem, nil), user: user, role: role}
}

func (f *fixture) identity() *auth.Identity {
	return &auth.Identity{ID: f.user.ID, Username: f.user.Username}
}

func (f *fixture) grantAPI(t *testing.T, method, path string) {
	t.Helper()
	ctx := context.Background()
	err := f.mem.CreateAPIRoute(ctx, &store.APIRoute{Method: method, Path: path})
	require.NoError(t, err)
	apis, err := f.mem.APIsOfRole(ctx, f.role.ID)
	require.NoError(t, err)
	refs := make([]store.APIRef, 0, len(apis)+1)
	for _, a := range apis {
		refs = append(refs, store.APIRef{Method: a.Method, Path: a.Path})
	}
	refs = append(refs, store.APIRef{Method: method, Path: path})
	require.NoError(t, f.mem.SetRoleGrants(ctx, f.role.ID, nil, refs))
	f.resolver.InvalidateAll()
}

func TestAuthorizeSuperuserBypasses(t *testing.T) {
	f := newFixture(t)
	super := &auth.Identity{ID: 999, Username: "root", IsSuperuser: true}
	assert.NoError(t, f.resolver.Authorize(context.Background(), super, "DELETE", "/api/v1/anything"))
}

func TestAuthorizeNoRoles(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mem.SetUserRoles(context.Background(), f.user.ID, nil))
	f.resolver.InvalidateAll()

	err := f.resolver.Authorize(context.Background(), f.identity(), "GET", "/api/v1/user/list")
	assert.ErrorIs(t, err, ErrNoRoles)
}

func TestAuthorizeGrantedRoute(t *testing.T) {
	f := newFixture(t)
	f.grantAPI(t, "GET", "/api/v1/user/list")

	ctx := context.Background()
	assert.NoError(t, f.resolver.Authorize(ctx, f.identity(), "GET", "/api/v1/user/list"))

	err := f.resolver.Authorize(ctx, f.identity(), "POST", "/api/v1/user/list")
	assert.ErrorIs(t, err, ErrDenied)

	err = f.resolver.Authorize(ctx, f.identity(), "GET", "/api/v1/role/list")
	require.ErrorIs(t, err, ErrDenied)
	assert.Contains(t, err.Error(), "method:GET")
	assert.Contains(t, err.Error(), "path:/api/v1/role/list")
}

func TestAuthorizeTemplateGrant(t *testing.T) {
	f := newFixture(t)
	f.grantAPI(t, "POST", "/api/v1/agents/{id}/chat")

	ctx := context.Background()
	assert.NoError(t, f.resolver.Authorize(ctx, f.identity(), "POST", "/api/v1/agents/42/chat"))

	err := f.resolver.Authorize(ctx, f.identity(), "POST", "/api/v1/agents/42/chat/extra")
	assert.ErrorIs(t, err, ErrDenied)

	err = f.resolver.Authorize(ctx, f.identity(), "POST", "/api/v1/agents/chat")
	assert.ErrorIs(t, err, ErrDenied)
}

func TestAuthorizeUnionAcrossRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	second := &store.Role{Name: "reporter"}
	require.NoError(t, f.mem.CreateRole(ctx, second))
	require.NoError(t, f.mem.CreateAPIRoute(ctx, &store.APIRoute{Method: "GET", Path: "/api/v1/auditlog/list"}))
	require.NoError(t, f.mem.SetRoleGrants(ctx, second.ID, nil,
		[]store.APIRef{{Method: "GET", Path: "/api/v1/auditlog/list"}}))
	require.NoError(t, f.mem.SetUserRoles(ctx, f.user.ID, []int64{f.role.ID, second.ID}))

	f.grantAPI(t, "GET", "/api/v1/user/list")

	assert.NoError(t, f.resolver.Authorize(ctx, f.identity(), "GET", "/api/v1/user/list"))
	assert.NoError(t, f.resolver.Authorize(ctx, f.identity(), "GET", "/api/v1/auditlog/list"))
}

func TestAgentScopeResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	super := &auth.Identity{ID: 999, Username: "root", IsSuperuser: true}
	scope, err := f.resolver.AgentScope(ctx, super)
	require.NoError(t, err)
	assert.True(t, scope.IsUnrestricted())

	// role with no agent grants: NoAccess, never all-access
	scope, err = f.resolver.AgentScope(ctx, f.identity())
	require.NoError(t, err)
	assert.False(t, scope.IsUnrestricted())
	assert.False(t, scope.Allows(1))

	agent := &store.Agent{Name: "helper", IsActive: true}
	require.NoError(t, f.mem.CreateAgent(ctx, agent))
	require.NoError(t, f.mem.SetRoleAgents(ctx, f.role.ID, []int64{agent.ID}))
	f.resolver.InvalidateAll()

	scope, err = f.resolver.AgentScope(ctx, f.identity())
	require.NoError(t, err)
	assert.True(t, scope.Allows(agent.ID))
	assert.False(t, scope.Allows(agent.ID+1))
}

func TestInvalidateDropsStaleGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grantAPI(t, "GET", "/api/v1/user/list")

	// warm the cache
	require.NoError(t, f.resolver.Authorize(ctx, f.identity(), "GET", "/api/v1/user/list"))

	// revoke and invalidate: the next check must see the new grants
	require.NoError(t, f.mem.SetRoleGrants(ctx, f.role.ID, nil, nil))
	f.resolver.Invalidate(f.user.ID)

	err := f.resolver.Authorize(ctx, f.identity(), "GET", "/api/v1/user/list")
	assert.ErrorIs(t, err, ErrDenied)
}
