// ABOUTME: Role-based permission resolver backed by the store's grant tables
// ABOUTME: Caches per-user grants in an expiring LRU invalidated on role writes

package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lanternops/agentadmin/internal/auth"
	"github.com/lanternops/agentadmin/internal/store"
)

// ErrNoRoles is returned when a non-superuser with zero roles attempts
// any permission-checked operation.
var ErrNoRoles = errors.New("user is not bound to a role")

// ErrDenied is returned when none of the user's granted routes match the
// attempted request.
var ErrDenied = errors.New("permission denied")

// GrantSource provides the role grants the resolver works from.
// Satisfied by store.Store.
type GrantSource interface {
	RolesOfUser(ctx context.Context, userID int64) ([]*store.Role, error)
	APIsOfRole(ctx context.Context, roleID int64) ([]*store.APIRoute, error)
	AgentIDsOfRole(ctx context.Context, roleID int64) ([]int64, error)
}

// userGrants is a resolved snapshot of one user's permissions.
type userGrants struct {
	hasRoles bool
	apis     []store.APIRef
	agentIDs []int64
}

const (
	cacheSize = 1024
	cacheTTL  = 30 * time.Second
)

// Resolver answers "may this user perform this request" from role
// grants. Superusers bypass every check. Resolved grants are cached
// briefly per user; mutating endpoints call Invalidate so changes take
// effect immediately rather than at TTL expiry.
type Resolver struct {
	source GrantSource
	logger *slog.Logger
	cache  *expirable.LRU[int64, *userGrants]
}

// NewResolver creates a resolver over the given grant source.
func NewResolver(source GrantSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		source: source,
		logger: logger.With("component", "authz"),
		cache:  expirable.NewLRU[int64, *userGrants](cacheSize, nil, cacheTTL),
	}
}

// Authorize checks whether the identity may perform method on path.
// Returns nil when allowed; ErrNoRoles or an ErrDenied-wrapping error
// otherwise. A path segment never partially matches: /agents/{id} does
// not authorize /agents/42/extra.
func (r *Resolver) Authorize(ctx context.Context, id *auth.Identity, method, path string) error {
	if id.IsSuperuser {
		return nil
	}

	grants, err := r.grantsFor(ctx, id.ID)
	if err != nil {
		return err
	}
	if !grants.hasRoles {
		return ErrNoRoles
	}

	for _, api := range grants.apis {
		if api.Method != method {
			continue
		}
		if MatchTemplate(api.Path, path) {
			return nil
		}
	}

	r.logger.Debug("denied", "user_id", id.ID, "method", method, "path", path)
	return fmt.Errorf("%w method:%s path:%s", ErrDenied, method, path)
}

// AgentScope resolves the identity's agent visibility. Superusers are
// Unrestricted; everyone else sees the union of their roles' agent
// grants, which may be empty (NoAccess).
func (r *Resolver) AgentScope(ctx context.Context, id *auth.Identity) (Scope, error) {
	if id.IsSuperuser {
		return Unrestricted(), nil
	}

	grants, err := r.grantsFor(ctx, id.ID)
	if err != nil {
		return NoAccess(), err
	}
	if !grants.hasRoles {
		return NoAccess(), nil
	}
	return Restricted(grants.agentIDs), nil
}

// Invalidate drops the cached grants for one user.
func (r *Resolver) Invalidate(userID int64) {
	r.cache.Remove(userID)
}

// InvalidateAll drops every cached grant snapshot. Called after role or
// grant mutations, which can affect any number of users.
func (r *Resolver) InvalidateAll() {
	r.cache.Purge()
}

func (r *Resolver) grantsFor(ctx context.Context, userID int64) (*userGrants, error) {
	if cached, ok := r.cache.Get(userID); ok {
		return cached, nil
	}

	roles, err := r.source.RolesOfUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving roles: %w", err)
	}

	grants := &userGrants{hasRoles: len(roles) > 0}
	seenAPI := make(map[string]bool)
	seenAgent := make(map[int64]bool)
	for _, role := range roles {
		apis, err := r.source.APIsOfRole(ctx, role.ID)
		if err != nil {
			return nil, fmt.Errorf("resolving role %d apis: %w", role.ID, err)
		}
		for _, api := range apis {
			key := api.Method + " " + api.Path
			if seenAPI[key] {
				continue
			}
			seenAPI[key] = true
			grants.apis = append(grants.apis, store.APIRef{Method: api.Method, Path: api.Path})
		}

		agentIDs, err := r.source.AgentIDsOfRole(ctx, role.ID)
		if err != nil {
			return nil, fmt.Errorf("resolving role %d agents: %w", role.ID, err)
		}
		for _, id := range agentIDs {
			if seenAgent[id] {
				continue
			}
			seenAgent[id] = true
			grants.agentIDs = append(grants.agentIDs, id)
		}
	}

	r.cache.Add(userID, grants)
	return grants, nil
}
