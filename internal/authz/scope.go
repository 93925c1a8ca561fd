// ABOUTME: Three-state agent visibility scope resolved from a user's roles
// ABOUTME: Distinguishes unrestricted access from an empty grant set

package authz

// scopeKind discriminates the three Scope states.
type scopeKind int

const (
	scopeUnrestricted scopeKind = iota
	scopeRestricted
	scopeNone
)

// Scope describes which agents a user may see and talk to. The three
// states are explicit so "no grants" can never be confused with "all
// agents": superusers get Unrestricted, users whose roles grant agents
// get Restricted, and users with no roles or no agent grants get
// NoAccess.
type Scope struct {
	kind scopeKind
	ids  map[int64]bool
}

// Unrestricted is the superuser scope: every agent is visible.
func Unrestricted() Scope {
	return Scope{kind: scopeUnrestricted}
}

// Restricted limits visibility to the given agent IDs. An empty set
// collapses to NoAccess.
func Restricted(ids []int64) Scope {
	if len(ids) == 0 {
		return NoAccess()
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return Scope{kind: scopeRestricted, ids: set}
}

// NoAccess is the scope of a user with no agent grants: nothing is
// visible.
func NoAccess() Scope {
	return Scope{kind: scopeNone}
}

// IsUnrestricted reports whether every agent is in scope.
func (s Scope) IsUnrestricted() bool { return s.kind == scopeUnrestricted }

// Allows reports whether the agent with the given ID is in scope.
func (s Scope) Allows(id int64) bool {
	switch s.kind {
	case scopeUnrestricted:
		return true
	case scopeRestricted:
		return s.ids[id]
	default:
		return false
	}
}

// FilterIDs converts the scope into a store listing filter: nil means no
// restriction, a non-nil slice (possibly empty) restricts the listing to
// exactly those IDs.
func (s Scope) FilterIDs() []int64 {
	switch s.kind {
	case scopeUnrestricted:
		return nil
	case scopeRestricted:
		ids := make([]int64, 0, len(s.ids))
		for id := range s.ids {
			ids = append(ids, id)
		}
		return ids
	default:
		return []int64{}
	}
}
