// Package store persists agentadmin's administrative entities: users,
// roles, menus, API permission records, agents, departments, and audit
// logs.
//
// The Store interface is the single persistence seam. SQLiteStore is the
// production backend (modernc.org/sqlite, WAL mode, RFC3339 timestamps);
// MemoryStore mirrors its semantics for tests. Grant tables (user_roles,
// role_apis, role_menus, role_agents) are maintained alongside their
// owning entities, so deleting a role or route also removes its grants.
package store
