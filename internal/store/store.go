// ABOUTME: Store interface and entity types for agentadmin persistence
// ABOUTME: Defines users, roles, API routes, agents, depts, menus, and audit logs

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a uniqueness constraint would be violated.
var ErrDuplicate = errors.New("already exists")

// User is an administrative account. Inactive users fail authentication;
// superusers bypass all permission checks.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	IsSuperuser  bool
	DeptID       int64 // 0 when unassigned
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role is the sole unit of permission grant. A user with zero roles has
// zero non-superuser permissions.
type Role struct {
	ID        int64
	Name      string
	Desc      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// APIRoute is a permission record: one (method, path template) pair,
// unique by that pair. Path templates may contain {name} placeholders that
// match exactly one path segment.
type APIRoute struct {
	ID      int64
	Method  string
	Path    string
	Summary string
	Tags    string
}

// APIRef identifies an APIRoute by its natural key. Used when granting
// routes to roles so grants survive a route-table resync.
type APIRef struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Agent is a registered agent runtime endpoint.
type Agent struct {
	ID        int64
	Name      string
	Endpoint  string
	Desc      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Dept is an organizational unit. ParentID 0 marks a root department.
type Dept struct {
	ID        int64
	Name      string
	Desc      string
	ParentID  int64
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Menu types.
const (
	MenuTypeCatalog = "catalog"
	MenuTypeMenu    = "menu"
)

// Menu is a navigation entry managed for the frontend. The server only
// stores and serves these records; rendering is the frontend's concern.
type Menu struct {
	ID        int64
	MenuType  string
	Name      string
	Path      string
	Component string
	Icon      string
	Order     int
	ParentID  int64
	IsHidden  bool
	Redirect  string
	Keepalive bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FileMapping records one uploaded file: the generated file ID, the name
// the client sent, and where the bytes landed on disk.
type FileMapping struct {
	ID           string
	OriginalName string
	FileType     string
	FileSize     int64
	FilePath     string
	UserID       int64
	CreatedAt    time.Time
}

// AuditLog records one handled API request for the audit trail.
type AuditLog struct {
	ID        string
	UserID    int64
	Username  string
	Module    string
	Method    string
	Path      string
	Status    int
	LatencyMS int64
	CreatedAt time.Time
}

// Page bounds a paged listing. Zero values fall back to page 1, size 10.
type Page struct {
	Page     int
	PageSize int
}

// UserFilter narrows a user listing.
type UserFilter struct {
	Page
	Username string
	Email    string
	DeptID   int64
}

// RoleFilter narrows a role listing.
type RoleFilter struct {
	Page
	Name string
}

// APIRouteFilter narrows an API route listing.
type APIRouteFilter struct {
	Page
	Path    string
	Summary string
	Tags    string
}

// AgentFilter narrows an agent listing. A non-nil IDs slice restricts the
// listing to those agents; nil means no restriction. An empty non-nil
// slice yields an empty result.
type AgentFilter struct {
	Page
	Name string
	IDs  []int64
}

// DeptFilter narrows a department listing.
type DeptFilter struct {
	Page
	Name string
}

// AuditLogFilter narrows an audit log listing.
type AuditLogFilter struct {
	Page
	Username string
	Module   string
	Method   string
	Path     string
}

// Store is the persistence interface consumed by the HTTP layer and the
// authorization core. The core only reads: RolesOfUser, APIsOfRole, and
// AgentIDsOfRole back the permission resolver and agent-scope filter.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]*User, int64, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id int64) error
	SetUserPassword(ctx context.Context, id int64, passwordHash string) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	SetUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
	RolesOfUser(ctx context.Context, userID int64) ([]*Role, error)

	// Roles
	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id int64) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context, filter RoleFilter) ([]*Role, int64, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, id int64) error
	SetRoleGrants(ctx context.Context, roleID int64, menuIDs []int64, apis []APIRef) error
	SetRoleAgents(ctx context.Context, roleID int64, agentIDs []int64) error
	APIsOfRole(ctx context.Context, roleID int64) ([]*APIRoute, error)
	MenusOfRole(ctx context.Context, roleID int64) ([]*Menu, error)
	AgentIDsOfRole(ctx context.Context, roleID int64) ([]int64, error)

	// API routes
	CreateAPIRoute(ctx context.Context, route *APIRoute) error
	GetAPIRoute(ctx context.Context, id int64) (*APIRoute, error)
	ListAPIRoutes(ctx context.Context, filter APIRouteFilter) ([]*APIRoute, int64, error)
	UpdateAPIRoute(ctx context.Context, route *APIRoute) error
	DeleteAPIRoute(ctx context.Context, id int64) error
	SyncAPIRoutes(ctx context.Context, routes []APIRoute) error

	// Agents
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id int64) (*Agent, error)
	ListAgents(ctx context.Context, filter AgentFilter) ([]*Agent, int64, error)
	UpdateAgent(ctx context.Context, agent *Agent) error
	DeleteAgent(ctx context.Context, id int64) error

	// Departments
	CreateDept(ctx context.Context, dept *Dept) error
	GetDept(ctx context.Context, id int64) (*Dept, error)
	ListDepts(ctx context.Context, filter DeptFilter) ([]*Dept, int64, error)
	UpdateDept(ctx context.Context, dept *Dept) error
	DeleteDept(ctx context.Context, id int64) error

	// Menus
	CreateMenu(ctx context.Context, menu *Menu) error
	GetMenu(ctx context.Context, id int64) (*Menu, error)
	ListMenus(ctx context.Context) ([]*Menu, error)
	UpdateMenu(ctx context.Context, menu *Menu) error
	DeleteMenu(ctx context.Context, id int64) error

	// Files
	CreateFileMapping(ctx context.Context, mapping *FileMapping) error
	GetFileMapping(ctx context.Context, fileID string) (*FileMapping, error)

	// Audit
	InsertAuditLog(ctx context.Context, entry *AuditLog) error
	ListAuditLogs(ctx context.Context, filter AuditLogFilter) ([]*AuditLog, int64, error)

	Close() error
}

// Normalize applies the paging defaults.
func (p Page) Normalize() (page, size int) {
	page, size = p.Page, p.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	return page, size
}
