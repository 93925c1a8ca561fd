// ABOUTME: Role entity store methods and role-to-grant associations
// ABOUTME: Grants cover API routes, menus, and agent access per role

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateRole inserts a new role and populates its ID. Returns ErrDuplicate
// when the name is taken.
func (s *SQLiteStore) CreateRole(ctx context.Context, role *Role) error {
	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO roles (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)",
		role.Name, role.Desc, encodeTime(now), encodeTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("role %q: %w", role.Name, ErrDuplicate)
		}
		return fmt.Errorf("creating role: %w", err)
	}
	role.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading role id: %w", err)
	}
	return nil
}

// GetRole fetches a role by ID.
func (s *SQLiteStore) GetRole(ctx context.Context, id int64) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, created_at, updated_at FROM roles WHERE id = ?", id)
	return scanRole(row)
}

// GetRoleByName fetches a role by its unique name.
func (s *SQLiteStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, created_at, updated_at FROM roles WHERE name = ?", name)
	return scanRole(row)
}

// ListRoles returns a page of roles matching the filter plus the total count.
func (s *SQLiteStore) ListRoles(ctx context.Context, filter RoleFilter) ([]*Role, int64, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.Name != "" {
		where += " AND name LIKE ?"
		args = append(args, "%"+filter.Name+"%")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM roles"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting roles: %w", err)
	}

	page, size := filter.Normalize()
	args = append(args, size, (page-1)*size)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, description, created_at, updated_at FROM roles"+where+" ORDER BY id LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, 0, err
		}
		roles = append(roles, r)
	}
	return roles, total, rows.Err()
}

// UpdateRole updates a role's name and description.
func (s *SQLiteStore) UpdateRole(ctx context.Context, role *Role) error {
	role.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		"UPDATE roles SET name = ?, description = ?, updated_at = ? WHERE id = ?",
		role.Name, role.Desc, encodeTime(role.UpdatedAt), role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("role %q: %w", role.Name, ErrDuplicate)
		}
		return fmt.Errorf("updating role: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteRole removes a role and every association that referenced it.
func (s *SQLiteStore) DeleteRole(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting role: %w", err)
	}
	if err := requireRowAffected(res); err != nil {
		return err
	}
	for _, table := range []string{"user_roles", "role_apis", "role_menus", "role_agents"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE role_id = ?", id); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

// SetRoleGrants replaces a role's menu and API grants. API grants are
// resolved by (method, path) so a grant list survives route-table resyncs;
// unknown refs are skipped.
func (s *SQLiteStore) SetRoleGrants(ctx context.Context, roleID int64, menuIDs []int64, apis []APIRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM role_menus WHERE role_id = ?", roleID); err != nil {
		return fmt.Errorf("clearing role menus: %w", err)
	}
	for _, menuID := range menuIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO role_menus (role_id, menu_id) VALUES (?, ?)", roleID, menuID); err != nil {
			return fmt.Errorf("granting menu %d: %w", menuID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM role_apis WHERE role_id = ?", roleID); err != nil {
		return fmt.Errorf("clearing role apis: %w", err)
	}
	for _, ref := range apis {
		var apiID int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM api_routes WHERE method = ? AND path = ?", ref.Method, ref.Path).Scan(&apiID)
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("skipping unknown api grant", "method", ref.Method, "path", ref.Path)
			continue
		}
		if err != nil {
			return fmt.Errorf("resolving api %s %s: %w", ref.Method, ref.Path, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO role_apis (role_id, api_id) VALUES (?, ?)", roleID, apiID); err != nil {
			return fmt.Errorf("granting api %d: %w", apiID, err)
		}
	}
	return tx.Commit()
}

// SetRoleAgents replaces a role's agent grants with the given set.
func (s *SQLiteStore) SetRoleAgents(ctx context.Context, roleID int64, agentIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM role_agents WHERE role_id = ?", roleID); err != nil {
		return fmt.Errorf("clearing role agents: %w", err)
	}
	for _, agentID := range agentIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO role_agents (role_id, agent_id) VALUES (?, ?)", roleID, agentID); err != nil {
			return fmt.Errorf("granting agent %d: %w", agentID, err)
		}
	}
	return tx.Commit()
}

// APIsOfRole returns the API routes granted to a role.
func (s *SQLiteStore) APIsOfRole(ctx context.Context, roleID int64) ([]*APIRoute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.method, a.path, a.summary, a.tags
		FROM api_routes a JOIN role_apis ra ON ra.api_id = a.id
		WHERE ra.role_id = ? ORDER BY a.id`, roleID)
	if err != nil {
		return nil, fmt.Errorf("listing role apis: %w", err)
	}
	defer rows.Close()

	var routes []*APIRoute
	for rows.Next() {
		var r APIRoute
		if err := rows.Scan(&r.ID, &r.Method, &r.Path, &r.Summary, &r.Tags); err != nil {
			return nil, fmt.Errorf("scanning api route: %w", err)
		}
		routes = append(routes, &r)
	}
	return routes, rows.Err()
}

// MenusOfRole returns the menus granted to a role.
func (s *SQLiteStore) MenusOfRole(ctx context.Context, roleID int64) ([]*Menu, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.menu_type, m.name, m.path, m.component, m.icon, m.sort_order,
		       m.parent_id, m.is_hidden, m.redirect, m.keepalive, m.created_at, m.updated_at
		FROM menus m JOIN role_menus rm ON rm.menu_id = m.id
		WHERE rm.role_id = ? ORDER BY m.sort_order, m.id`, roleID)
	if err != nil {
		return nil, fmt.Errorf("listing role menus: %w", err)
	}
	defer rows.Close()

	var menus []*Menu
	for rows.Next() {
		m, err := scanMenu(rows)
		if err != nil {
			return nil, err
		}
		menus = append(menus, m)
	}
	return menus, rows.Err()
}

// AgentIDsOfRole returns the IDs of agents granted to a role.
func (s *SQLiteStore) AgentIDsOfRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT agent_id FROM role_agents WHERE role_id = ? ORDER BY agent_id", roleID)
	if err != nil {
		return nil, fmt.Errorf("listing role agents: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning agent id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanRole(row rowScanner) (*Role, error) {
	var r Role
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.Name, &r.Desc, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning role: %w", err)
	}
	r.CreatedAt = decodeTime(createdAt)
	r.UpdatedAt = decodeTime(updatedAt)
	return &r, nil
}
