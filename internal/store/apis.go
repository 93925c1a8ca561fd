// ABOUTME: API route (permission record) store methods and route-table sync
// ABOUTME: Routes are unique by (method, path) and granted to roles by that key

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateAPIRoute inserts a new API route. Returns ErrDuplicate when the
// (method, path) pair exists.
func (s *SQLiteStore) CreateAPIRoute(ctx context.Context, route *APIRoute) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO api_routes (method, path, summary, tags) VALUES (?, ?, ?, ?)",
		route.Method, route.Path, route.Summary, route.Tags)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("api %s %s: %w", route.Method, route.Path, ErrDuplicate)
		}
		return fmt.Errorf("creating api route: %w", err)
	}
	route.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading api route id: %w", err)
	}
	return nil
}

// GetAPIRoute fetches an API route by ID.
func (s *SQLiteStore) GetAPIRoute(ctx context.Context, id int64) (*APIRoute, error) {
	var r APIRoute
	err := s.db.QueryRowContext(ctx,
		"SELECT id, method, path, summary, tags FROM api_routes WHERE id = ?", id).
		Scan(&r.ID, &r.Method, &r.Path, &r.Summary, &r.Tags)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning api route: %w", err)
	}
	return &r, nil
}

// ListAPIRoutes returns a page of routes matching the filter plus the total.
func (s *SQLiteStore) ListAPIRoutes(ctx context.Context, filter APIRouteFilter) ([]*APIRoute, int64, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.Path != "" {
		where += " AND path LIKE ?"
		args = append(args, "%"+filter.Path+"%")
	}
	if filter.Summary != "" {
		where += " AND summary LIKE ?"
		args = append(args, "%"+filter.Summary+"%")
	}
	if filter.Tags != "" {
		where += " AND tags LIKE ?"
		args = append(args, "%"+filter.Tags+"%")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_routes"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting api routes: %w", err)
	}

	page, size := filter.Normalize()
	args = append(args, size, (page-1)*size)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, method, path, summary, tags FROM api_routes"+where+" ORDER BY tags, id LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing api routes: %w", err)
	}
	defer rows.Close()

	var routes []*APIRoute
	for rows.Next() {
		var r APIRoute
		if err := rows.Scan(&r.ID, &r.Method, &r.Path, &r.Summary, &r.Tags); err != nil {
			return nil, 0, fmt.Errorf("scanning api route: %w", err)
		}
		routes = append(routes, &r)
	}
	return routes, total, rows.Err()
}

// UpdateAPIRoute updates an API route's fields.
func (s *SQLiteStore) UpdateAPIRoute(ctx context.Context, route *APIRoute) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE api_routes SET method = ?, path = ?, summary = ?, tags = ? WHERE id = ?",
		route.Method, route.Path, route.Summary, route.Tags, route.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("api %s %s: %w", route.Method, route.Path, ErrDuplicate)
		}
		return fmt.Errorf("updating api route: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteAPIRoute removes an API route and any role grants referencing it.
func (s *SQLiteStore) DeleteAPIRoute(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM api_routes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting api route: %w", err)
	}
	if err := requireRowAffected(res); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM role_apis WHERE api_id = ?", id); err != nil {
		return fmt.Errorf("clearing api grants: %w", err)
	}
	return nil
}

// SyncAPIRoutes reconciles the stored route table with the routes actually
// served. New routes are inserted, known routes get their summary/tags
// refreshed, and routes that disappeared are removed along with their
// grants. Grants keyed by surviving (method, path) pairs are preserved.
func (s *SQLiteStore) SyncAPIRoutes(ctx context.Context, routes []APIRoute) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	keep := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		keep[r.Method+" "+r.Path] = struct{}{}
		var existingID int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM api_routes WHERE method = ? AND path = ?", r.Method, r.Path).Scan(&existingID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO api_routes (method, path, summary, tags) VALUES (?, ?, ?, ?)",
				r.Method, r.Path, r.Summary, r.Tags); err != nil {
				return fmt.Errorf("inserting route %s %s: %w", r.Method, r.Path, err)
			}
		case err != nil:
			return fmt.Errorf("looking up route %s %s: %w", r.Method, r.Path, err)
		default:
			if _, err := tx.ExecContext(ctx,
				"UPDATE api_routes SET summary = ?, tags = ? WHERE id = ?",
				r.Summary, r.Tags, existingID); err != nil {
				return fmt.Errorf("updating route %s %s: %w", r.Method, r.Path, err)
			}
		}
	}

	rows, err := tx.QueryContext(ctx, "SELECT id, method, path FROM api_routes")
	if err != nil {
		return fmt.Errorf("listing stored routes: %w", err)
	}
	var stale []int64
	for rows.Next() {
		var id int64
		var method, path string
		if err := rows.Scan(&id, &method, &path); err != nil {
			rows.Close()
			return fmt.Errorf("scanning stored route: %w", err)
		}
		if _, ok := keep[method+" "+path]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating stored routes: %w", err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM api_routes WHERE id = ?", id); err != nil {
			return fmt.Errorf("removing stale route %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM role_apis WHERE api_id = ?", id); err != nil {
			return fmt.Errorf("removing stale grants %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("synchronized api routes", "routes", len(routes), "removed", len(stale))
	return nil
}
