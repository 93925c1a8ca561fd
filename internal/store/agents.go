// ABOUTME: Agent registration store methods
// ABOUTME: Listing supports an optional ID restriction used by agent scoping

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const agentColumns = "id, name, endpoint, description, is_active, created_at, updated_at"

// CreateAgent inserts a new agent registration and populates its ID.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	now := time.Now()
	agent.CreatedAt = now
	agent.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO agents (name, endpoint, description, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		agent.Name, agent.Endpoint, agent.Desc, agent.IsActive, encodeTime(now), encodeTime(now))
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}
	agent.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading agent id: %w", err)
	}
	return nil
}

// GetAgent fetches an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, id int64) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents WHERE id = ?", id)
	return scanAgent(row)
}

// ListAgents returns a page of agents matching the filter plus the total.
// A non-nil filter.IDs restricts the listing to those agents; an empty
// non-nil slice matches nothing.
func (s *SQLiteStore) ListAgents(ctx context.Context, filter AgentFilter) ([]*Agent, int64, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.Name != "" {
		where += " AND name LIKE ?"
		args = append(args, "%"+filter.Name+"%")
	}
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return []*Agent{}, 0, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.IDs)), ",")
		where += " AND id IN (" + placeholders + ")"
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM agents"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting agents: %w", err)
	}

	page, size := filter.Normalize()
	args = append(args, size, (page-1)*size)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+agentColumns+" FROM agents"+where+" ORDER BY id LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, 0, err
		}
		agents = append(agents, a)
	}
	return agents, total, rows.Err()
}

// UpdateAgent updates an agent's fields.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *Agent) error {
	agent.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		"UPDATE agents SET name = ?, endpoint = ?, description = ?, is_active = ?, updated_at = ? WHERE id = ?",
		agent.Name, agent.Endpoint, agent.Desc, agent.IsActive, encodeTime(agent.UpdatedAt), agent.ID)
	if err != nil {
		return fmt.Errorf("updating agent: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteAgent removes an agent and any role grants referencing it.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM agents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}
	if err := requireRowAffected(res); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM role_agents WHERE agent_id = ?", id); err != nil {
		return fmt.Errorf("clearing agent grants: %w", err)
	}
	return nil
}

func scanAgent(row rowScanner) (*Agent, error) {
	var a Agent
	var createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.Name, &a.Endpoint, &a.Desc, &a.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning agent: %w", err)
	}
	a.CreatedAt = decodeTime(createdAt)
	a.UpdatedAt = decodeTime(updatedAt)
	return &a, nil
}
