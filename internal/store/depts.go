// ABOUTME: Department entity store methods
// ABOUTME: Departments form a tree via parent_id with a sort order

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const deptColumns = "id, name, description, parent_id, sort_order, created_at, updated_at"

// CreateDept inserts a new department and populates its ID.
func (s *SQLiteStore) CreateDept(ctx context.Context, dept *Dept) error {
	now := time.Now()
	dept.CreatedAt = now
	dept.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO depts (name, description, parent_id, sort_order, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		dept.Name, dept.Desc, dept.ParentID, dept.Order, encodeTime(now), encodeTime(now))
	if err != nil {
		return fmt.Errorf("creating dept: %w", err)
	}
	dept.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading dept id: %w", err)
	}
	return nil
}

// GetDept fetches a department by ID.
func (s *SQLiteStore) GetDept(ctx context.Context, id int64) (*Dept, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+deptColumns+" FROM depts WHERE id = ?", id)
	return scanDept(row)
}

// ListDepts returns a page of departments matching the filter plus the total.
func (s *SQLiteStore) ListDepts(ctx context.Context, filter DeptFilter) ([]*Dept, int64, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.Name != "" {
		where += " AND name LIKE ?"
		args = append(args, "%"+filter.Name+"%")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM depts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting depts: %w", err)
	}

	page, size := filter.Normalize()
	args = append(args, size, (page-1)*size)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+deptColumns+" FROM depts"+where+" ORDER BY sort_order, id LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing depts: %w", err)
	}
	defer rows.Close()

	var depts []*Dept
	for rows.Next() {
		d, err := scanDept(rows)
		if err != nil {
			return nil, 0, err
		}
		depts = append(depts, d)
	}
	return depts, total, rows.Err()
}

// UpdateDept updates a department's fields.
func (s *SQLiteStore) UpdateDept(ctx context.Context, dept *Dept) error {
	dept.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		"UPDATE depts SET name = ?, description = ?, parent_id = ?, sort_order = ?, updated_at = ? WHERE id = ?",
		dept.Name, dept.Desc, dept.ParentID, dept.Order, encodeTime(dept.UpdatedAt), dept.ID)
	if err != nil {
		return fmt.Errorf("updating dept: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteDept removes a department.
func (s *SQLiteStore) DeleteDept(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM depts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting dept: %w", err)
	}
	return requireRowAffected(res)
}

func scanDept(row rowScanner) (*Dept, error) {
	var d Dept
	var createdAt, updatedAt string
	err := row.Scan(&d.ID, &d.Name, &d.Desc, &d.ParentID, &d.Order, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning dept: %w", err)
	}
	d.CreatedAt = decodeTime(createdAt)
	d.UpdatedAt = decodeTime(updatedAt)
	return &d, nil
}
