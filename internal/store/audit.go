// ABOUTME: Audit log store methods
// ABOUTME: Audit entries are append-only; listing is newest-first

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertAuditLog appends one audit entry. A missing ID or timestamp is
// filled in here so callers can pass a bare record.
func (s *SQLiteStore) InsertAuditLog(ctx context.Context, entry *AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, username, module, method, path, status, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Username, entry.Module, entry.Method,
		entry.Path, entry.Status, entry.LatencyMS, encodeTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns audit entries newest-first along with the total
// count for the filter.
func (s *SQLiteStore) ListAuditLogs(ctx context.Context, filter AuditLogFilter) ([]*AuditLog, int64, error) {
	where := " WHERE 1=1"
	var args []any
	if filter.Username != "" {
		where += " AND username LIKE ?"
		args = append(args, "%"+filter.Username+"%")
	}
	if filter.Module != "" {
		where += " AND module = ?"
		args = append(args, filter.Module)
	}
	if filter.Method != "" {
		where += " AND method = ?"
		args = append(args, filter.Method)
	}
	if filter.Path != "" {
		where += " AND path LIKE ?"
		args = append(args, "%"+filter.Path+"%")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit logs: %w", err)
	}

	page, size := filter.Normalize()
	query := "SELECT id, user_id, username, module, method, path, status, latency_ms, created_at FROM audit_logs" +
		where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, size, (page-1)*size)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*AuditLog
	for rows.Next() {
		var e AuditLog
		var createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Username, &e.Module, &e.Method,
			&e.Path, &e.Status, &e.LatencyMS, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit log: %w", err)
		}
		e.CreatedAt = decodeTime(createdAt)
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}
