// ABOUTME: File mapping store methods
// ABOUTME: Maps generated file IDs to the original name, size, and disk path

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateFileMapping records one uploaded file. A missing ID or timestamp
// is filled in here so callers can pass a bare record.
func (s *SQLiteStore) CreateFileMapping(ctx context.Context, mapping *FileMapping) error {
	if mapping.ID == "" {
		mapping.ID = uuid.NewString()
	}
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_mappings (id, original_name, file_type, file_size, file_path, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mapping.ID, mapping.OriginalName, mapping.FileType, mapping.FileSize,
		mapping.FilePath, mapping.UserID, encodeTime(mapping.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting file mapping: %w", err)
	}
	return nil
}

// GetFileMapping looks up one file record by its generated ID.
func (s *SQLiteStore) GetFileMapping(ctx context.Context, fileID string) (*FileMapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, original_name, file_type, file_size, file_path, user_id, created_at
		FROM file_mappings WHERE id = ?`, fileID)

	var m FileMapping
	var createdAt string
	err := row.Scan(&m.ID, &m.OriginalName, &m.FileType, &m.FileSize,
		&m.FilePath, &m.UserID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning file mapping: %w", err)
	}
	m.CreatedAt = decodeTime(createdAt)
	return &m, nil
}
