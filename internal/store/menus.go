// ABOUTME: Menu entity store methods
// ABOUTME: Menus are stored flat; the frontend assembles the tree from parent_id

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const menuColumns = "id, menu_type, name, path, component, icon, sort_order, parent_id, is_hidden, redirect, keepalive, created_at, updated_at"

// ErrHasChildren is returned when deleting a menu that still has children.
var ErrHasChildren = errors.New("menu has child menus")

// CreateMenu inserts a new menu and populates its ID.
func (s *SQLiteStore) CreateMenu(ctx context.Context, menu *Menu) error {
	now := time.Now()
	menu.CreatedAt = now
	menu.UpdatedAt = now
	if menu.MenuType == "" {
		menu.MenuType = MenuTypeMenu
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO menus (menu_type, name, path, component, icon, sort_order, parent_id, is_hidden, redirect, keepalive, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		menu.MenuType, menu.Name, menu.Path, menu.Component, menu.Icon, menu.Order,
		menu.ParentID, menu.IsHidden, menu.Redirect, menu.Keepalive, encodeTime(now), encodeTime(now))
	if err != nil {
		return fmt.Errorf("creating menu: %w", err)
	}
	menu.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading menu id: %w", err)
	}
	return nil
}

// GetMenu fetches a menu by ID.
func (s *SQLiteStore) GetMenu(ctx context.Context, id int64) (*Menu, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+menuColumns+" FROM menus WHERE id = ?", id)
	return scanMenu(row)
}

// ListMenus returns all menus ordered by sort order then ID.
func (s *SQLiteStore) ListMenus(ctx context.Context) ([]*Menu, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+menuColumns+" FROM menus ORDER BY sort_order, id")
	if err != nil {
		return nil, fmt.Errorf("listing menus: %w", err)
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

// UpdateMenu updates a menu's fields.
func (s *SQLiteStore) UpdateMenu(ctx context.Context, menu *Menu) error {
	menu.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE menus SET menu_type = ?, name = ?, path = ?, component = ?, icon = ?, sort_order = ?,
		       parent_id = ?, is_hidden = ?, redirect = ?, keepalive = ?, updated_at = ?
		WHERE id = ?`,
		menu.MenuType, menu.Name, menu.Path, menu.Component, menu.Icon, menu.Order,
		menu.ParentID, menu.IsHidden, menu.Redirect, menu.Keepalive, encodeTime(menu.UpdatedAt), menu.ID)
	if err != nil {
		return fmt.Errorf("updating menu: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteMenu removes a menu. Menus with children are refused with
// ErrHasChildren so the tree never dangles.
func (s *SQLiteStore) DeleteMenu(ctx context.Context, id int64) error {
	var children int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM menus WHERE parent_id = ?", id).Scan(&children); err != nil {
		return fmt.Errorf("counting child menus: %w", err)
	}
	if children > 0 {
		return ErrHasChildren
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM menus WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting menu: %w", err)
	}
	if err := requireRowAffected(res); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM role_menus WHERE menu_id = ?", id); err != nil {
		return fmt.Errorf("clearing menu grants: %w", err)
	}
	return nil
}

func scanMenu(row rowScanner) (*Menu, error) {
	var m Menu
	var createdAt, updatedAt string
	err := row.Scan(&m.ID, &m.MenuType, &m.Name, &m.Path, &m.Component, &m.Icon, &m.Order,
		&m.ParentID, &m.IsHidden, &m.Redirect, &m.Keepalive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning menu: %w", err)
	}
	m.CreatedAt = decodeTime(createdAt)
	m.UpdatedAt = decodeTime(updatedAt)
	return &m, nil
}
