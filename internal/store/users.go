// ABOUTME: User entity store methods including role assignment
// ABOUTME: Backs authentication lookups and the user CRUD endpoints

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = "id, username, email, password_hash, is_active, is_superuser, dept_id, last_login, created_at, updated_at"

// CreateUser inserts a new user and populates its ID. Returns ErrDuplicate
// when the username is taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	var lastLogin any
	if user.LastLogin != nil {
		lastLogin = encodeTime(*user.LastLogin)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, is_active, is_superuser, dept_id, last_login, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordHash, user.IsActive, user.IsSuperuser,
		user.DeptID, lastLogin, encodeTime(now), encodeTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", user.Username, ErrDuplicate)
		}
		return fmt.Errorf("creating user: %w", err)
	}

	user.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user id: %w", err)
	}

	s.logger.Debug("created user", "user_id", user.ID, "username", user.Username)
	return nil
}

// GetUser fetches a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

// GetUserByUsername fetches a user by its unique username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanUser(row)
}

// ListUsers returns a page of users matching the filter plus the total count.
func (s *SQLiteStore) ListUsers(ctx context.Context, filter UserFilter) ([]*User, int64, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.Username != "" {
		where += " AND username LIKE ?"
		args = append(args, "%"+filter.Username+"%")
	}
	if filter.Email != "" {
		where += " AND email LIKE ?"
		args = append(args, "%"+filter.Email+"%")
	}
	if filter.DeptID != 0 {
		where += " AND dept_id = ?"
		args = append(args, filter.DeptID)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	page, size := filter.Normalize()
	args = append(args, size, (page-1)*size)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users"+where+" ORDER BY id LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// UpdateUser updates a user's mutable fields (everything except the
// password hash and last-login, which have dedicated setters).
func (s *SQLiteStore) UpdateUser(ctx context.Context, user *User) error {
	user.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET username = ?, email = ?, is_active = ?, is_superuser = ?, dept_id = ?, updated_at = ?
		WHERE id = ?`,
		user.Username, user.Email, user.IsActive, user.IsSuperuser, user.DeptID,
		encodeTime(user.UpdatedAt), user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", user.Username, ErrDuplicate)
		}
		return fmt.Errorf("updating user: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteUser removes a user and its role assignments.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if err := requireRowAffected(res); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id = ?", id); err != nil {
		return fmt.Errorf("deleting user roles: %w", err)
	}
	return nil
}

// SetUserPassword replaces a user's password hash.
func (s *SQLiteStore) SetUserPassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
		passwordHash, encodeTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("setting password: %w", err)
	}
	return requireRowAffected(res)
}

// UpdateLastLogin records a successful authentication.
func (s *SQLiteStore) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE users SET last_login = ? WHERE id = ?", encodeTime(at), id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// SetUserRoles replaces a user's role assignments with the given set.
func (s *SQLiteStore) SetUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clearing user roles: %w", err)
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO user_roles (user_id, role_id) VALUES (?, ?)", userID, roleID); err != nil {
			return fmt.Errorf("assigning role %d: %w", roleID, err)
		}
	}
	return tx.Commit()
}

// RolesOfUser returns all roles assigned to a user. A user with no roles
// gets an empty slice, not an error.
func (s *SQLiteStore) RolesOfUser(ctx context.Context, userID int64) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = ? ORDER BY r.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing user roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var lastLogin sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive,
		&u.IsSuperuser, &u.DeptID, &lastLogin, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	if lastLogin.Valid {
		t := decodeTime(lastLogin.String)
		u.LastLogin = &t
	}
	u.CreatedAt = decodeTime(createdAt)
	u.UpdatedAt = decodeTime(updatedAt)
	return &u, nil
}

// requireRowAffected converts a zero-row update/delete into ErrNotFound.
func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
