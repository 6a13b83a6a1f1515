package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lavariyalabs/snapy/internal/domain"
)

// CreateUser validates u, assigns an id if it has none and stores it with
// at as its update time.
func (db *DB) CreateUser(ctx context.Context, u *domain.User, at time.Time) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = at
	}
	u.UpdatedAt = at

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (id, name, language, grade_id, preferred_subject_id, created_at, updated_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Name, u.Language, nullInt64(u.GradeID), nullInt64(u.PreferredSubjectID),
		utc(u.CreatedAt), utc(u.UpdatedAt), nullTime(u.LastLogin))
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", u.ID, classify(err))
	}
	return nil
}

const userColumns = `id, name, language, grade_id, preferred_subject_id, created_at, updated_at, last_login`

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u         domain.User
		grade     sql.NullInt64
		subject   sql.NullInt64
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Language, &grade, &subject, &u.CreatedAt, &u.UpdatedAt, &lastLogin); err != nil {
		return u, err
	}
	if grade.Valid {
		u.GradeID = &grade.Int64
	}
	if subject.Valid {
		u.PreferredSubjectID = &subject.Int64
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return u, nil
}

// GetUser retrieves a user by id.
func (db *DB) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, classify(err))
	}
	return &u, nil
}

// ListUsers retrieves all users ordered by creation time.
func (db *DB) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", classify(err))
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// TouchLogin stamps the user's last login.
func (db *DB) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`, utc(at), utc(at), id)
	if err != nil {
		return fmt.Errorf("failed to update last login for user %s: %w", id, classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}
