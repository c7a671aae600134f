// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/internal/auth"
)

const userColumns = `id, email, password_hash, is_active, is_staff, is_superuser, date_joined, deleted_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
// Email uniqueness among non-deleted users is enforced by a partial unique
// index.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user and assigns its ID.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, is_active, is_staff, is_superuser, date_joined)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, user.Email, user.PasswordHash, user.IsActive, user.IsStaff, user.IsSuperuser, user.DateJoined).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code(auth.CodeDuplicateEmail).
				With("email", user.Email).
				Wrap(auth.ErrDuplicateEmail)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID, including soft-deleted users.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByEmail retrieves the non-deleted user holding email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1 AND deleted_at IS NULL
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListByEmailWithDeleted returns every user registered with email, newest first.
func (r *UserRepository) ListByEmailWithDeleted(ctx context.Context, email string) ([]*auth.User, error) {
	return r.list(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
		ORDER BY id DESC
	`, email)
}

// ListDeletedByEmail returns soft-deleted users registered with email, newest first.
func (r *UserRepository) ListDeletedByEmail(ctx context.Context, email string) ([]*auth.User, error) {
	return r.list(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1 AND deleted_at IS NOT NULL
		ORDER BY id DESC
	`, email)
}

// UpdatePassword replaces the password hash of a non-deleted user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash *string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, passwordHash)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetActive updates the is_active flag of a non-deleted user.
func (r *UserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET is_active = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, active)
	if err != nil {
		return oops.Code("USER_SET_ACTIVE_FAILED").
			With("operation", "update is_active").
			With("user_id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

// SoftDelete stamps deleted_at and clears is_active.
func (r *UserRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET deleted_at = $2, is_active = FALSE
		WHERE id = $1
	`, id, at)
	if err != nil {
		return oops.Code("USER_SOFT_DELETE_FAILED").
			With("operation", "soft delete user").
			With("user_id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

func (r *UserRepository) list(ctx context.Context, query, email string) ([]*auth.User, error) {
	rows, err := r.pool.Query(ctx, query, email)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "query users by email").
			With("email", email).
			Wrap(err)
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "iterate users").
			With("email", email).
			Wrap(err)
	}
	return users, nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var user auth.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsStaff,
		&user.IsSuperuser,
		&user.DateJoined,
		&user.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}
	return &user, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
