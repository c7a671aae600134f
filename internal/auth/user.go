// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
)

// User represents an account that can authenticate.
type User struct {
	ID int64
	// Email is stored lowercased. It is unique among non-deleted users only.
	Email string
	// PasswordHash is nil when the account has no usable password.
	PasswordHash *string
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	DateJoined   time.Time
	DeletedAt    *time.Time
}

// IsDeleted reports whether the user has been soft-deleted.
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// HasUsablePassword reports whether a password check can ever succeed.
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// CanAuthenticate reports whether the account is reachable by active lookups.
func (u *User) CanAuthenticate() bool {
	return u.IsActive && !u.IsDeleted()
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes email and rejects empty values.
func ValidateEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", oops.Code(CodeInvalidEmail).Wrap(ErrInvalidEmail)
	}
	return normalized, nil
}

// UserRepository manages user persistence.
//
// Lookups come in three explicit modes: GetByEmail only sees non-deleted
// users, ListByEmailWithDeleted sees every record, ListDeletedByEmail sees
// soft-deleted records only.
type UserRepository interface {
	// Create stores a new user and assigns its ID.
	// Returns ErrDuplicateEmail if a non-deleted user already holds the email.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID, including soft-deleted users.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByEmail retrieves the non-deleted user holding email.
	// Returns ErrNotFound if there is none.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// ListByEmailWithDeleted returns every user ever registered with email,
	// newest first.
	ListByEmailWithDeleted(ctx context.Context, email string) ([]*User, error)

	// ListDeletedByEmail returns soft-deleted users registered with email,
	// newest first.
	ListDeletedByEmail(ctx context.Context, email string) ([]*User, error)

	// UpdatePassword replaces the password hash of a non-deleted user.
	// A nil hash marks the password unusable.
	UpdatePassword(ctx context.Context, id int64, passwordHash *string) error

	// SetActive updates the is_active flag of a non-deleted user.
	SetActive(ctx context.Context, id int64, active bool) error

	// SoftDelete stamps deleted_at and clears is_active.
	SoftDelete(ctx context.Context, id int64, at time.Time) error
}
