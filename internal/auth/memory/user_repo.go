// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package memory provides in-process implementations of auth repositories.
// They back the development server and unit tests; state is lost on exit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/internal/auth"
)

// UserRepository implements auth.UserRepository in memory.
type UserRepository struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]*auth.User
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[int64]*auth.User)}
}

// Create stores a new user and assigns its ID.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == user.Email && !u.IsDeleted() {
			return oops.Code(auth.CodeDuplicateEmail).
				With("email", user.Email).
				Wrap(auth.ErrDuplicateEmail)
		}
	}

	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = cloneUser(user)
	return nil
}

// GetByID retrieves a user by ID, including soft-deleted users.
func (r *UserRepository) GetByID(_ context.Context, id int64) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(auth.ErrNotFound)
	}
	return cloneUser(u), nil
}

// GetByEmail retrieves the non-deleted user holding email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email && !u.IsDeleted() {
			return cloneUser(u), nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
}

// ListByEmailWithDeleted returns every user registered with email, newest first.
func (r *UserRepository) ListByEmailWithDeleted(_ context.Context, email string) ([]*auth.User, error) {
	return r.list(func(u *auth.User) bool { return u.Email == email }), nil
}

// ListDeletedByEmail returns soft-deleted users registered with email, newest first.
func (r *UserRepository) ListDeletedByEmail(_ context.Context, email string) ([]*auth.User, error) {
	return r.list(func(u *auth.User) bool { return u.Email == email && u.IsDeleted() }), nil
}

// UpdatePassword replaces the password hash of a non-deleted user.
func (r *UserRepository) UpdatePassword(_ context.Context, id int64, passwordHash *string) error {
	return r.mutate(id, func(u *auth.User) {
		u.PasswordHash = cloneString(passwordHash)
	})
}

// SetActive updates the is_active flag of a non-deleted user.
func (r *UserRepository) SetActive(_ context.Context, id int64, active bool) error {
	return r.mutate(id, func(u *auth.User) {
		u.IsActive = active
	})
}

// SoftDelete stamps deleted_at and clears is_active.
func (r *UserRepository) SoftDelete(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(auth.ErrNotFound)
	}
	u.DeletedAt = &at
	u.IsActive = false
	return nil
}

func (r *UserRepository) mutate(id int64, fn func(*auth.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || u.IsDeleted() {
		return oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(auth.ErrNotFound)
	}
	fn(u)
	return nil
}

func (r *UserRepository) list(match func(*auth.User) bool) []*auth.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*auth.User
	for _, u := range r.users {
		if match(u) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func cloneUser(u *auth.User) *auth.User {
	c := *u
	c.PasswordHash = cloneString(u.PasswordHash)
	if u.DeletedAt != nil {
		at := *u.DeletedAt
		c.DeletedAt = &at
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
