// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
)

// LookupScope selects which users an email lookup can see.
type LookupScope string

// Lookup scopes.
const (
	// LookupActive sees non-deleted users only.
	LookupActive LookupScope = "active"
	// LookupAll sees every user, including soft-deleted ones.
	LookupAll LookupScope = "all"
	// LookupDeleted sees soft-deleted users only.
	LookupDeleted LookupScope = "deleted"
)

// ParseLookupScope converts a scope name into a LookupScope.
func ParseLookupScope(s string) (LookupScope, error) {
	switch LookupScope(s) {
	case LookupActive, LookupAll, LookupDeleted:
		return LookupScope(s), nil
	default:
		return "", oops.Code("AUTH_INVALID_SCOPE").
			With("scope", s).
			Errorf("unknown lookup scope %q", s)
	}
}

// CreateUserOption adjusts a user before it is persisted.
type CreateUserOption func(*User)

// WithStaff marks the new user as staff.
func WithStaff() CreateUserOption {
	return func(u *User) { u.IsStaff = true }
}

// WithSuperuser marks the new user as an active staff superuser.
func WithSuperuser() CreateUserOption {
	return func(u *User) {
		u.IsStaff = true
		u.IsSuperuser = true
		u.IsActive = true
	}
}

// WithInactive creates the user deactivated.
func WithInactive() CreateUserOption {
	return func(u *User) { u.IsActive = false }
}

// UserStoreOption configures a UserStore.
type UserStoreOption func(*UserStore)

// WithUserClock overrides the time source used for date_joined and deleted_at.
func WithUserClock(now func() time.Time) UserStoreOption {
	return func(s *UserStore) { s.now = now }
}

// WithUserLogger sets the logger.
func WithUserLogger(logger *slog.Logger) UserStoreOption {
	return func(s *UserStore) { s.logger = logger }
}

// UserStore owns user creation and mutation. Every call goes to the
// repository; nothing is cached.
type UserStore struct {
	repo   UserRepository
	hasher PasswordHasher
	now    func() time.Time
	logger *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewUserStore creates a new UserStore.
func NewUserStore(repo UserRepository, hasher PasswordHasher, opts ...UserStoreOption) *UserStore {
	s := &UserStore{
		repo:   repo,
		hasher: hasher,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser registers a new active user. An empty password leaves the
// account without a usable password.
func (s *UserStore) CreateUser(ctx context.Context, email, password string, opts ...CreateUserOption) (*User, error) {
	normalized, err := ValidateEmail(email)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:      normalized,
		IsActive:   true,
		DateJoined: s.now().UTC(),
	}
	for _, opt := range opts {
		opt(user)
	}

	if password != "" {
		hash, hashErr := s.hasher.Hash(password)
		if hashErr != nil {
			return nil, oops.Code("AUTH_CREATE_USER_FAILED").
				With("operation", "hash password").
				Wrap(hashErr)
		}
		user.PasswordHash = &hash
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, err
		}
		return nil, oops.Code("AUTH_CREATE_USER_FAILED").
			With("operation", "persist user").
			Wrap(err)
	}
	return user, nil
}

// CreateSuperuser registers an active staff superuser.
func (s *UserStore) CreateSuperuser(ctx context.Context, email, password string) (*User, error) {
	return s.CreateUser(ctx, email, password, WithSuperuser())
}

// Authenticate returns the active, non-deleted user whose password matches.
// Every mismatch yields ErrInvalidCredentials, whether the email is unknown,
// the password is wrong or the account is inactive.
func (s *UserStore) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	if user != nil && !user.CanAuthenticate() {
		user = nil
	}

	if user == nil || !s.CheckPassword(user, password) {
		if user == nil {
			// Keep the response time in line with a real verification.
			s.CheckPassword(&User{}, password)
		}
		return nil, oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
	}

	s.upgradeHash(ctx, user, password)
	return user, nil
}

// CheckPassword reports whether password matches the user's stored hash.
// Users without a usable password never match. It never returns an error.
func (s *UserStore) CheckPassword(user *User, password string) bool {
	target := s.dummy()
	usable := user.HasUsablePassword()
	if usable {
		target = *user.PasswordHash
	}

	ok, err := s.hasher.Verify(password, target)
	if err != nil {
		if usable {
			s.logger.Warn("password verification failed",
				"user_id", user.ID,
				"error", err)
		}
		return false
	}
	return usable && ok
}

// FindActiveByEmail returns the non-deleted, active user holding email.
func (s *UserStore) FindActiveByEmail(ctx context.Context, email string) (*User, error) {
	normalized := NormalizeEmail(email)
	user, err := s.repo.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeAccountNotFound).With("email", normalized).Wrap(err)
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	if !user.IsActive {
		return nil, oops.Code(CodeAccountNotFound).With("email", normalized).Wrap(ErrNotFound)
	}
	return user, nil
}

// FindByID returns the user with id, including soft-deleted users.
func (s *UserStore) FindByID(ctx context.Context, id int64) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by id").
			With("user_id", id).
			Wrap(err)
	}
	return user, nil
}

// FindInactiveMatch returns the newest deleted or deactivated user registered
// with email if password matches it. It is the explicit second check used to
// tell an inactive account apart from bad credentials.
//
// Exactly one password verification runs whatever the number of inactive
// records, against a dummy hash when there is none, so the cost of a failed
// login does not depend on the email's history.
func (s *UserStore) FindInactiveMatch(ctx context.Context, email, password string) (*User, error) {
	users, err := s.repo.ListByEmailWithDeleted(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "list users by email").
			Wrap(err)
	}

	candidate := &User{}
	for _, u := range users {
		if !u.CanAuthenticate() && u.HasUsablePassword() {
			candidate = u
			break
		}
	}
	if s.CheckPassword(candidate, password) {
		return candidate, nil
	}
	return nil, ErrNotFound
}

// Lookup lists users registered with email in the given scope.
func (s *UserStore) Lookup(ctx context.Context, email string, scope LookupScope) ([]*User, error) {
	normalized := NormalizeEmail(email)
	switch scope {
	case LookupActive:
		user, err := s.repo.GetByEmail(ctx, normalized)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, oops.Code("AUTH_LOOKUP_FAILED").With("scope", string(scope)).Wrap(err)
		}
		return []*User{user}, nil
	case LookupAll:
		users, err := s.repo.ListByEmailWithDeleted(ctx, normalized)
		if err != nil {
			return nil, oops.Code("AUTH_LOOKUP_FAILED").With("scope", string(scope)).Wrap(err)
		}
		return users, nil
	case LookupDeleted:
		users, err := s.repo.ListDeletedByEmail(ctx, normalized)
		if err != nil {
			return nil, oops.Code("AUTH_LOOKUP_FAILED").With("scope", string(scope)).Wrap(err)
		}
		return users, nil
	default:
		return nil, oops.Code("AUTH_INVALID_SCOPE").
			With("scope", string(scope)).
			Errorf("unknown lookup scope %q", scope)
	}
}

// SetPassword replaces the user's password. An empty password makes it unusable.
func (s *UserStore) SetPassword(ctx context.Context, user *User, password string) error {
	var hash *string
	if password != "" {
		h, err := s.hasher.Hash(password)
		if err != nil {
			return oops.Code("AUTH_SET_PASSWORD_FAILED").
				With("operation", "hash password").
				With("user_id", user.ID).
				Wrap(err)
		}
		hash = &h
	}

	if err := s.repo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return oops.Code("AUTH_SET_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", user.ID).
			Wrap(err)
	}
	user.PasswordHash = hash
	return nil
}

// SetActive activates or deactivates a non-deleted user.
func (s *UserStore) SetActive(ctx context.Context, user *User, active bool) error {
	if err := s.repo.SetActive(ctx, user.ID, active); err != nil {
		return oops.Code("AUTH_SET_ACTIVE_FAILED").
			With("user_id", user.ID).
			With("active", active).
			Wrap(err)
	}
	user.IsActive = active
	return nil
}

// SoftDelete stamps deleted_at and deactivates the user. Calling it again
// re-stamps the timestamp.
func (s *UserStore) SoftDelete(ctx context.Context, user *User) error {
	at := s.now().UTC()
	if err := s.repo.SoftDelete(ctx, user.ID, at); err != nil {
		return oops.Code("AUTH_SOFT_DELETE_FAILED").
			With("user_id", user.ID).
			Wrap(err)
	}
	user.DeletedAt = &at
	user.IsActive = false
	return nil
}

// upgradeHash rehashes the password when the stored hash uses outdated
// parameters. Failures are logged; the login still succeeds.
func (s *UserStore) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(*user.PasswordHash) {
		return
	}
	if err := s.SetPassword(ctx, user, password); err != nil {
		s.logger.Warn("password hash upgrade failed", "user_id", user.ID, "error", err)
	}
}

// dummy returns a hash produced by the configured hasher, verified against
// when there is no real hash so timing does not reveal account existence.
func (s *UserStore) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("gatekeep-timing-equalizer")
		if err != nil {
			s.logger.Warn("dummy hash generation failed", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
