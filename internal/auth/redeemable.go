// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Purpose identifies which collection a redeemable token belongs to.
type Purpose string

// Token purposes.
const (
	PurposeMagicLink     Purpose = "magic_link"
	PurposePasswordReset Purpose = "password_reset"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeMagicLink || p == PurposePasswordReset
}

// RedeemableToken is a single-use credential bound to a user.
type RedeemableToken struct {
	ID        ulid.ULID
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
	// UsedAt is set exactly once, on redemption.
	UsedAt *time.Time
}

// IsValid reports whether the token is unused and unexpired at now.
func (t *RedeemableToken) IsValid(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// ClassifyRedemption returns the failure for a token that could not be
// redeemed at now. Expiry is reported ahead of prior use.
func ClassifyRedemption(t *RedeemableToken, now time.Time) error {
	switch {
	case !now.Before(t.ExpiresAt):
		return oops.Code(CodeTokenExpired).With("token_id", t.ID.String()).Wrap(ErrTokenExpired)
	case t.UsedAt != nil:
		return oops.Code(CodeTokenAlreadyUsed).With("token_id", t.ID.String()).Wrap(ErrTokenAlreadyUsed)
	default:
		return nil
	}
}

// RedeemableTokenRepository persists tokens of a single purpose.
type RedeemableTokenRepository interface {
	// Create stores a new token.
	// Returns ErrTokenCollision if the token string already exists.
	Create(ctx context.Context, token *RedeemableToken) error

	// Redeem marks the token used at now, provided it is unused and unexpired,
	// as a single atomic conditional write. Of concurrent callers at most one
	// succeeds. Failures wrap ErrTokenNotFound, ErrTokenExpired or
	// ErrTokenAlreadyUsed.
	Redeem(ctx context.Context, token string, now time.Time) (*RedeemableToken, error)
}

// TokenStoreOption configures a TokenStore.
type TokenStoreOption func(*TokenStore)

// WithTokenClock overrides the time source.
func WithTokenClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) { s.now = now }
}

// WithTokenRecorder reports issue and redemption outcomes to r.
func WithTokenRecorder(r Recorder) TokenStoreOption {
	return func(s *TokenStore) { s.recorder = r }
}

const maxIssueAttempts = 3

// TokenStore issues and redeems single-use tokens of one purpose.
type TokenStore struct {
	purpose   Purpose
	repo      RedeemableTokenRepository
	users     *UserStore
	generator TokenGenerator
	now       func() time.Time
	recorder  Recorder
}

// NewTokenStore creates a TokenStore for purpose.
func NewTokenStore(
	purpose Purpose,
	repo RedeemableTokenRepository,
	users *UserStore,
	generator TokenGenerator,
	opts ...TokenStoreOption,
) *TokenStore {
	s := &TokenStore{
		purpose:   purpose,
		repo:      repo,
		users:     users,
		generator: generator,
		now:       time.Now,
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Purpose returns the purpose this store serves.
func (s *TokenStore) Purpose() Purpose {
	return s.purpose
}

// Issue persists a new token for user that expires after ttl and returns
// its plaintext. The plaintext is not retrievable afterwards.
func (s *TokenStore) Issue(ctx context.Context, user *User, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", oops.Code("TOKEN_ISSUE_FAILED").
			With("purpose", string(s.purpose)).
			With("ttl", ttl.String()).
			Errorf("token ttl must be positive")
	}

	var lastErr error
	for range maxIssueAttempts {
		plaintext, err := s.generator.Generate()
		if err != nil {
			return "", oops.Code("TOKEN_ISSUE_FAILED").
				With("purpose", string(s.purpose)).
				With("operation", "generate token").
				Wrap(err)
		}

		now := s.now().UTC()
		token := &RedeemableToken{
			ID:        ulid.Make(),
			Token:     plaintext,
			UserID:    user.ID,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		err = s.repo.Create(ctx, token)
		if err == nil {
			s.recorder.TokenIssued(string(s.purpose))
			return plaintext, nil
		}
		if !errors.Is(err, ErrTokenCollision) {
			return "", oops.Code("TOKEN_ISSUE_FAILED").
				With("purpose", string(s.purpose)).
				With("user_id", user.ID).
				With("operation", "persist token").
				Wrap(err)
		}
		lastErr = err
	}
	return "", oops.Code("TOKEN_ISSUE_FAILED").
		With("purpose", string(s.purpose)).
		With("attempts", maxIssueAttempts).
		Wrap(lastErr)
}

// VerifyAndRedeem consumes the token and returns its owner.
func (s *TokenStore) VerifyAndRedeem(ctx context.Context, plaintext string) (*User, error) {
	if plaintext == "" {
		s.recorder.TokenRedeemed(string(s.purpose), RedeemNotFound)
		return nil, oops.Code(CodeTokenNotFound).
			With("purpose", string(s.purpose)).
			Wrap(ErrTokenNotFound)
	}

	token, err := s.repo.Redeem(ctx, plaintext, s.now().UTC())
	if err != nil {
		s.recorder.TokenRedeemed(string(s.purpose), redemptionResult(err))
		return nil, err
	}
	s.recorder.TokenRedeemed(string(s.purpose), RedeemSuccess)

	user, err := s.users.FindByID(ctx, token.UserID)
	if err != nil {
		return nil, oops.Code("TOKEN_OWNER_LOOKUP_FAILED").
			With("purpose", string(s.purpose)).
			With("token_id", token.ID.String()).
			With("user_id", token.UserID).
			Wrap(err)
	}
	return user, nil
}

// VerifyAndRedeemThen consumes the token and then runs apply for its owner.
// The token stays consumed when apply fails.
func (s *TokenStore) VerifyAndRedeemThen(ctx context.Context, plaintext string, apply func(context.Context, *User) error) (*User, error) {
	user, err := s.VerifyAndRedeem(ctx, plaintext)
	if err != nil {
		return nil, err
	}
	if err := apply(ctx, user); err != nil {
		return nil, oops.Code("TOKEN_APPLY_FAILED").
			With("purpose", string(s.purpose)).
			With("user_id", user.ID).
			Wrap(err)
	}
	return user, nil
}

func redemptionResult(err error) string {
	switch {
	case errors.Is(err, ErrTokenNotFound):
		return RedeemNotFound
	case errors.Is(err, ErrTokenExpired):
		return RedeemExpired
	case errors.Is(err, ErrTokenAlreadyUsed):
		return RedeemAlreadyUsed
	default:
		return RedeemError
	}
}
