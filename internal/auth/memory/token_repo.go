// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/internal/auth"
)

// TokenRepository implements auth.RedeemableTokenRepository in memory for a
// single purpose. Redemption is serialized by a mutex.
type TokenRepository struct {
	purpose auth.Purpose

	mu     sync.Mutex
	tokens map[string]*auth.RedeemableToken
}

// NewTokenRepository creates an empty TokenRepository for purpose.
func NewTokenRepository(purpose auth.Purpose) *TokenRepository {
	return &TokenRepository{
		purpose: purpose,
		tokens:  make(map[string]*auth.RedeemableToken),
	}
}

// Create stores a new token.
func (r *TokenRepository) Create(_ context.Context, token *auth.RedeemableToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[token.Token]; exists {
		return oops.Code(auth.CodeTokenCollision).
			With("purpose", string(r.purpose)).
			Wrap(auth.ErrTokenCollision)
	}
	c := *token
	c.UsedAt = nil
	r.tokens[token.Token] = &c
	return nil
}

// Redeem marks the token used at now if it is unused and unexpired.
func (r *TokenRepository) Redeem(_ context.Context, token string, now time.Time) (*auth.RedeemableToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok {
		return nil, oops.Code(auth.CodeTokenNotFound).
			With("purpose", string(r.purpose)).
			Wrap(auth.ErrTokenNotFound)
	}
	if err := auth.ClassifyRedemption(t, now); err != nil {
		return nil, err
	}

	usedAt := now
	t.UsedAt = &usedAt
	c := *t
	return &c, nil
}
