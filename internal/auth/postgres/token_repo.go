// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/internal/auth"
)

var purposeTables = map[auth.Purpose]string{
	auth.PurposeMagicLink:     "magic_links",
	auth.PurposePasswordReset: "password_reset_tokens",
}

const tokenColumns = `id, user_id, token, created_at, expires_at, used_at`

// TokenRepository implements auth.RedeemableTokenRepository using PostgreSQL.
// Each purpose has its own table with identical shape.
type TokenRepository struct {
	pool    poolIface
	purpose auth.Purpose

	insertSQL string
	redeemSQL string
	selectSQL string
}

// NewTokenRepository creates a TokenRepository for purpose.
func NewTokenRepository(pool poolIface, purpose auth.Purpose) (*TokenRepository, error) {
	table, ok := purposeTables[purpose]
	if !ok {
		return nil, oops.Code("TOKEN_INVALID_PURPOSE").
			With("purpose", string(purpose)).
			Errorf("unknown token purpose %q", purpose)
	}

	return &TokenRepository{
		pool:    pool,
		purpose: purpose,
		insertSQL: fmt.Sprintf(`
		INSERT INTO %s (id, user_id, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, table),
		// The validity check and the write are one statement, so concurrent
		// redeemers of the same token cannot both match.
		redeemSQL: fmt.Sprintf(`
		UPDATE %s SET used_at = $2
		WHERE token = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING %s
	`, table, tokenColumns),
		selectSQL: fmt.Sprintf(`SELECT %s FROM %s WHERE token = $1`, tokenColumns, table),
	}, nil
}

// Create stores a new token.
func (r *TokenRepository) Create(ctx context.Context, token *auth.RedeemableToken) error {
	_, err := r.pool.Exec(ctx, r.insertSQL,
		token.ID.String(), token.UserID, token.Token, token.CreatedAt, token.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code(auth.CodeTokenCollision).
				With("purpose", string(r.purpose)).
				Wrap(auth.ErrTokenCollision)
		}
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "insert token").
			With("purpose", string(r.purpose)).
			With("user_id", token.UserID).
			Wrap(err)
	}
	return nil
}

// Redeem marks the token used at now if it is unused and unexpired.
func (r *TokenRepository) Redeem(ctx context.Context, token string, now time.Time) (*auth.RedeemableToken, error) {
	redeemed, err := scanToken(r.pool.QueryRow(ctx, r.redeemSQL, token, now))
	if err == nil {
		return redeemed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_REDEEM_FAILED").
			With("operation", "redeem token").
			With("purpose", string(r.purpose)).
			Wrap(err)
	}
	return nil, r.classify(ctx, token, now)
}

// classify explains why the conditional update matched no row.
func (r *TokenRepository) classify(ctx context.Context, token string, now time.Time) error {
	existing, err := scanToken(r.pool.QueryRow(ctx, r.selectSQL, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code(auth.CodeTokenNotFound).
			With("purpose", string(r.purpose)).
			Wrap(auth.ErrTokenNotFound)
	}
	if err != nil {
		return oops.Code("TOKEN_REDEEM_FAILED").
			With("operation", "classify token").
			With("purpose", string(r.purpose)).
			Wrap(err)
	}
	if classified := auth.ClassifyRedemption(existing, now); classified != nil {
		return classified
	}
	// The row changed between the two statements.
	return oops.Code(auth.CodeTokenAlreadyUsed).
		With("purpose", string(r.purpose)).
		With("token_id", existing.ID.String()).
		Wrap(auth.ErrTokenAlreadyUsed)
}

// scanToken scans a single row into a RedeemableToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanToken(row pgx.Row) (*auth.RedeemableToken, error) {
	var (
		idStr string
		t     auth.RedeemableToken
	)
	err := row.Scan(&idStr, &t.UserID, &t.Token, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("TOKEN_SCAN_FAILED").
			With("operation", "scan token").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").
			With("operation", "parse token id").
			With("id", idStr).
			Wrap(err)
	}
	t.ID = id
	return &t, nil
}

// Compile-time interface check.
var _ auth.RedeemableTokenRepository = (*TokenRepository)(nil)
