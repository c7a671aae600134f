// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/pkg/errutil"
)

var userCols = []string{"id", "email", "password_hash", "is_active", "is_staff", "is_superuser", "date_joined", "deleted_at"}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()
	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hash := "$argon2id$hash"

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantID    int64
		wantErr   error
		wantCode  string
	}{
		{
			name: "assigns id from returning clause",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO users`).
					WithArgs("a@b.com", &hash, true, false, false, joined).
					WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
			},
			wantID: 42,
		},
		{
			name: "unique violation maps to duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO users`).
					WithArgs("a@b.com", &hash, true, false, false, joined).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr:  auth.ErrDuplicateEmail,
			wantCode: auth.CodeDuplicateEmail,
		},
		{
			name: "other database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO users`).
					WithArgs("a@b.com", &hash, true, false, false, joined).
					WillReturnError(errors.New("connection refused"))
			},
			wantCode: "USER_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setupMock(mock)

			repo := NewUserRepository(mock)
			user := &auth.User{Email: "a@b.com", PasswordHash: &hash, IsActive: true, DateJoined: joined}
			err := repo.Create(ctx, user)

			if tt.wantCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantCode)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, user.ID)
		})
	}
}

func TestUserRepository_GetByEmail(t *testing.T) {
	ctx := context.Background()
	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hash := "$argon2id$hash"

	t.Run("filters out soft-deleted users", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM users\s+WHERE email = \$1 AND deleted_at IS NULL`).
			WithArgs("a@b.com").
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(int64(7), "a@b.com", &hash, true, false, false, joined, nil))

		user, err := NewUserRepository(mock).GetByEmail(ctx, "a@b.com")
		require.NoError(t, err)
		assert.Equal(t, int64(7), user.ID)
		assert.Equal(t, "a@b.com", user.Email)
		require.NotNil(t, user.PasswordHash)
		assert.Equal(t, hash, *user.PasswordHash)
		assert.Nil(t, user.DeletedAt)
		assert.True(t, user.IsActive)
	})

	t.Run("no row wraps ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM users\s+WHERE email = \$1 AND deleted_at IS NULL`).
			WithArgs("nobody@b.com").
			WillReturnRows(pgxmock.NewRows(userCols))

		_, err := NewUserRepository(mock).GetByEmail(ctx, "nobody@b.com")
		require.Error(t, err)
		errutil.AssertFailure(t, err, auth.ErrNotFound, "USER_NOT_FOUND")
	})
}

func TestUserRepository_GetByID_IncludesDeleted(t *testing.T) {
	ctx := context.Background()
	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deleted := joined.Add(time.Hour)

	mock := newMockPool(t)
	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(int64(3), "gone@b.com", nil, false, false, false, joined, &deleted))

	user, err := NewUserRepository(mock).GetByID(ctx, 3)
	require.NoError(t, err)
	assert.True(t, user.IsDeleted())
	assert.False(t, user.HasUsablePassword())
}

func TestUserRepository_ListModes(t *testing.T) {
	ctx := context.Background()
	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deleted := joined.Add(time.Hour)

	t.Run("with deleted returns every record", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`WHERE email = \$1\s+ORDER BY id DESC`).
			WithArgs("x@y.com").
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(int64(2), "x@y.com", nil, true, false, false, joined, nil).
				AddRow(int64(1), "x@y.com", nil, false, false, false, joined, &deleted))

		users, err := NewUserRepository(mock).ListByEmailWithDeleted(ctx, "x@y.com")
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, int64(2), users[0].ID)
		assert.True(t, users[1].IsDeleted())
	})

	t.Run("deleted only", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`deleted_at IS NOT NULL`).
			WithArgs("x@y.com").
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(int64(1), "x@y.com", nil, false, false, false, joined, &deleted))

		users, err := NewUserRepository(mock).ListDeletedByEmail(ctx, "x@y.com")
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.True(t, users[0].IsDeleted())
	})

	t.Run("query error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`ORDER BY id DESC`).
			WithArgs("x@y.com").
			WillReturnError(errors.New("connection refused"))

		_, err := NewUserRepository(mock).ListByEmailWithDeleted(ctx, "x@y.com")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_LIST_FAILED")
	})
}

func TestUserRepository_Updates(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	hash := "$argon2id$new"

	t.Run("update password on live user", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users SET password_hash = \$2\s+WHERE id = \$1 AND deleted_at IS NULL`).
			WithArgs(int64(5), &hash).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewUserRepository(mock).UpdatePassword(ctx, 5, &hash))
	})

	t.Run("update password on missing user", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(int64(5), &hash).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewUserRepository(mock).UpdatePassword(ctx, 5, &hash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("set active", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users SET is_active = \$2`).
			WithArgs(int64(5), false).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewUserRepository(mock).SetActive(ctx, 5, false))
	})

	t.Run("soft delete clears is_active", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users SET deleted_at = \$2, is_active = FALSE`).
			WithArgs(int64(5), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewUserRepository(mock).SoftDelete(ctx, 5, at))
	})

	t.Run("soft delete error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users SET deleted_at`).
			WithArgs(int64(5), at).
			WillReturnError(errors.New("connection refused"))

		err := NewUserRepository(mock).SoftDelete(ctx, 5, at)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_SOFT_DELETE_FAILED")
		errutil.AssertErrorContext(t, err, "user_id", int64(5))
	})
}
