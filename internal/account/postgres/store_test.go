// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

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

	"github.com/holomush/accountd/internal/account"
)

var userColumns = []string{"id", "email", "secret_hash", "is_active", "registered_at", "activated_at", "version"}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return NewStore(mock), mock
}

func TestStore_Create(t *testing.T) {
	registeredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "inserts pending record",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), "alice@example.com", "hash", registeredAt).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "unique violation is a duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), "alice@example.com", "hash", registeredAt).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})
			},
			wantErr: account.ErrDuplicateEmail,
		},
		{
			name: "connection failure is store unavailable",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), "alice@example.com", "hash", registeredAt).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: account.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setupMock(mock)

			id, err := store.Create(context.Background(), "alice@example.com", "hash", registeredAt)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, id)
		})
	}
}

func TestStore_FindByEmail(t *testing.T) {
	id := account.NewID()
	registeredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	activatedAt := registeredAt.Add(time.Hour)

	t.Run("pending record", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT id, email, secret_hash`).
			WithArgs("alice@example.com").
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow(id.String(), "alice@example.com", "hash", false, registeredAt, (*time.Time)(nil), int64(1)))

		rec, err := store.FindByEmail(context.Background(), "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID)
		assert.Equal(t, "hash", rec.SecretHash)
		assert.False(t, rec.IsActive)
		assert.Nil(t, rec.ActivatedAt)
		assert.Equal(t, int64(1), rec.Version)
	})

	t.Run("active record", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT id, email, secret_hash`).
			WithArgs("alice@example.com").
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow(id.String(), "alice@example.com", "hash", true, registeredAt, &activatedAt, int64(2)))

		rec, err := store.FindByEmail(context.Background(), "alice@example.com")
		require.NoError(t, err)
		assert.True(t, rec.IsActive)
		require.NotNil(t, rec.ActivatedAt)
		assert.True(t, activatedAt.Equal(*rec.ActivatedAt))
	})

	t.Run("no rows is not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT id, email, secret_hash`).
			WithArgs("ghost@example.com").
			WillReturnRows(pgxmock.NewRows(userColumns))

		_, err := store.FindByEmail(context.Background(), "ghost@example.com")
		require.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("corrupt id is store unavailable", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT id, email, secret_hash`).
			WithArgs("alice@example.com").
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow("not-a-ulid", "alice@example.com", "hash", false, registeredAt, (*time.Time)(nil), int64(1)))

		_, err := store.FindByEmail(context.Background(), "alice@example.com")
		require.ErrorIs(t, err, account.ErrStoreUnavailable)
	})

	t.Run("query failure is store unavailable", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT id, email, secret_hash`).
			WithArgs("alice@example.com").
			WillReturnError(errors.New("connection reset by peer"))

		_, err := store.FindByEmail(context.Background(), "alice@example.com")
		require.ErrorIs(t, err, account.ErrStoreUnavailable)
		assert.Contains(t, err.Error(), "connection reset by peer")
	})
}

func TestStore_Update(t *testing.T) {
	id := account.NewID()
	hash := "new-hash"
	activatedAt := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)

	t.Run("applies mutation", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE users SET`).
			WithArgs(id.String(), pgxmock.AnyArg(), pgxmock.AnyArg(), int64(3)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := store.Update(context.Background(), id, account.Mutation{ExpectedVersion: 3, SecretHash: &hash})
		require.NoError(t, err)
	})

	t.Run("empty mutation never reaches the database", func(t *testing.T) {
		store, _ := newMockStore(t)

		err := store.Update(context.Background(), id, account.Mutation{ExpectedVersion: 3})
		require.ErrorIs(t, err, account.ErrEmptyMutation)
	})

	t.Run("missing row is not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE users SET`).
			WithArgs(id.String(), pgxmock.AnyArg(), pgxmock.AnyArg(), int64(0)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		err := store.Update(context.Background(), id, account.Mutation{SecretHash: &hash})
		require.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("stale version is a concurrent modification", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE users SET`).
			WithArgs(id.String(), pgxmock.AnyArg(), pgxmock.AnyArg(), int64(1)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		err := store.Update(context.Background(), id, account.Mutation{ExpectedVersion: 1, ActivatedAt: &activatedAt})
		require.ErrorIs(t, err, account.ErrConcurrentModification)
	})

	t.Run("exec failure is store unavailable", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE users SET`).
			WithArgs(id.String(), pgxmock.AnyArg(), pgxmock.AnyArg(), int64(1)).
			WillReturnError(errors.New("connection refused"))

		err := store.Update(context.Background(), id, account.Mutation{ExpectedVersion: 1, ActivatedAt: &activatedAt})
		require.ErrorIs(t, err, account.ErrStoreUnavailable)
	})
}
