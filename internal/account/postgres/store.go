// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements account.CredentialStore on PostgreSQL.
//
// The schema is owned by internal/store migrations; run them before use.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

// poolIface is the subset of pgxpool.Pool used by Store. pgxmock satisfies it.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements account.CredentialStore using PostgreSQL.
type Store struct {
	pool poolIface
}

// NewStore creates a Store over an open pool.
func NewStore(pool poolIface) *Store {
	return &Store{pool: pool}
}

// Create inserts a pending record.
func (s *Store) Create(ctx context.Context, email, secretHash string, registeredAt time.Time) (ulid.ULID, error) {
	id := account.NewID()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, secret_hash, is_active, registered_at, version)
		VALUES ($1, $2, $3, FALSE, $4, 1)
	`, id.String(), email, secretHash, registeredAt.UTC())
	if err != nil {
		return ulid.ULID{}, wrapError(err, "insert user", "email", email)
	}
	return id, nil
}

// FindByEmail retrieves a record by its normalized email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*account.UserRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, secret_hash, is_active, registered_at, activated_at, version
		FROM users
		WHERE email = $1
	`, email)

	var (
		rec         account.UserRecord
		id          string
		activatedAt *time.Time
	)
	err := row.Scan(&id, &rec.Email, &rec.SecretHash, &rec.IsActive, &rec.RegisteredAt, &activatedAt, &rec.Version)
	if err != nil {
		return nil, wrapError(err, "get user by email", "email", email)
	}

	if rec.ID, err = account.ParseID(id); err != nil {
		return nil, oops.With("operation", "parse user id").
			With("email", email).
			With("id", id).
			Wrap(errors.Join(account.ErrStoreUnavailable, err))
	}
	rec.RegisteredAt = rec.RegisteredAt.UTC()
	if activatedAt != nil {
		at := activatedAt.UTC()
		rec.ActivatedAt = &at
	}
	return &rec, nil
}

// Update applies m in a single statement. Activation only matches pending
// rows, so activated_at is written at most once.
func (s *Store) Update(ctx context.Context, id ulid.ULID, m account.Mutation) error {
	if m.Empty() {
		return oops.With("operation", "update user").With("id", id.String()).Wrap(account.ErrEmptyMutation)
	}

	var activatedAt *time.Time
	if m.ActivatedAt != nil {
		at := m.ActivatedAt.UTC()
		activatedAt = &at
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			secret_hash  = COALESCE($2::text, secret_hash),
			is_active    = is_active OR $3::timestamptz IS NOT NULL,
			activated_at = COALESCE($3::timestamptz, activated_at),
			version      = version + 1
		WHERE id = $1
		  AND ($4::bigint = 0 OR version = $4::bigint)
		  AND ($3::timestamptz IS NULL OR NOT is_active)
	`, id.String(), m.SecretHash, activatedAt, m.ExpectedVersion)
	if err != nil {
		return wrapError(err, "update user", "id", id.String())
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing matched: tell a missing row from a lost race.
	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id.String()).Scan(&exists)
	if err != nil {
		return wrapError(err, "check user exists", "id", id.String())
	}
	if !exists {
		return oops.With("operation", "update user").With("id", id.String()).Wrap(account.ErrNotFound)
	}
	return oops.With("operation", "update user").
		With("id", id.String()).
		With("expected_version", m.ExpectedVersion).
		Wrap(account.ErrConcurrentModification)
}

// wrapError maps a pgx error onto the CredentialStore sentinels and wraps it
// with the operation context.
func wrapError(err error, operation, key string, value any) error {
	sentinel := account.ErrStoreUnavailable
	b := oops.With("operation", operation).With(key, value)

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
		sentinel = account.ErrDuplicateEmail
		b = b.With("constraint", pgErr.ConstraintName)
	case errors.Is(err, pgx.ErrNoRows):
		sentinel = account.ErrNotFound
	}
	return b.Wrap(errors.Join(sentinel, err))
}
