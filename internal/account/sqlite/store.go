// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite implements account.CredentialStore on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/holomush/accountd/internal/account"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT    PRIMARY KEY,
	email         TEXT    NOT NULL UNIQUE,
	secret_hash   TEXT    NOT NULL CHECK (secret_hash <> ''),
	is_active     INTEGER NOT NULL DEFAULT 0,
	registered_at TEXT    NOT NULL,
	activated_at  TEXT    NULL,
	version       INTEGER NOT NULL DEFAULT 1,
	CHECK ((is_active = 1 AND activated_at IS NOT NULL) OR (is_active = 0 AND activated_at IS NULL)),
	CHECK (activated_at IS NULL OR activated_at >= registered_at)
)`

// Store implements account.CredentialStore using SQLite.
type Store struct {
	db        *sql.DB
	writeLock sync.Mutex // the driver does not support concurrent writers
}

var _ account.CredentialStore = (*Store)(nil)

// Open opens (creating if needed) the database file at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	// Pragmas in the DSN apply to every pooled connection.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("path", path).Wrap(err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("path", path).With("operation", "ping").Wrap(err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, oops.Code("DB_INIT_FAILED").With("path", path).With("operation", "create schema").Wrap(err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.With("operation", "close db").Wrap(err)
	}
	return nil
}

// Ping checks that the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

// Create inserts a pending record.
func (s *Store) Create(ctx context.Context, email, secretHash string, registeredAt time.Time) (ulid.ULID, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	id := account.NewID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, secret_hash, is_active, registered_at, version) VALUES (?, ?, ?, 0, ?, 1)`,
		id.String(), email, secretHash, formatTime(registeredAt))
	if err != nil {
		return ulid.ULID{}, wrapError(err, "insert user", "email", email)
	}
	return id, nil
}

// FindByEmail retrieves a record by its normalized email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*account.UserRecord, error) {
	var (
		rec          account.UserRecord
		id           string
		registeredAt string
		activatedAt  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, secret_hash, is_active, registered_at, activated_at, version FROM users WHERE email = ?`,
		email,
	).Scan(&id, &rec.Email, &rec.SecretHash, &rec.IsActive, &registeredAt, &activatedAt, &rec.Version)
	if err != nil {
		return nil, wrapError(err, "query user", "email", email)
	}

	if rec.ID, err = account.ParseID(id); err != nil {
		return nil, corrupt(err, "id", id)
	}
	if rec.RegisteredAt, err = time.Parse(timeLayout, registeredAt); err != nil {
		return nil, corrupt(err, "registered_at", registeredAt)
	}
	if activatedAt.Valid {
		at, err := time.Parse(timeLayout, activatedAt.String)
		if err != nil {
			return nil, corrupt(err, "activated_at", activatedAt.String)
		}
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

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	var activatedAt sql.NullString
	if m.ActivatedAt != nil {
		activatedAt = sql.NullString{String: formatTime(*m.ActivatedAt), Valid: true}
	}
	var secretHash sql.NullString
	if m.SecretHash != nil {
		secretHash = sql.NullString{String: *m.SecretHash, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			secret_hash  = COALESCE(?1, secret_hash),
			is_active    = CASE WHEN ?2 IS NULL THEN is_active ELSE 1 END,
			activated_at = COALESCE(?2, activated_at),
			version      = version + 1
		WHERE id = ?3
		  AND (?4 = 0 OR version = ?4)
		  AND (?2 IS NULL OR is_active = 0)`,
		secretHash, activatedAt, id.String(), m.ExpectedVersion)
	if err != nil {
		return wrapError(err, "update user", "id", id.String())
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrapError(err, "update user", "id", id.String())
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, id.String()).Scan(&exists)
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

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func corrupt(err error, column, value string) error {
	return oops.With("operation", "decode user").
		With("column", column).
		With("value", value).
		Wrap(errors.Join(account.ErrStoreUnavailable, err))
}

// wrapError maps a driver error onto the CredentialStore sentinels.
func wrapError(err error, operation, key string, value any) error {
	sentinel := account.ErrStoreUnavailable

	var liteErr *sqlite.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		sentinel = account.ErrNotFound
	case errors.As(err, &liteErr):
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			sentinel = account.ErrDuplicateEmail
		}
	}
	return oops.With("operation", operation).With(key, value).Wrap(errors.Join(sentinel, err))
}
