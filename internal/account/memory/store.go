// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-memory CredentialStore for tests and
// ephemeral deployments.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

// Store is a mutex-guarded in-memory account.CredentialStore.
type Store struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*account.UserRecord
	byEmail map[string]ulid.ULID
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		byID:    make(map[ulid.ULID]*account.UserRecord),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a pending record.
func (s *Store) Create(ctx context.Context, email, secretHash string, registeredAt time.Time) (ulid.ULID, error) {
	if err := ctx.Err(); err != nil {
		return ulid.ULID{}, oops.With("operation", "create").Wrap(errors.Join(account.ErrStoreUnavailable, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return ulid.ULID{}, oops.With("operation", "create").With("email", email).Wrap(account.ErrDuplicateEmail)
	}

	rec := &account.UserRecord{
		ID:           account.NewID(),
		Email:        email,
		SecretHash:   secretHash,
		RegisteredAt: registeredAt.UTC(),
		Version:      1,
	}
	s.byID[rec.ID] = rec
	s.byEmail[email] = rec.ID
	return rec.ID, nil
}

// FindByEmail returns a copy of the record with the given email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*account.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.With("operation", "find_by_email").Wrap(errors.Join(account.ErrStoreUnavailable, err))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, oops.With("operation", "find_by_email").With("email", email).Wrap(account.ErrNotFound)
	}
	return s.byID[id].Clone(), nil
}

// Update applies m to the record with the given identifier.
func (s *Store) Update(ctx context.Context, id ulid.ULID, m account.Mutation) error {
	if err := ctx.Err(); err != nil {
		return oops.With("operation", "update").Wrap(errors.Join(account.ErrStoreUnavailable, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return oops.With("operation", "update").With("id", id.String()).Wrap(account.ErrNotFound)
	}

	// Apply to a copy so a rejected mutation leaves the stored record intact.
	next := rec.Clone()
	if err := m.ApplyTo(next); err != nil {
		return oops.With("operation", "update").
			With("id", id.String()).
			With("expected_version", m.ExpectedVersion).
			With("version", rec.Version).
			Wrap(err)
	}
	s.byID[id] = next
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
