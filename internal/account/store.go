// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// CredentialStore persists credential records. Each operation is atomic with
// respect to a single record. Implementations hold no business logic; they
// report conflicts through ErrDuplicateEmail, ErrNotFound and
// ErrConcurrentModification, and infrastructure failures through
// ErrStoreUnavailable.
type CredentialStore interface {
	// Create stores a pending record and returns the identifier assigned to it.
	// Returns ErrDuplicateEmail if the email is already present.
	Create(ctx context.Context, email, secretHash string, registeredAt time.Time) (ulid.ULID, error)

	// FindByEmail retrieves a record by its normalized email.
	// Returns ErrNotFound if no record has the given email.
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)

	// Update applies m to the record with the given identifier.
	// Returns ErrNotFound if the identifier is absent and
	// ErrConcurrentModification if the optimistic check fails. An empty
	// mutation is rejected with ErrEmptyMutation and leaves the version as is.
	Update(ctx context.Context, id ulid.ULID, m Mutation) error
}

// Mutation describes a field change applied by CredentialStore.Update.
type Mutation struct {
	// ExpectedVersion must equal the stored version for the update to apply.
	// Zero disables the check.
	ExpectedVersion int64

	// SecretHash replaces the stored secret hash when non-nil.
	SecretHash *string

	// ActivatedAt marks a pending record active at the given time when non-nil.
	// Activating a record that is already active is a concurrent modification.
	ActivatedAt *time.Time
}

// Empty reports whether the mutation changes no field.
func (m Mutation) Empty() bool {
	return m.SecretHash == nil && m.ActivatedAt == nil
}

// ApplyTo applies the mutation to r in place and bumps its version.
// r is left untouched when an error is returned.
func (m Mutation) ApplyTo(r *UserRecord) error {
	if m.Empty() {
		return ErrEmptyMutation
	}
	if m.ExpectedVersion != 0 && m.ExpectedVersion != r.Version {
		return ErrConcurrentModification
	}
	if m.ActivatedAt != nil && r.IsActive {
		return ErrConcurrentModification
	}

	if m.SecretHash != nil {
		r.SecretHash = *m.SecretHash
	}
	if m.ActivatedAt != nil {
		at := m.ActivatedAt.UTC()
		r.IsActive = true
		r.ActivatedAt = &at
	}
	r.Version++
	return nil
}
