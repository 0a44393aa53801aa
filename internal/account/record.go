// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// State is the lifecycle state of a credential record.
type State string

// Lifecycle states. Activation is one-way: there is no path back to pending.
const (
	StatePending State = "pending"
	StateActive  State = "active"
)

// UserRecord is a stored credential record.
//
// ActivatedAt is set if and only if IsActive is true, and is never earlier
// than RegisteredAt. SecretHash is never the plaintext password.
type UserRecord struct {
	ID           ulid.ULID
	Email        string
	SecretHash   string
	IsActive     bool
	RegisteredAt time.Time
	ActivatedAt  *time.Time

	// Version is incremented by every successful update and backs the
	// optimistic concurrency check in Mutation.
	Version int64
}

// State returns the lifecycle state derived from IsActive.
func (r *UserRecord) State() State {
	if r.IsActive {
		return StateActive
	}
	return StatePending
}

// Clone returns a deep copy of the record.
func (r *UserRecord) Clone() *UserRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ActivatedAt != nil {
		at := *r.ActivatedAt
		c.ActivatedAt = &at
	}
	return &c
}
