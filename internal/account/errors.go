// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import "errors"

// Error codes attached to every error returned by Manager operations.
// Codes are stable and safe to match on (see errutil.Code).
const (
	CodeInvalidEmailFormat     = "INVALID_EMAIL_FORMAT"
	CodeWeakPassword           = "WEAK_PASSWORD"
	CodeDuplicateEmail         = "DUPLICATE_EMAIL"
	CodeAlreadyActive          = "ALREADY_ACTIVE"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeUserNotFound           = "USER_NOT_FOUND"
	CodeInvalidCredentials     = "INVALID_CREDENTIALS"
	CodeAccountNotActive       = "ACCOUNT_NOT_ACTIVE"
	CodeStoreUnavailable       = "STORE_UNAVAILABLE"
	CodeHashFailed             = "SECRET_HASH_FAILED"
)

// Sentinels reported by CredentialStore implementations.
var (
	// ErrNotFound is returned when no record matches the lookup key.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by Create when the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrConcurrentModification is returned by Update when the record changed
	// after it was read.
	ErrConcurrentModification = errors.New("record modified concurrently")

	// ErrStoreUnavailable marks infrastructure failures of the backing store.
	ErrStoreUnavailable = errors.New("credential store unavailable")

	// ErrEmptyMutation is returned by Update when the mutation changes no field.
	ErrEmptyMutation = errors.New("mutation changes no field")
)

// Sentinels produced by validation and the lifecycle state machine.
var (
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrWeakPassword       = errors.New("password does not meet complexity requirements")
	ErrAlreadyActive      = errors.New("account already active")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotActive   = errors.New("account not activated")
)
