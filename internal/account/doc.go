// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package account implements the credential lifecycle: registration,
// one-way activation, authentication and password reset.
//
// # Lifecycle
//
// A record is created pending by Manager.Register and becomes active through
// Manager.ActivateUser. There is no path back. Pending records never
// authenticate, whatever the password.
//
// # Storage
//
// Manager depends on a CredentialStore for persistence and atomicity. The
// memory, postgres and sqlite subpackages provide implementations. Stores
// report conflicts with the sentinel errors in this package; Manager turns
// them into coded errors (see the Code* constants).
//
// # Secrets
//
// Passwords are hashed with a salted, memory-hard function (argon2id by
// default, bcrypt as an alternative). Plaintext is never stored or logged.
package account
