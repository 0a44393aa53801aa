// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package storetest holds behavioral tests shared by every
// account.CredentialStore implementation.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/account"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) account.CredentialStore

// Run exercises the CredentialStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	registeredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create then find returns pending record", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id, err := store.Create(ctx, "alice@example.com", "hash-1", registeredAt)
		require.NoError(t, err)
		assert.NotEqual(t, ulid.ULID{}, id)

		rec, err := store.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID)
		assert.Equal(t, "alice@example.com", rec.Email)
		assert.Equal(t, "hash-1", rec.SecretHash)
		assert.False(t, rec.IsActive)
		assert.Nil(t, rec.ActivatedAt)
		assert.True(t, registeredAt.Equal(rec.RegisteredAt))
		assert.Equal(t, account.StatePending, rec.State())
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Create(ctx, "dup@example.com", "hash-1", registeredAt)
		require.NoError(t, err)

		_, err = store.Create(ctx, "dup@example.com", "hash-2", registeredAt)
		require.ErrorIs(t, err, account.ErrDuplicateEmail)

		rec, err := store.FindByEmail(ctx, "dup@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash-1", rec.SecretHash, "first registration must be kept")
	})

	t.Run("find unknown email", func(t *testing.T) {
		store := newStore(t)

		_, err := store.FindByEmail(context.Background(), "nobody@example.com")
		require.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("update unknown id", func(t *testing.T) {
		store := newStore(t)
		hash := "hash-2"

		err := store.Update(context.Background(), account.NewID(), account.Mutation{SecretHash: &hash})
		require.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("empty mutation is rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id, err := store.Create(ctx, "empty@example.com", "hash-1", registeredAt)
		require.NoError(t, err)

		err = store.Update(ctx, id, account.Mutation{ExpectedVersion: 1})
		require.ErrorIs(t, err, account.ErrEmptyMutation)

		rec, err := store.FindByEmail(ctx, "empty@example.com")
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Version)
	})

	t.Run("activation sets timestamp and bumps version", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id, err := store.Create(ctx, "bob@example.com", "hash-1", registeredAt)
		require.NoError(t, err)
		before, err := store.FindByEmail(ctx, "bob@example.com")
		require.NoError(t, err)

		activatedAt := registeredAt.Add(time.Hour)
		err = store.Update(ctx, id, account.Mutation{
			ExpectedVersion: before.Version,
			ActivatedAt:     &activatedAt,
		})
		require.NoError(t, err)

		rec, err := store.FindByEmail(ctx, "bob@example.com")
		require.NoError(t, err)
		assert.True(t, rec.IsActive)
		require.NotNil(t, rec.ActivatedAt)
		assert.True(t, activatedAt.Equal(*rec.ActivatedAt))
		assert.Equal(t, before.Version+1, rec.Version)
		assert.Equal(t, "hash-1", rec.SecretHash)
	})

	t.Run("second activation is a conflict", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id, err := store.Create(ctx, "carol@example.com", "hash-1", registeredAt)
		require.NoError(t, err)

		first := registeredAt.Add(time.Minute)
		require.NoError(t, store.Update(ctx, id, account.Mutation{ActivatedAt: &first}))

		second := registeredAt.Add(time.Hour)
		err = store.Update(ctx, id, account.Mutation{ActivatedAt: &second})
		require.ErrorIs(t, err, account.ErrConcurrentModification)

		rec, err := store.FindByEmail(ctx, "carol@example.com")
		require.NoError(t, err)
		require.NotNil(t, rec.ActivatedAt)
		assert.True(t, first.Equal(*rec.ActivatedAt), "activation timestamp must not be rewritten")
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id, err := store.Create(ctx, "dave@example.com", "hash-1", registeredAt)
		require.NoError(t, err)
		rec, err := store.FindByEmail(ctx, "dave@example.com")
		require.NoError(t, err)

		newer := "hash-2"
		require.NoError(t, store.Update(ctx, id, account.Mutation{ExpectedVersion: rec.Version, SecretHash: &newer}))

		stale := "hash-3"
		err = store.Update(ctx, id, account.Mutation{ExpectedVersion: rec.Version, SecretHash: &stale})
		require.ErrorIs(t, err, account.ErrConcurrentModification)

		got, err := store.FindByEmail(ctx, "dave@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash-2", got.SecretHash)
	})

	t.Run("secret update keeps state", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id, err := store.Create(ctx, "erin@example.com", "hash-1", registeredAt)
		require.NoError(t, err)

		newer := "hash-2"
		require.NoError(t, store.Update(ctx, id, account.Mutation{SecretHash: &newer}))

		rec, err := store.FindByEmail(ctx, "erin@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash-2", rec.SecretHash)
		assert.False(t, rec.IsActive)
		assert.Nil(t, rec.ActivatedAt)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Create(ctx, "frank@example.com", "hash-1", registeredAt)
		require.NoError(t, err)

		rec, err := store.FindByEmail(ctx, "frank@example.com")
		require.NoError(t, err)
		rec.SecretHash = "tampered"
		rec.IsActive = true

		again, err := store.FindByEmail(ctx, "frank@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash-1", again.SecretHash)
		assert.False(t, again.IsActive)
	})

	t.Run("concurrent creates for one email admit exactly one", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const writers = 8
		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			successes  int
			duplicates int
		)
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Create(ctx, "race@example.com", "hash", registeredAt)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, account.ErrDuplicateEmail):
					duplicates++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, writers-1, duplicates)
	})
}
