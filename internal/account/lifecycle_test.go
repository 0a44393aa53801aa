// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/account/memory"
	"github.com/holomush/accountd/pkg/errutil"
)

func newLifecycle(t *testing.T, opts ...account.Option) (*account.Manager, *memory.Store) {
	t.Helper()
	store := memory.New()
	base := []account.Option{
		account.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		account.WithRetryBackoff(time.Millisecond),
	}
	mgr, err := account.NewManager(store, fastArgon2(t), append(base, opts...)...)
	require.NoError(t, err)
	return mgr, store
}

func TestLifecycle_Scenario(t *testing.T) {
	ctx := context.Background()
	mgr, store := newLifecycle(t)
	const email = "user@example.com"

	id, err := mgr.Register(ctx, email, "Passw0rd!")
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = mgr.Authenticate(ctx, email, "Passw0rd!")
	errutil.AssertErrorCode(t, err, account.CodeAccountNotActive)

	require.NoError(t, mgr.ActivateUser(ctx, email))

	rec, err := mgr.Authenticate(ctx, email, "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, account.StateActive, rec.State())

	_, err = mgr.Authenticate(ctx, email, "wrong")
	errutil.AssertErrorCode(t, err, account.CodeInvalidCredentials)

	require.NoError(t, mgr.ResetPassword(ctx, email, "NewPass1!"))

	_, err = mgr.Authenticate(ctx, email, "Passw0rd!")
	errutil.AssertErrorCode(t, err, account.CodeInvalidCredentials)

	rec, err = mgr.Authenticate(ctx, email, "NewPass1!")
	require.NoError(t, err)
	assert.True(t, rec.IsActive, "reset keeps the account active")
	assert.Equal(t, 1, store.Len())
}

func TestLifecycle_RegisterThenAuthenticateIsNotActive(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newLifecycle(t)

	pairs := []struct{ email, password string }{
		{"a@example.com", "Passw0rd!"},
		{"B.Person+x@Example.org", "päss-wörd-1"},
		{"c@sub.example.co.uk", "12345678!"},
	}
	for _, p := range pairs {
		_, err := mgr.Register(ctx, p.email, p.password)
		require.NoError(t, err)

		for _, attempt := range []string{p.password, "not-the-password"} {
			_, err = mgr.Authenticate(ctx, p.email, attempt)
			require.ErrorIs(t, err, account.ErrAccountNotActive)
			assert.NotErrorIs(t, err, account.ErrInvalidCredentials)
		}
	}
}

func TestLifecycle_EmailIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newLifecycle(t)

	_, err := mgr.Register(ctx, "  Mixed.Case@Example.COM ", "Passw0rd!")
	require.NoError(t, err)

	_, err = mgr.Register(ctx, "mixed.case@example.com", "Passw0rd!")
	errutil.AssertErrorCode(t, err, account.CodeDuplicateEmail)

	require.NoError(t, mgr.ActivateUser(ctx, "MIXED.CASE@EXAMPLE.COM"))
	rec, err := mgr.Authenticate(ctx, "mixed.case@example.com\n", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, "mixed.case@example.com", rec.Email)
}

func TestLifecycle_ActivationIsOneWay(t *testing.T) {
	ctx := context.Background()
	clock := testNow
	mgr, store := newLifecycle(t, account.WithClock(func() time.Time { return clock }))

	_, err := mgr.Register(ctx, "alice@example.com", "Passw0rd!")
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	require.NoError(t, mgr.ActivateUser(ctx, "alice@example.com"))
	first, err := store.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	err = mgr.ActivateUser(ctx, "alice@example.com")
	errutil.AssertErrorCode(t, err, account.CodeAlreadyActive)

	second, err := store.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, second.ActivatedAt)
	assert.True(t, first.ActivatedAt.Equal(*second.ActivatedAt))
	assert.True(t, testNow.Add(time.Hour).Equal(*second.ActivatedAt))
	assert.False(t, second.ActivatedAt.Before(second.RegisteredAt))
}

func TestLifecycle_StoredHashIsNotPlaintext(t *testing.T) {
	ctx := context.Background()
	mgr, store := newLifecycle(t)

	_, err := mgr.Register(ctx, "alice@example.com", "Passw0rd!")
	require.NoError(t, err)
	require.NoError(t, mgr.ResetPassword(ctx, "alice@example.com", "NewPass1!"))

	rec, err := store.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.SecretHash)
	assert.NotContains(t, rec.SecretHash, "Passw0rd!")
	assert.NotContains(t, rec.SecretHash, "NewPass1!")
	assert.False(t, rec.IsActive, "reset does not activate")
}

func TestLifecycle_ConcurrentRegistration(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	mgr, store := newLifecycle(t)

	const callers = 6
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Register(ctx, "race@example.com", "Passw0rd!")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, dup int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, account.ErrDuplicateEmail):
			errutil.AssertErrorCode(t, err, account.CodeDuplicateEmail)
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, dup)
	assert.Equal(t, 1, store.Len())
}

func TestLifecycle_ConcurrentActivation(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	mgr, store := newLifecycle(t)

	_, err := mgr.Register(ctx, "alice@example.com", "Passw0rd!")
	require.NoError(t, err)

	const callers = 6
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- mgr.ActivateUser(ctx, "alice@example.com")
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		code := errutil.Code(err)
		assert.Contains(t, []string{account.CodeAlreadyActive, account.CodeConcurrentModification}, code)
	}
	assert.Equal(t, 1, ok, "exactly one activation transitions the record")

	rec, err := store.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, rec.IsActive)
	assert.Equal(t, int64(2), rec.Version)
}

func newMemoryStore() *memory.Store {
	return memory.New()
}
