// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/account/memory"
	"github.com/holomush/accountd/internal/account/postgres"
	"github.com/holomush/accountd/internal/account/sqlite"
	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/observability"
	"github.com/holomush/accountd/internal/store"
	"github.com/holomush/accountd/internal/xdg"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// StoreOpener opens the configured credential store.
	// Default: openStore
	StoreOpener func(ctx context.Context, cfg config.DatabaseConfig) (*OpenStore, error)

	// MigratorFactory creates a schema migrator for a PostgreSQL URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// HTTPServerFactory creates the API server.
	// Default: httpapi.NewServer
	HTTPServerFactory func(addr string, handler http.Handler) HTTPServer
}

// OpenStore is an open credential store with its lifecycle hooks.
type OpenStore struct {
	Store account.CredentialStore
	Ping  func(ctx context.Context) error
	Close func() error
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Status() (store.Status, error)
	Force(version int) error
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// HTTPServer wraps the methods used from httpapi.Server.
type HTTPServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.StoreOpener == nil {
		out.StoreOpener = openStore
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if out.HTTPServerFactory == nil {
		out.HTTPServerFactory = newHTTPServer
	}
	return &out
}

// openStore opens the store selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (*OpenStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return &OpenStore{
			Store: postgres.NewStore(pool),
			Ping:  pool.Ping,
			Close: func() error { pool.Close(); return nil },
		}, nil

	case config.DriverSQLite:
		if err := xdg.EnsureDir(filepath.Dir(cfg.Path)); err != nil {
			return nil, err
		}
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return &OpenStore{Store: s, Ping: s.Ping, Close: s.Close}, nil

	case config.DriverMemory:
		return &OpenStore{
			Store: memory.New(),
			Ping:  func(context.Context) error { return nil },
			Close: func() error { return nil },
		}, nil

	default:
		return nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Driver).Errorf("unknown database driver")
	}
}

// newHasher builds a MultiHasher that hashes with the configured algorithm
// and verifies hashes of either algorithm.
func newHasher(cfg config.HasherConfig) (account.SecretHasher, error) {
	a2, err := account.NewArgon2idHasherWithParams(cfg.Argon2)
	if err != nil {
		return nil, err
	}
	bc, err := account.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	var primary account.SecretHasher = a2
	if cfg.Algorithm == config.AlgorithmBcrypt {
		primary = bc
	}
	return account.NewMultiHasher(primary, a2, bc)
}

// newManager wires a Manager for cfg. metrics may be nil.
func newManager(cfg *config.Config, credentials account.CredentialStore, env *environment, metrics account.Recorder) (*account.Manager, error) {
	hasher, err := newHasher(cfg.Hasher)
	if err != nil {
		return nil, err
	}

	opts := []account.Option{
		account.WithLogger(env.logger),
		account.WithPasswordPolicy(cfg.Password),
		account.WithActivationPolicy(account.ActivationPolicy(cfg.Lifecycle.ActivationPolicy)),
		account.WithUnknownUserMasking(cfg.Lifecycle.MaskUnknownUser),
		account.WithRetryBackoff(cfg.Lifecycle.Backoff()),
	}
	if metrics != nil {
		opts = append(opts, account.WithMetrics(metrics))
	}
	return account.NewManager(credentials, hasher, opts...)
}

// closeQuietly closes c, logging instead of returning the error.
func closeQuietly(env *environment, what string, c func() error) {
	if err := c(); err != nil {
		env.logger.Warn("close failed", "resource", what, "error", err)
	}
}
