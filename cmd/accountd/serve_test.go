// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/observability"
	"github.com/holomush/accountd/internal/store"
	"github.com/holomush/accountd/pkg/errutil"
)

type fakeServer struct {
	addr     string
	startErr error
	serveErr error
	started  bool
	stopped  bool
	errCh    chan error
}

func (s *fakeServer) Start() (<-chan error, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.started = true
	s.errCh = make(chan error, 1)
	if s.serveErr != nil {
		s.errCh <- s.serveErr
	}
	return s.errCh, nil
}

func (s *fakeServer) Stop(context.Context) error {
	s.stopped = true
	return nil
}

func (s *fakeServer) Addr() string { return s.addr }

type fakeObservabilityServer struct {
	fakeServer
	ready   observability.ReadinessChecker
	metrics *observability.Metrics
}

func (s *fakeObservabilityServer) Metrics() *observability.Metrics { return s.metrics }

type fakeMigrator struct {
	upCalled    bool
	downCalled  bool
	forced      int
	closeCalled bool
	upErr       error
	status      store.Status
}

func (m *fakeMigrator) Up() error                     { m.upCalled = true; return m.upErr }
func (m *fakeMigrator) Down() error                   { m.downCalled = true; return nil }
func (m *fakeMigrator) Status() (store.Status, error) { return m.status, nil }
func (m *fakeMigrator) Force(v int) error             { m.forced = v; return nil }
func (m *fakeMigrator) Close() error                  { m.closeCalled = true; return nil }

type serveFixture struct {
	deps      *Deps
	api       *fakeServer
	obs       *fakeObservabilityServer
	migrator  *fakeMigrator
	handler   http.Handler
	storeURL  string
	pingCalls int
}

func newServeFixture() *serveFixture {
	f := &serveFixture{
		api:      &fakeServer{addr: "127.0.0.1:8080"},
		obs:      &fakeObservabilityServer{metrics: observability.NewMetrics(prometheus.NewRegistry())},
		migrator: &fakeMigrator{},
	}
	base := memoryDeps()
	f.deps = &Deps{
		StoreOpener: func(ctx context.Context, cfg config.DatabaseConfig) (*OpenStore, error) {
			f.storeURL = cfg.URL
			opened, err := base.StoreOpener(ctx, cfg)
			if err != nil {
				return nil, err
			}
			opened.Ping = func(context.Context) error { f.pingCalls++; return nil }
			return opened, nil
		},
		MigratorFactory: func(string) (Migrator, error) { return f.migrator, nil },
		ObservabilityServerFactory: func(_ string, ready observability.ReadinessChecker) ObservabilityServer {
			f.obs.ready = ready
			return f.obs
		},
		HTTPServerFactory: func(_ string, handler http.Handler) HTTPServer {
			f.handler = handler
			return f.api
		},
	}
	return f
}

func runServeCmd(t *testing.T, deps *Deps, args ...string) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	// Cancel immediately so serve returns once everything has started.
	cancel()

	cmd := NewRootCmd(deps)
	cmd.SetArgs(append([]string{"serve"}, args...))
	return cmd.ExecuteContext(ctx)
}

func TestServe_StartsAndStopsServers(t *testing.T) {
	cfgPath := isolate(t)
	f := newServeFixture()

	err := runServeCmd(t, f.deps, "--config", cfgPath, "--database-driver", "memory")
	require.NoError(t, err)

	assert.True(t, f.api.started)
	assert.True(t, f.api.stopped)
	assert.True(t, f.obs.started)
	assert.True(t, f.obs.stopped)
	assert.NotNil(t, f.handler)
	assert.False(t, f.migrator.upCalled, "memory driver needs no migrations")

	require.NotNil(t, f.obs.ready)
	require.NoError(t, f.obs.ready(context.Background()))
	assert.Equal(t, 1, f.pingCalls, "readiness pings the store")
}

func TestServe_ReturnsServerFailure(t *testing.T) {
	cfgPath := isolate(t)
	f := newServeFixture()
	f.api.serveErr = errors.New("accept tcp 127.0.0.1:8080: use of closed network connection")

	cmd := NewRootCmd(f.deps)
	cmd.SetArgs([]string{"serve", "--config", cfgPath, "--database-driver", "memory"})
	err := cmd.ExecuteContext(context.Background())

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SERVER_FAILED")
	errutil.AssertErrorContext(t, err, "server", "http")
	assert.Contains(t, err.Error(), "use of closed network connection")
	assert.True(t, f.api.stopped)
	assert.True(t, f.obs.stopped)
}

func TestServe_MetricsDisabled(t *testing.T) {
	isolate(t)
	cfgPath := writeFile(t, testConfig+"metrics:\n  addr: \"\"\n")
	f := newServeFixture()

	require.NoError(t, runServeCmd(t, f.deps, "--config", cfgPath, "--database-driver", "memory"))

	assert.True(t, f.api.started)
	assert.False(t, f.obs.started)
}

func TestServe_AutoMigratesPostgres(t *testing.T) {
	cfgPath := isolate(t)
	f := newServeFixture()

	err := runServeCmd(t, f.deps, "--config", cfgPath,
		"--database-driver", "postgres", "--database-url", "postgres://accounts@db/accounts")
	require.NoError(t, err)

	assert.True(t, f.migrator.upCalled)
	assert.True(t, f.migrator.closeCalled)
	assert.Equal(t, "postgres://accounts@db/accounts", f.storeURL)
}

func TestServe_AutoMigrateCanBeDisabled(t *testing.T) {
	cfgPath := isolate(t)
	f := newServeFixture()

	err := runServeCmd(t, f.deps, "--config", cfgPath, "--auto-migrate=false",
		"--database-driver", "postgres", "--database-url", "postgres://accounts@db/accounts")
	require.NoError(t, err)

	assert.False(t, f.migrator.upCalled)
}

func TestServe_MigrationFailureAborts(t *testing.T) {
	cfgPath := isolate(t)
	f := newServeFixture()
	f.migrator.upErr = errors.New("dirty database")

	err := runServeCmd(t, f.deps, "--config", cfgPath,
		"--database-driver", "postgres", "--database-url", "postgres://accounts@db/accounts")
	errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
	assert.False(t, f.api.started)
}

func TestServe_HTTPStartFailureStopsObservability(t *testing.T) {
	cfgPath := isolate(t)
	f := newServeFixture()
	f.api.startErr = errors.New("address in use")

	err := runServeCmd(t, f.deps, "--config", cfgPath, "--database-driver", "memory")
	require.Error(t, err)
	assert.True(t, f.obs.stopped)
}

func TestServe_StoreFailure(t *testing.T) {
	cfgPath := isolate(t)
	f := newServeFixture()
	f.deps.StoreOpener = func(context.Context, config.DatabaseConfig) (*OpenStore, error) {
		return nil, errors.New("connection refused")
	}

	err := runServeCmd(t, f.deps, "--config", cfgPath, "--database-driver", "memory")
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
	assert.False(t, f.api.started)
}

func TestMigrateCommands(t *testing.T) {
	cfgPath := isolate(t)
	pg := []string{"--config", cfgPath, "--database-driver", "postgres", "--database-url", "postgres://accounts@db/accounts"}

	t.Run("up", func(t *testing.T) {
		f := newServeFixture()
		out, err := execute(t, f.deps, "", append([]string{"migrate"}, pg...)...)
		require.NoError(t, err)
		assert.True(t, f.migrator.upCalled)
		assert.True(t, f.migrator.closeCalled)
		assert.Contains(t, out, "Migrations completed successfully")
	})

	t.Run("status", func(t *testing.T) {
		f := newServeFixture()
		f.migrator.status = store.Status{Version: 1, Pending: []uint{2}}
		out, err := execute(t, f.deps, "", append([]string{"migrate", "status"}, pg...)...)
		require.NoError(t, err)
		assert.Contains(t, out, "Schema version: 1 (000001_create_users)")
		assert.Contains(t, out, "Pending: 000002_users_email_normalized")
	})

	t.Run("down", func(t *testing.T) {
		f := newServeFixture()
		_, err := execute(t, f.deps, "", append([]string{"migrate", "down"}, pg...)...)
		require.NoError(t, err)
		assert.True(t, f.migrator.downCalled)
	})

	t.Run("force", func(t *testing.T) {
		f := newServeFixture()
		_, err := execute(t, f.deps, "", append([]string{"migrate", "force", "1"}, pg...)...)
		require.NoError(t, err)
		assert.Equal(t, 1, f.migrator.forced)

		_, err = execute(t, f.deps, "", append([]string{"migrate", "force", "one"}, pg...)...)
		errutil.AssertErrorCode(t, err, "INVALID_VERSION")
	})

	t.Run("requires postgres", func(t *testing.T) {
		f := newServeFixture()
		_, err := execute(t, f.deps, "", "migrate", "--config", cfgPath, "--database-driver", "sqlite")
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
		assert.False(t, f.migrator.upCalled)
	})
}
