// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/httpapi"
)

// shutdownTimeout bounds graceful shutdown of the servers.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *Deps) *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the credential lifecycle HTTP API, plus metrics and health
probes on the metrics address. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadEnvironment(cmd, deps)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), env, autoMigrate)
		},
	}

	cmd.Flags().String("http-addr", "", "HTTP API listen address")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty in config = disabled)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", true, "apply PostgreSQL migrations before serving")

	return cmd
}

func newHTTPServer(addr string, handler http.Handler) HTTPServer {
	return httpapi.NewServer(addr, handler)
}

func runServe(ctx context.Context, env *environment, autoMigrate bool) error {
	cfg := env.cfg
	logger := env.logger

	logger.Info("starting accountd",
		"version", version,
		"driver", cfg.Database.Driver,
		"http_addr", cfg.HTTP.Addr,
	)

	if autoMigrate && cfg.Database.Driver == config.DriverPostgres {
		if err := migrateUp(env); err != nil {
			return err
		}
	}

	opened, err := env.deps.StoreOpener(ctx, cfg.Database)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("driver", cfg.Database.Driver).Wrap(err)
	}
	defer closeQuietly(env, "credential store", opened.Close)

	parent := ctx
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var recorder account.Recorder
	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = env.deps.ObservabilityServerFactory(cfg.Metrics.Addr, opened.Ping)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, env, cancel, obsErrCh, "observability")
		recorder = obsServer.Metrics()
	}

	mgr, err := newManager(cfg, opened.Store, env, recorder)
	if err != nil {
		stopServers(env, obsServer)
		return err
	}

	var httpRecorder httpapi.Recorder
	if obsServer != nil {
		httpRecorder = obsServer.Metrics()
	}
	handler, err := httpapi.NewHandler(mgr, logger, httpRecorder)
	if err != nil {
		stopServers(env, obsServer)
		return err
	}

	apiServer := env.deps.HTTPServerFactory(cfg.HTTP.Addr, handler.Routes())
	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopServers(env, obsServer)
		return oops.With("operation", "start http server").Wrap(err)
	}
	go monitorServerErrors(ctx, env, cancel, apiErrCh, "http")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("accountd ready", "http_addr", apiServer.Addr())

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		if parent.Err() == nil {
			// Cancelled by a failing server rather than by the caller.
			serveErr = context.Cause(ctx)
		} else {
			logger.Info("context cancelled, shutting down")
		}
	}

	stopServers(env, apiServer, obsServer)
	logger.Info("shutdown complete")
	return serveErr
}

type stopper interface {
	Stop(ctx context.Context) error
}

// stopServers stops each non-nil server in order within shutdownTimeout.
func stopServers(env *environment, servers ...stopper) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if s == nil {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			env.logger.Warn("error stopping server", "error", err)
		}
	}
}

// monitorServerErrors cancels ctx with the server's failure as the cause.
// It exits when an error is received, the channel is closed, or the context
// is cancelled.
func monitorServerErrors(ctx context.Context, env *environment, cancel context.CancelCauseFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			env.logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel(oops.Code("SERVER_FAILED").With("server", serverName).Wrap(err))
		}
	case <-ctx.Done():
	}
}
