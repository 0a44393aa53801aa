// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/logging"
)

const serviceName = "accountd"

// environment is what every command needs after configuration is loaded.
type environment struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   *Deps
}

// NewRootCmd creates the root command. deps may be nil.
func NewRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "accountd",
		Short: "accountd - credential lifecycle service",
		Long: `accountd registers accounts, activates them, authenticates
credentials and resets passwords, backed by PostgreSQL or SQLite.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file path (default: $XDG_CONFIG_HOME/accountd/config.yaml)")
	flags.String("log-format", "", "log format (json or text)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("database-driver", "", "credential store (postgres, sqlite or memory)")
	flags.String("database-url", "", "PostgreSQL connection URL (default: $DATABASE_URL)")
	flags.String("database-path", "", "SQLite database file")

	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewRegisterCmd(deps))
	cmd.AddCommand(NewActivateCmd(deps))
	cmd.AddCommand(NewAuthenticateCmd(deps))
	cmd.AddCommand(NewResetPasswordCmd(deps))
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadEnvironment loads configuration for cmd and installs the default logger.
func loadEnvironment(cmd *cobra.Command, deps *Deps) (*environment, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, level, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	return &environment{cfg: cfg, logger: logger, deps: deps}, nil
}
