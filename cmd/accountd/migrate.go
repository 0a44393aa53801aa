// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/store"
)

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Run all pending database migrations against the PostgreSQL database.
SQLite databases create their schema when opened and need no migrations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(env *environment, m Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(_ *environment, m Migrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				if st.Version == 0 {
					cmd.Println("Schema version: none")
				} else {
					cmd.Printf("Schema version: %d (%s)\n", st.Version, store.MigrationName(st.Version))
				}
				if st.Dirty {
					cmd.Println("Schema is DIRTY: a migration failed part way; fix it and run 'migrate force'")
				}
				if len(st.Pending) == 0 {
					cmd.Println("No pending migrations")
				}
				for _, v := range st.Pending {
					cmd.Printf("Pending: %s\n", store.MigrationName(v))
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(_ *environment, m Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("Migrations rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it, clearing the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
			}
			return withMigrator(cmd, deps, func(_ *environment, m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Schema version forced to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator loads configuration, opens a migrator and runs fn.
func withMigrator(cmd *cobra.Command, deps *Deps, fn func(*environment, Migrator) error) error {
	env, err := loadEnvironment(cmd, deps)
	if err != nil {
		return err
	}
	if env.cfg.Database.Driver != config.DriverPostgres {
		return oops.Code("CONFIG_INVALID").
			With("driver", env.cfg.Database.Driver).
			Errorf("migrations apply to the postgres driver only")
	}

	m, err := env.deps.MigratorFactory(env.cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer closeQuietly(env, "migrator", m.Close)

	if err := fn(env, m); err != nil {
		return oops.Code("MIGRATION_FAILED").Wrap(err)
	}
	return nil
}

// migrateUp applies pending migrations before serving.
func migrateUp(env *environment) error {
	m, err := env.deps.MigratorFactory(env.cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect migrator").Wrap(err)
	}
	defer closeQuietly(env, "migrator", m.Close)

	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "auto-migrate").Wrap(err)
	}
	env.logger.Info("database migrations applied")
	return nil
}
