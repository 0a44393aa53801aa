// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accountd/internal/account"
)

// accountCommand builds a one-shot command that opens the store, wires a
// Manager and runs fn.
func accountCommand(deps *Deps, use, short string, fn func(cmd *cobra.Command, mgr *account.Manager, email string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " EMAIL",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd, deps)
			if err != nil {
				return err
			}

			opened, err := env.deps.StoreOpener(cmd.Context(), env.cfg.Database)
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").With("driver", env.cfg.Database.Driver).Wrap(err)
			}
			defer closeQuietly(env, "credential store", opened.Close)

			mgr, err := newManager(env.cfg, opened.Store, env, nil)
			if err != nil {
				return err
			}
			return fn(cmd, mgr, args[0])
		},
	}
}

// NewRegisterCmd creates the register subcommand.
func NewRegisterCmd(deps *Deps) *cobra.Command {
	var password string
	cmd := accountCommand(deps, "register", "Register a new pending account",
		func(cmd *cobra.Command, mgr *account.Manager, email string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			id, err := mgr.Register(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			cmd.Println("Registration successful")
			cmd.Printf("ID: %s\n", id)
			return nil
		})
	cmd.Flags().StringVar(&password, "password", "", "password (default: first line of stdin)")
	return cmd
}

// NewActivateCmd creates the activate subcommand.
func NewActivateCmd(deps *Deps) *cobra.Command {
	return accountCommand(deps, "activate", "Activate a pending account",
		func(cmd *cobra.Command, mgr *account.Manager, email string) error {
			if err := mgr.ActivateUser(cmd.Context(), email); err != nil {
				return err
			}
			cmd.Println("User activated")
			return nil
		})
}

// NewAuthenticateCmd creates the authenticate subcommand.
func NewAuthenticateCmd(deps *Deps) *cobra.Command {
	var password string
	cmd := accountCommand(deps, "authenticate", "Check an account's credentials",
		func(cmd *cobra.Command, mgr *account.Manager, email string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			rec, err := mgr.Authenticate(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			cmd.Println("Authentication successful")
			cmd.Printf("ID: %s\n", rec.ID)
			cmd.Printf("Registered: %s\n", rec.RegisteredAt.Format(time.RFC3339))
			if rec.ActivatedAt != nil {
				cmd.Printf("Activated: %s\n", rec.ActivatedAt.Format(time.RFC3339))
			}
			return nil
		})
	cmd.Flags().StringVar(&password, "password", "", "password (default: first line of stdin)")
	return cmd
}

// NewResetPasswordCmd creates the reset-password subcommand.
func NewResetPasswordCmd(deps *Deps) *cobra.Command {
	var password string
	cmd := accountCommand(deps, "reset-password", "Replace an account's password",
		func(cmd *cobra.Command, mgr *account.Manager, email string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			if err := mgr.ResetPassword(cmd.Context(), email, pw); err != nil {
				return err
			}
			cmd.Println("Password reset successfully")
			return nil
		})
	cmd.Flags().StringVar(&password, "password", "", "new password (default: first line of stdin)")
	return cmd
}

// readPassword returns flagValue, or the first line of stdin when the flag
// is unset. Only the line terminator is stripped.
func readPassword(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", oops.Code("PASSWORD_REQUIRED").Errorf("password is required: pass --password or write it to stdin")
	}
	return line, nil
}
