// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/accountd/internal/store"
)

var _ = Describe("Migrator", func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
		migrator  *store.Migrator
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("accountd_test"),
			postgres.WithUsername("accountd"),
			postgres.WithPassword("accountd"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
	})

	It("starts empty and applies every migration", func() {
		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Version).To(BeZero())
		Expect(st.Pending).NotTo(BeEmpty())

		Expect(migrator.Up()).To(Succeed())

		st, err = migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Pending).To(BeEmpty())
		Expect(st.Dirty).To(BeFalse())
	})

	It("is idempotent", func() {
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Up()).To(Succeed())
	})

	It("rolls back one step and forward again", func() {
		Expect(migrator.Up()).To(Succeed())
		latest, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())

		Expect(migrator.Steps(-1)).To(Succeed())
		v, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(latest - 1))

		Expect(migrator.Steps(1)).To(Succeed())
		v, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(latest))
	})

	Describe("users table constraints", func() {
		var pool *pgxpool.Pool

		BeforeEach(func() {
			Expect(migrator.Up()).To(Succeed())
			var err error
			pool, err = pgxpool.New(ctx, connStr)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			pool.Close()
		})

		insert := func(id, email string, active bool, activatedAt *time.Time) error {
			_, err := pool.Exec(ctx, `
				INSERT INTO users (id, email, secret_hash, is_active, registered_at, activated_at)
				VALUES ($1, $2, 'hash', $3, $4, $5)
			`, id, email, active, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), activatedAt)
			return err
		}

		It("rejects duplicate emails", func() {
			Expect(insert("01HZ0000000000000000000001", "a@example.com", false, nil)).To(Succeed())
			Expect(insert("01HZ0000000000000000000002", "a@example.com", false, nil)).NotTo(Succeed())
		})

		It("rejects active rows without an activation time", func() {
			Expect(insert("01HZ0000000000000000000003", "b@example.com", true, nil)).NotTo(Succeed())
		})

		It("rejects activation before registration", func() {
			early := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
			Expect(insert("01HZ0000000000000000000004", "c@example.com", true, &early)).NotTo(Succeed())
		})

		It("rejects unnormalized emails", func() {
			Expect(insert("01HZ0000000000000000000005", "Mixed@Example.com", false, nil)).NotTo(Succeed())
		})
	})
})
