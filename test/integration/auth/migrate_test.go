// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

//go:build integration

package auth_test

import (
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/gatekeep/gatekeep/internal/store"
)

var _ = Describe("Migrator", Serial, func() {
	It("reports the applied schema", func() {
		m, err := store.NewMigrator(env.connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(m.Close()).To(Succeed()) }()

		version, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())

		applied, pending, err := m.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(Equal([]uint{1}))
		Expect(pending).To(BeEmpty())

		Expect(m.Up()).To(Succeed(), "up with nothing pending is a no-op")
	})

	It("rolls the schema down and back up", func() {
		m, err := store.NewMigrator(env.connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(m.Close()).To(Succeed()) }()

		Expect(m.Down()).To(Succeed())
		version, _, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(0)))

		var tables int
		Expect(env.pool.QueryRow(env.ctx,
			`SELECT count(*) FROM information_schema.tables WHERE table_name = 'users'`).Scan(&tables)).To(Succeed())
		Expect(tables).To(Equal(0))

		Expect(m.Up()).To(Succeed())
		version, _, err = m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))

		// Pooled connections cache statements against the dropped tables.
		env.pool.Reset()
	})
})
