// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

//go:build integration

package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/gatekeep/gatekeep/internal/auth"
)

func newUser(email string) *auth.User {
	hash := "hash"
	return &auth.User{Email: email, PasswordHash: &hash, IsActive: true, DateJoined: dbNow()}
}

func newToken(userID int64, value string, now time.Time, ttl time.Duration) *auth.RedeemableToken {
	return &auth.RedeemableToken{
		ID:        ulid.Make(),
		Token:     value,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

var _ = Describe("UserRepository", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		resetTables(ctx)
	})

	It("assigns ids and round-trips every column", func() {
		user := newUser("a@b.com")
		user.IsStaff = true
		Expect(env.Users.Create(ctx, user)).To(Succeed())
		Expect(user.ID).To(Equal(int64(1)))

		got, err := env.Users.GetByEmail(ctx, "a@b.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(user.ID))
		Expect(*got.PasswordHash).To(Equal("hash"))
		Expect(got.IsActive).To(BeTrue())
		Expect(got.IsStaff).To(BeTrue())
		Expect(got.IsSuperuser).To(BeFalse())
		Expect(got.DateJoined).To(BeTemporally("~", user.DateJoined, time.Millisecond))
		Expect(got.DeletedAt).To(BeNil())
	})

	It("rejects a second live user with the same email", func() {
		Expect(env.Users.Create(ctx, newUser("a@b.com"))).To(Succeed())
		err := env.Users.Create(ctx, newUser("a@b.com"))
		Expect(err).To(MatchError(auth.ErrDuplicateEmail))
	})

	It("frees the email once the holder is soft-deleted", func() {
		first := newUser("a@b.com")
		Expect(env.Users.Create(ctx, first)).To(Succeed())
		Expect(env.Users.SoftDelete(ctx, first.ID, dbNow())).To(Succeed())

		_, err := env.Users.GetByEmail(ctx, "a@b.com")
		Expect(err).To(MatchError(auth.ErrNotFound))

		second := newUser("a@b.com")
		Expect(env.Users.Create(ctx, second)).To(Succeed())

		all, err := env.Users.ListByEmailWithDeleted(ctx, "a@b.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
		Expect(all[0].ID).To(Equal(second.ID))

		deleted, err := env.Users.ListDeletedByEmail(ctx, "a@b.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(deleted).To(HaveLen(1))
		Expect(deleted[0].ID).To(Equal(first.ID))
		Expect(deleted[0].IsActive).To(BeFalse())

		byID, err := env.Users.GetByID(ctx, first.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID.DeletedAt).NotTo(BeNil())
	})

	It("does not modify deleted users", func() {
		user := newUser("a@b.com")
		Expect(env.Users.Create(ctx, user)).To(Succeed())
		Expect(env.Users.SoftDelete(ctx, user.ID, dbNow())).To(Succeed())

		Expect(env.Users.SetActive(ctx, user.ID, true)).To(MatchError(auth.ErrNotFound))
		Expect(env.Users.UpdatePassword(ctx, user.ID, nil)).To(MatchError(auth.ErrNotFound))
	})
})

var _ = Describe("TokenRepository", func() {
	var (
		ctx  context.Context
		user *auth.User
		now  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		resetTables(ctx)
		user = newUser("a@b.com")
		Expect(env.Users.Create(ctx, user)).To(Succeed())
		now = dbNow()
	})

	It("redeems a token exactly once", func() {
		Expect(env.MagicLinks.Create(ctx, newToken(user.ID, "t1", now, time.Hour))).To(Succeed())

		redeemed, err := env.MagicLinks.Redeem(ctx, "t1", now)
		Expect(err).NotTo(HaveOccurred())
		Expect(redeemed.UserID).To(Equal(user.ID))
		Expect(redeemed.UsedAt).NotTo(BeNil())

		_, err = env.MagicLinks.Redeem(ctx, "t1", now)
		Expect(err).To(MatchError(auth.ErrTokenAlreadyUsed))
	})

	It("classifies failures", func() {
		Expect(env.MagicLinks.Create(ctx, newToken(user.ID, "old", now.Add(-2*time.Hour), time.Hour))).To(Succeed())

		_, err := env.MagicLinks.Redeem(ctx, "old", now)
		Expect(err).To(MatchError(auth.ErrTokenExpired))

		_, err = env.MagicLinks.Redeem(ctx, "missing", now)
		Expect(err).To(MatchError(auth.ErrTokenNotFound))
	})

	It("keeps purposes apart", func() {
		Expect(env.MagicLinks.Create(ctx, newToken(user.ID, "shared", now, time.Hour))).To(Succeed())

		_, err := env.Resets.Redeem(ctx, "shared", now)
		Expect(err).To(MatchError(auth.ErrTokenNotFound))
	})

	It("rejects a duplicate token string", func() {
		Expect(env.Resets.Create(ctx, newToken(user.ID, "dup", now, time.Hour))).To(Succeed())
		err := env.Resets.Create(ctx, newToken(user.ID, "dup", now, time.Hour))
		Expect(err).To(MatchError(auth.ErrTokenCollision))
	})

	It("lets exactly one concurrent redeemer win", func() {
		Expect(env.Resets.Create(ctx, newToken(user.ID, "race", now, time.Hour))).To(Succeed())

		const n = 20
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, errs[i] = env.Resets.Redeem(ctx, "race", now)
			}()
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			Expect(err).To(MatchError(auth.ErrTokenAlreadyUsed))
		}
		Expect(wins).To(Equal(1))
	})
})
