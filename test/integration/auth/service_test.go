// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

//go:build integration

package auth_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/gatekeep/gatekeep/internal/auth"
)

// inbox keeps the last token mailed for each purpose.
type inbox struct {
	mu     sync.Mutex
	tokens map[auth.Purpose]string
	sent   int
}

func (i *inbox) SendMagicLink(_ context.Context, _ *auth.User, token, _ string) error {
	return i.keep(auth.PurposeMagicLink, token)
}

func (i *inbox) SendPasswordReset(_ context.Context, _ *auth.User, token, _ string) error {
	return i.keep(auth.PurposePasswordReset, token)
}

func (i *inbox) keep(p auth.Purpose, token string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.tokens == nil {
		i.tokens = map[auth.Purpose]string{}
	}
	i.tokens[p] = token
	i.sent++
	return nil
}

func (i *inbox) last(p auth.Purpose) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.tokens[p]
}

var _ = Describe("Service on Postgres", func() {
	var (
		ctx  context.Context
		svc  *auth.Service
		mail *inbox
	)

	BeforeEach(func() {
		ctx = context.Background()
		resetTables(ctx)

		users := auth.NewUserStore(env.Users, fastHasher())
		gen := auth.NewRandomTokenGenerator(auth.MinTokenBytes)
		sessions, err := auth.NewSessionCodec(auth.SessionConfig{
			Secret: []byte("0123456789abcdef0123456789abcdef"),
			TTL:    time.Hour,
			Issuer: "gatekeep-integration",
		})
		Expect(err).NotTo(HaveOccurred())

		mail = &inbox{}
		svc, err = auth.NewService(auth.ServiceDeps{
			Users:      users,
			MagicLinks: auth.NewTokenStore(auth.PurposeMagicLink, env.MagicLinks, users, gen),
			Resets:     auth.NewTokenStore(auth.PurposePasswordReset, env.Resets, users, gen),
			Sessions:   sessions,
			Mailer:     mail,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("signs in once with a magic link", func() {
		registered, err := svc.Register(ctx, "a@b.com", "pw1")
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.RequestMagicLink(ctx, "a@b.com", "http://localhost:4321")
		Expect(err).NotTo(HaveOccurred())
		token := mail.last(auth.PurposeMagicLink)
		Expect(token).NotTo(BeEmpty())

		result, err := svc.VerifyMagicLink(ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.User.ID).To(Equal(registered.User.ID))

		_, err = svc.VerifyMagicLink(ctx, token)
		Expect(err).To(MatchError(auth.ErrInvalidLink))
	})

	It("resets a password and consumes the token", func() {
		_, err := svc.Register(ctx, "a@b.com", "pw1")
		Expect(err).NotTo(HaveOccurred())

		msg, err := svc.RequestPasswordReset(ctx, "nobody@b.com", "http://localhost:4321")
		Expect(err).NotTo(HaveOccurred())
		Expect(msg).To(Equal(auth.MessagePasswordResetRequested))
		Expect(mail.sent).To(Equal(0))

		_, err = svc.RequestPasswordReset(ctx, "a@b.com", "http://localhost:4321")
		Expect(err).NotTo(HaveOccurred())
		token := mail.last(auth.PurposePasswordReset)

		_, err = svc.ConfirmPasswordReset(ctx, token, "pw2")
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.Login(ctx, "a@b.com", "pw2")
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.ConfirmPasswordReset(ctx, token, "pw3")
		Expect(err).To(MatchError(auth.ErrInvalidLink))
	})

	It("soft-deletes an account and allows re-registration", func() {
		registered, err := svc.Register(ctx, "a@b.com", "pw1")
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.DeleteAccount(ctx, registered.User, "pw1")
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.CurrentUser(ctx, registered.Token)
		Expect(err).To(MatchError(auth.ErrUserNotFoundOrInactive))

		_, err = svc.Login(ctx, "a@b.com", "pw1")
		Expect(err).To(MatchError(auth.ErrInactiveAccount))

		again, err := svc.Register(ctx, "a@b.com", "pw2")
		Expect(err).NotTo(HaveOccurred())
		Expect(again.User.ID).NotTo(Equal(registered.User.ID))
	})
})
