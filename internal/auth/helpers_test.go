// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth_test

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/auth/memory"
	"github.com/gatekeep/gatekeep/internal/auth/mocks"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func fastHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1})
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixture wires a Service over in-memory repositories and a mock mailer.
type fixture struct {
	clock      *testClock
	userRepo   *memory.UserRepository
	users      *auth.UserStore
	magicLinks *auth.TokenStore
	resets     *auth.TokenStore
	sessions   *auth.SessionCodec
	mailer     *mocks.MockMailer
	svc        *auth.Service
	logs       *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:    newTestClock(),
		userRepo: memory.NewUserRepository(),
		mailer:   mocks.NewMockMailer(t),
		logs:     &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	f.users = auth.NewUserStore(f.userRepo, fastHasher(),
		auth.WithUserClock(f.clock.Now), auth.WithUserLogger(logger))
	gen := auth.NewRandomTokenGenerator(auth.MinTokenBytes)
	f.magicLinks = auth.NewTokenStore(auth.PurposeMagicLink,
		memory.NewTokenRepository(auth.PurposeMagicLink), f.users, gen, auth.WithTokenClock(f.clock.Now))
	f.resets = auth.NewTokenStore(auth.PurposePasswordReset,
		memory.NewTokenRepository(auth.PurposePasswordReset), f.users, gen, auth.WithTokenClock(f.clock.Now))

	var err error
	f.sessions, err = auth.NewSessionCodec(auth.SessionConfig{
		Secret: testSecret,
		TTL:    24 * time.Hour,
		Issuer: "gatekeep-test",
		Now:    f.clock.Now,
	})
	require.NoError(t, err)

	f.svc, err = auth.NewService(auth.ServiceDeps{
		Users:      f.users,
		MagicLinks: f.magicLinks,
		Resets:     f.resets,
		Sessions:   f.sessions,
		Mailer:     f.mailer,
	}, auth.WithLogger(logger))
	require.NoError(t, err)
	return f
}
