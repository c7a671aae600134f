// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/pkg/errutil"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakePublisher struct {
	err  error
	sent []published
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

var (
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alice    = &auth.User{ID: 7, Email: "alice@example.com"}
)

func TestBuildLink(t *testing.T) {
	tests := []struct {
		name, origin, path, want string
	}{
		{"plain", "http://localhost:4321", "/auth/magic-link/verify", "http://localhost:4321/auth/magic-link/verify?token=abc"},
		{"trailing slash", "https://app.example.com/", "auth/reset", "https://app.example.com/auth/reset?token=abc"},
		{"origin with base path", "https://example.com/app", "/verify", "https://example.com/app/verify?token=abc"},
		{"drops existing query", "https://example.com/?next=x#frag", "/verify", "https://example.com/verify?token=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildLink(tt.origin, tt.path, "abc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("escapes token", func(t *testing.T) {
		got, err := BuildLink("http://localhost", "/v", "a+b/c=")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost/v?token=a%2Bb%2Fc%3D", got)
	})

	for _, origin := range []string{"", "localhost:4321", "ftp://example.com", "http://"} {
		t.Run("rejects "+origin, func(t *testing.T) {
			_, err := BuildLink(origin, "/v", "abc")
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "MAIL_INVALID_ORIGIN")
		})
	}

	t.Run("rejects empty token", func(t *testing.T) {
		_, err := BuildLink("http://localhost", "/v", "")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "MAIL_EMPTY_TOKEN")
	})
}

func TestAMQPMailer_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	m := NewAMQPMailer(pub, "gatekeep.mail", WithClock(func() time.Time { return fixedNow }))

	require.NoError(t, m.SendMagicLink(context.Background(), alice, "tok1", "http://localhost:4321"))
	require.NoError(t, m.SendPasswordReset(context.Background(), alice, "tok2", "http://localhost:4321"))
	require.Len(t, pub.sent, 2)

	first := pub.sent[0]
	assert.Empty(t, first.exchange)
	assert.Equal(t, "gatekeep.mail", first.key)
	assert.Equal(t, amqp.Persistent, first.msg.DeliveryMode)
	assert.Equal(t, "application/json", first.msg.ContentType)
	assert.Equal(t, KindMagicLink, first.msg.Type)

	var job Job
	require.NoError(t, json.Unmarshal(first.msg.Body, &job))
	assert.Equal(t, Job{
		Kind:      KindMagicLink,
		To:        "alice@example.com",
		UserID:    7,
		Link:      "http://localhost:4321/auth/magic-link/verify?token=tok1",
		CreatedAt: fixedNow,
	}, job)

	require.NoError(t, json.Unmarshal(pub.sent[1].msg.Body, &job))
	assert.Equal(t, KindPasswordReset, job.Kind)
	assert.Equal(t, "http://localhost:4321/auth/password-reset/confirm?token=tok2", job.Link)
}

func TestAMQPMailer_CustomPaths(t *testing.T) {
	pub := &fakePublisher{}
	m := NewAMQPMailer(pub, "q", WithPaths(Paths{MagicLink: "/ml", PasswordReset: "/pr"}))

	require.NoError(t, m.SendPasswordReset(context.Background(), alice, "t", "https://app.example.com"))
	var job Job
	require.NoError(t, json.Unmarshal(pub.sent[0].msg.Body, &job))
	assert.Equal(t, "https://app.example.com/pr?token=t", job.Link)
}

func TestAMQPMailer_Failures(t *testing.T) {
	t.Run("publish error", func(t *testing.T) {
		brokerDown := errors.New("channel closed")
		m := NewAMQPMailer(&fakePublisher{err: brokerDown}, "q")
		err := m.SendMagicLink(context.Background(), alice, "t", "http://localhost")
		require.Error(t, err)
		errutil.AssertFailure(t, err, brokerDown, "MAIL_PUBLISH_FAILED")
	})

	t.Run("bad origin publishes nothing", func(t *testing.T) {
		pub := &fakePublisher{}
		m := NewAMQPMailer(pub, "q")
		err := m.SendMagicLink(context.Background(), alice, "t", "not a url")
		require.Error(t, err)
		assert.Empty(t, pub.sent)
	})
}

func TestAMQPMailer_DoesNotLogToken(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := NewAMQPMailer(&fakePublisher{}, "q", WithLogger(logger))

	require.NoError(t, m.SendMagicLink(context.Background(), alice, "secret-token-value", "http://localhost"))
	assert.Contains(t, logs.String(), "mail job published")
	assert.NotContains(t, logs.String(), "secret-token-value")
}

func TestOutboxMailer(t *testing.T) {
	var outbox, logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	m := NewOutboxMailer(&outbox, DefaultPaths(), logger)
	m.now = func() time.Time { return fixedNow }

	require.NoError(t, m.SendMagicLink(context.Background(), alice, "pending-1", "http://localhost:4321"))
	require.NoError(t, m.SendPasswordReset(context.Background(), alice, "pending-2", "http://localhost:4321"))

	dec := json.NewDecoder(&outbox)
	var job Job
	require.NoError(t, dec.Decode(&job))
	assert.Equal(t, "http://localhost:4321/auth/magic-link/verify?token=pending-1", job.Link)
	require.NoError(t, dec.Decode(&job))
	assert.Equal(t, KindPasswordReset, job.Kind)

	assert.NotContains(t, logs.String(), "pending-")
}
