// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package mail

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/internal/auth"
)

// Publisher is the part of *amqp.Channel used by AMQPMailer.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPMailer publishes mail jobs as persistent JSON messages on a durable
// queue through the default exchange.
type AMQPMailer struct {
	pub    Publisher
	queue  string
	paths  Paths
	now    func() time.Time
	logger *slog.Logger
}

var _ auth.Mailer = (*AMQPMailer)(nil)

// AMQPOption configures an AMQPMailer.
type AMQPOption func(*AMQPMailer)

// WithPaths overrides the frontend link routes.
func WithPaths(p Paths) AMQPOption {
	return func(m *AMQPMailer) { m.paths = p }
}

// WithClock sets the job timestamp source.
func WithClock(now func() time.Time) AMQPOption {
	return func(m *AMQPMailer) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AMQPOption {
	return func(m *AMQPMailer) { m.logger = logger }
}

// NewAMQPMailer creates a mailer that publishes to queue. The queue must
// already be declared; DialAMQP does that.
func NewAMQPMailer(pub Publisher, queue string, opts ...AMQPOption) *AMQPMailer {
	m := &AMQPMailer{
		pub:    pub,
		queue:  queue,
		paths:  DefaultPaths(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SendMagicLink implements auth.Mailer.
func (m *AMQPMailer) SendMagicLink(ctx context.Context, user *auth.User, rawToken, originURL string) error {
	return m.publish(ctx, KindMagicLink, user, rawToken, originURL)
}

// SendPasswordReset implements auth.Mailer.
func (m *AMQPMailer) SendPasswordReset(ctx context.Context, user *auth.User, rawToken, originURL string) error {
	return m.publish(ctx, KindPasswordReset, user, rawToken, originURL)
}

func (m *AMQPMailer) publish(ctx context.Context, kind string, user *auth.User, token, origin string) error {
	job, err := newJob(kind, user, m.paths, token, origin, m.now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(job)
	if err != nil {
		return oops.Code("MAIL_ENCODE_FAILED").With("kind", kind).Wrap(err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    job.CreatedAt,
		Type:         kind,
		Body:         body,
	}
	if err := m.pub.PublishWithContext(ctx, "", m.queue, false, false, msg); err != nil {
		return oops.Code("MAIL_PUBLISH_FAILED").
			With("kind", kind).
			With("queue", m.queue).
			With("user_id", user.ID).
			Wrap(err)
	}
	m.logger.DebugContext(ctx, "mail job published", "kind", kind, "user_id", user.ID, "queue", m.queue)
	return nil
}

// Connection is an open broker connection backing an AMQPMailer.
type Connection struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialAMQP connects to the broker, declares queue as durable and returns a
// mailer publishing to it.
func DialAMQP(url, queue string, opts ...AMQPOption) (*AMQPMailer, *Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, oops.Code("MAIL_DIAL_FAILED").Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close() //nolint:errcheck // channel error wins
		return nil, nil, oops.Code("MAIL_CHANNEL_FAILED").Wrap(err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()   //nolint:errcheck // declare error wins
		_ = conn.Close() //nolint:errcheck // declare error wins
		return nil, nil, oops.Code("MAIL_QUEUE_DECLARE_FAILED").With("queue", queue).Wrap(err)
	}
	return NewAMQPMailer(ch, queue, opts...), &Connection{conn: conn, ch: ch}, nil
}

// Close closes the channel and the connection.
func (c *Connection) Close() error {
	chErr := c.ch.Close()
	if err := c.conn.Close(); err != nil {
		return oops.Code("MAIL_CLOSE_FAILED").Wrap(err)
	}
	if chErr != nil {
		return oops.Code("MAIL_CLOSE_FAILED").Wrap(chErr)
	}
	return nil
}
