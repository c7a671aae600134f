// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package mail

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/internal/auth"
)

// OutboxMailer writes each job as a JSON line to w instead of sending it.
// It is meant for development, where w is a terminal or a file the
// developer reads links from. Only metadata reaches the logger.
type OutboxMailer struct {
	mu     sync.Mutex
	w      io.Writer
	paths  Paths
	now    func() time.Time
	logger *slog.Logger
}

var _ auth.Mailer = (*OutboxMailer)(nil)

// NewOutboxMailer creates an OutboxMailer writing to w.
func NewOutboxMailer(w io.Writer, paths Paths, logger *slog.Logger) *OutboxMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxMailer{w: w, paths: paths, now: time.Now, logger: logger}
}

// SendMagicLink implements auth.Mailer.
func (m *OutboxMailer) SendMagicLink(ctx context.Context, user *auth.User, rawToken, originURL string) error {
	return m.write(ctx, KindMagicLink, user, rawToken, originURL)
}

// SendPasswordReset implements auth.Mailer.
func (m *OutboxMailer) SendPasswordReset(ctx context.Context, user *auth.User, rawToken, originURL string) error {
	return m.write(ctx, KindPasswordReset, user, rawToken, originURL)
}

func (m *OutboxMailer) write(ctx context.Context, kind string, user *auth.User, token, origin string) error {
	job, err := newJob(kind, user, m.paths, token, origin, m.now())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := json.NewEncoder(m.w).Encode(job); err != nil {
		return oops.Code("MAIL_OUTBOX_WRITE_FAILED").With("kind", kind).Wrap(err)
	}
	m.logger.InfoContext(ctx, "mail written to outbox", "kind", kind, "user_id", user.ID)
	return nil
}
