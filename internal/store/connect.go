// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package store opens the Postgres pool and owns the database schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

const (
	defaultConnectAttempts = 5
	defaultRetryBase       = 200 * time.Millisecond
	maxRetryDelay          = 5 * time.Second
)

// ConnectOption configures Connect.
type ConnectOption func(*connectConfig)

type connectConfig struct {
	attempts uint64
	base     time.Duration
	logger   *slog.Logger
}

// WithAttempts bounds the number of ping attempts. Values below 1 mean 1.
func WithAttempts(n int) ConnectOption {
	return func(c *connectConfig) {
		c.attempts = uint64(max(n, 1))
	}
}

// WithRetryBase sets the first backoff delay.
func WithRetryBase(d time.Duration) ConnectOption {
	return func(c *connectConfig) { c.base = d }
}

// WithConnectLogger sets the logger for retry messages.
func WithConnectLogger(logger *slog.Logger) ConnectOption {
	return func(c *connectConfig) { c.logger = logger }
}

// Connect creates a pgx pool for databaseURL and waits until the server
// answers a ping, backing off exponentially between attempts.
func Connect(ctx context.Context, databaseURL string, opts ...ConnectOption) (*pgxpool.Pool, error) {
	cfg := connectConfig{
		attempts: defaultConnectAttempts,
		base:     defaultRetryBase,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	if err := pingWithRetry(ctx, pool.Ping, cfg); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func pingWithRetry(ctx context.Context, ping func(context.Context) error, cfg connectConfig) error {
	backoff := retry.NewExponential(cfg.base)
	backoff = retry.WithCappedDuration(maxRetryDelay, backoff)
	backoff = retry.WithMaxRetries(cfg.attempts-1, backoff)

	var attempt uint64
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := ping(ctx); err != nil {
			cfg.logger.WarnContext(ctx, "database not ready",
				"attempt", attempt,
				"max_attempts", cfg.attempts,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return nil
}
