// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"net"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/config"
	"github.com/gatekeep/gatekeep/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolConnector opens the database pool.
	// Default: store.Connect
	PoolConnector func(ctx context.Context, url string, attempts int, logger *slog.Logger) (*pgxpool.Pool, error)

	// MigratorFactory creates the migrator used by database.auto_migrate.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (AutoMigrator, error)

	// MailerFactory creates the mailer for the configured driver.
	// Default: newMailer
	MailerFactory func(cfg config.MailConfig, out io.Writer, logger *slog.Logger) (auth.Mailer, func() error, error)

	// ObservabilityServerFactory creates the metrics and probe server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// ListenerFactory opens the HTTP listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// AutoMigrator wraps the migrator methods used on startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// repositories are the storage backends behind the auth stores.
type repositories struct {
	users      auth.UserRepository
	magicLinks auth.RedeemableTokenRepository
	resets     auth.RedeemableTokenRepository
	ready      observability.ReadinessChecker
	close      func()
}
