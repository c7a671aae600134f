// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/auth/memory"
	"github.com/gatekeep/gatekeep/internal/auth/postgres"
	"github.com/gatekeep/gatekeep/internal/config"
	"github.com/gatekeep/gatekeep/internal/logging"
	"github.com/gatekeep/gatekeep/internal/mail"
	"github.com/gatekeep/gatekeep/internal/observability"
	"github.com/gatekeep/gatekeep/internal/store"
	"github.com/gatekeep/gatekeep/internal/tracing"
	"github.com/gatekeep/gatekeep/internal/web"
	"github.com/gatekeep/gatekeep/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// serveConfig holds flags of the serve command that are not configuration keys.
type serveConfig struct {
	memory bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return newServeCmd(nil)
}

func newServeCmd(deps *ServeDeps) *cobra.Command {
	opts := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication HTTP server",
		Long: `Start the HTTP API under /api/auth together with the metrics and
health probe server. Accounts are stored in PostgreSQL unless --memory is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, opts, deps)
		},
	}

	addDatabaseFlags(cmd)
	cmd.Flags().String("http-addr", "", "HTTP listen address (default 127.0.0.1:8000)")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", "", "log format (json or text)")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().String("mail-driver", "", "mail driver (outbox or amqp)")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP trace collector URL (empty = tracing off)")
	cmd.Flags().Bool("auto-migrate", false, "apply pending migrations on startup")
	cmd.Flags().BoolVar(&opts.memory, "memory", false, "keep accounts in memory instead of PostgreSQL")

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, opts *serveConfig, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = withServeDefaults(deps)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "validate configuration").Wrap(err)
	}

	logger, err := logging.SetDefault(logging.Options{
		Service: "gatekeep",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Endpoint:    cfg.Tracing.Endpoint,
		Service:     "gatekeep",
		Version:     version,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			errutil.LogError(logger, "error flushing traces", err)
		}
	}()

	var repos *repositories
	if opts.memory {
		logger.Warn("using in-memory storage; accounts are lost on exit")
		repos = memoryRepositories()
	} else {
		repos, err = postgresRepositories(ctx, cfg, deps, logger)
		if err != nil {
			return err
		}
	}
	defer repos.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, repos.ready, logger)
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	mailer, closeMailer, err := deps.MailerFactory(cfg.Mail, cmd.OutOrStdout(), logger)
	if err != nil {
		stopObservability(obsServer)
		return err
	}
	defer func() {
		if closeErr := closeMailer(); closeErr != nil {
			logger.Warn("error closing mailer", "error", closeErr)
		}
	}()

	svc, err := buildService(cfg, repos, mailer, obsServer, logger)
	if err != nil {
		stopObservability(obsServer)
		return err
	}

	webOpts := web.Options{
		OriginFallback: cfg.HTTP.OriginFallback,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Logger:         logger,
	}
	if obsServer != nil {
		webOpts.Recorder = obsServer.Metrics()
	}
	httpServer := &http.Server{
		Handler:           web.New(svc, webOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		stopObservability(obsServer)
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	cmd.Printf("Gatekeep listening on %s\n", listener.Addr())
	logger.Info("gatekeep ready",
		"http_addr", listener.Addr().String(),
		"mail_driver", cfg.Mail.Driver,
		"memory", opts.memory,
	)

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		serveErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return serveErr
}

func withServeDefaults(deps *ServeDeps) *ServeDeps {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolConnector == nil {
		deps.PoolConnector = func(ctx context.Context, url string, attempts int, logger *slog.Logger) (*pgxpool.Pool, error) {
			return store.Connect(ctx, url, store.WithAttempts(attempts), store.WithConnectLogger(logger))
		}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if deps.MailerFactory == nil {
		deps.MailerFactory = newMailer
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, readiness, logger)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}
	return deps
}

func memoryRepositories() *repositories {
	return &repositories{
		users:      memory.NewUserRepository(),
		magicLinks: memory.NewTokenRepository(auth.PurposeMagicLink),
		resets:     memory.NewTokenRepository(auth.PurposePasswordReset),
		ready:      func(context.Context) error { return nil },
		close:      func() {},
	}
}

// postgresRepositories connects to the database, applies migrations when
// database.auto_migrate is set and builds the Postgres repositories.
func postgresRepositories(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (*repositories, error) {
	url, err := databaseURL(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := deps.PoolConnector(ctx, url, cfg.Database.ConnectAttempts, logger)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	logger.Info("connected to database")

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(url, deps.MigratorFactory, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	magicLinks, err := postgres.NewTokenRepository(pool, auth.PurposeMagicLink)
	if err != nil {
		pool.Close()
		return nil, err
	}
	resets, err := postgres.NewTokenRepository(pool, auth.PurposePasswordReset)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &repositories{
		users:      postgres.NewUserRepository(pool),
		magicLinks: magicLinks,
		resets:     resets,
		ready:      pool.Ping,
		close:      pool.Close,
	}, nil
}

func autoMigrate(url string, factory func(string) (AutoMigrator, error), logger *slog.Logger) error {
	migrator, err := factory(url)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			errutil.LogError(logger, "error closing migrator", closeErr)
		}
	}()

	logger.Info("applying database migrations")
	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	return nil
}

// newMailer builds the mailer for cfg.Driver. The returned func releases it.
func newMailer(cfg config.MailConfig, out io.Writer, logger *slog.Logger) (auth.Mailer, func() error, error) {
	paths := mail.Paths{MagicLink: cfg.MagicLinkPath, PasswordReset: cfg.PasswordResetPath}
	switch cfg.Driver {
	case config.MailDriverOutbox:
		return mail.NewOutboxMailer(out, paths, logger), func() error { return nil }, nil
	case config.MailDriverAMQP:
		mailer, conn, err := mail.DialAMQP(cfg.AMQPURL, cfg.Queue, mail.WithPaths(paths), mail.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return mailer, conn.Close, nil
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Driver).Errorf("unknown mail driver %q", cfg.Driver)
	}
}

func buildService(
	cfg *config.Config,
	repos *repositories,
	mailer auth.Mailer,
	obsServer ObservabilityServer,
	logger *slog.Logger,
) (*auth.Service, error) {
	var recorder auth.Recorder
	if obsServer != nil {
		recorder = obsServer.Metrics()
	}

	users := auth.NewUserStore(repos.users, auth.NewArgon2idHasher(cfg.Argon2Params()), auth.WithUserLogger(logger))
	gen := auth.NewRandomTokenGenerator(cfg.Tokens.Bytes)
	tokenOpts := []auth.TokenStoreOption{}
	serviceOpts := []auth.ServiceOption{auth.WithLogger(logger), auth.WithTTLs(cfg.TTLs())}
	if recorder != nil {
		tokenOpts = append(tokenOpts, auth.WithTokenRecorder(recorder))
		serviceOpts = append(serviceOpts, auth.WithRecorder(recorder))
	}

	sessions, err := auth.NewSessionCodec(auth.SessionConfig{
		Secret: []byte(cfg.Session.Secret),
		TTL:    cfg.Session.TTL,
		Issuer: cfg.Session.Issuer,
	})
	if err != nil {
		return nil, err
	}

	return auth.NewService(auth.ServiceDeps{
		Users:      users,
		MagicLinks: auth.NewTokenStore(auth.PurposeMagicLink, repos.magicLinks, users, gen, tokenOpts...),
		Resets:     auth.NewTokenStore(auth.PurposePasswordReset, repos.resets, users, gen, tokenOpts...),
		Sessions:   sessions,
		Mailer:     mailer,
	}, serviceOpts...)
}

func stopObservability(s ObservabilityServer) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors cancels ctx when a background server fails. It exits
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
