// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package web is the HTTP boundary of Gatekeep. It validates request bodies,
// resolves bearer identities and maps auth failures to status codes. All
// decisions are made by auth.Service.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/gatekeep/gatekeep/internal/auth"
)

// AuthService is the part of auth.Service the handlers call.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*auth.AuthResult, error)
	Login(ctx context.Context, email, password string) (*auth.AuthResult, error)
	RequestMagicLink(ctx context.Context, email, originURL string) (string, error)
	VerifyMagicLink(ctx context.Context, token string) (*auth.AuthResult, error)
	RequestPasswordReset(ctx context.Context, email, originURL string) (string, error)
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) (string, error)
	DeleteAccount(ctx context.Context, user *auth.User, password string) (string, error)
	CurrentUser(ctx context.Context, token string) (*auth.User, error)
}

var _ AuthService = (*auth.Service)(nil)

// RequestRecorder counts served requests. observability.Metrics implements it.
type RequestRecorder interface {
	RequestServed(route string, status int)
}

// Options configures New.
type Options struct {
	// OriginFallback builds mailed links when a request has no Origin header
	// or one outside AllowedOrigins.
	OriginFallback string
	// AllowedOrigins lists the Origin header values mailed links may point
	// to. Matching ignores case and a trailing slash.
	AllowedOrigins []string
	// RequestTimeout bounds each request's context. Zero disables it.
	RequestTimeout time.Duration
	Logger         *slog.Logger
	Recorder       RequestRecorder
}

type server struct {
	svc     AuthService
	opts    Options
	logger  *slog.Logger
	origins map[string]struct{}
}

// New returns an echo instance with the Gatekeep routes:
//
//	GET  /health
//	POST /api/auth/register
//	POST /api/auth/login
//	POST /api/auth/magic-link/request
//	POST /api/auth/magic-link/verify
//	GET  /api/auth/me
//	POST /api/auth/password-reset/request
//	POST /api/auth/password-reset/confirm
//	POST /api/auth/account/delete
func New(svc AuthService, opts Options) *echo.Echo {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &server{
		svc:     svc,
		opts:    opts,
		logger:  opts.Logger,
		origins: make(map[string]struct{}, len(opts.AllowedOrigins)),
	}
	for _, o := range opts.AllowedOrigins {
		s.origins[normalizeOrigin(o)] = struct{}{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Validator = ozzoValidator{}

	e.Use(s.observe)
	if opts.RequestTimeout > 0 {
		e.Use(timeout(opts.RequestTimeout))
	}

	e.GET("/health", s.health)

	g := e.Group("/api/auth")
	g.POST("/register", s.register)
	g.POST("/login", s.login)
	g.POST("/magic-link/request", s.requestMagicLink)
	g.POST("/magic-link/verify", s.verifyMagicLink)
	g.POST("/password-reset/request", s.requestPasswordReset)
	g.POST("/password-reset/confirm", s.confirmPasswordReset)

	authed := g.Group("", s.bearer)
	authed.GET("/me", s.me)
	authed.POST("/account/delete", s.deleteAccount)

	return e
}

func timeout(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// observe joins the caller's trace, then logs and counts every request once
// its status is final.
func (s *server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
		c.SetRequest(req.WithContext(ctx))
		if err := next(c); err != nil {
			c.Error(err)
		}

		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		status := c.Response().Status
		if s.opts.Recorder != nil {
			s.opts.Recorder.RequestServed(route, status)
		}
		s.logger.DebugContext(c.Request().Context(), "request served",
			"method", c.Request().Method,
			"route", route,
			"status", status,
			"duration", time.Since(start))
		return nil
	}
}
