// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gatekeep/gatekeep/pkg/errutil"
)

// User-facing messages returned by the flows.
const (
	MessageMagicLinkSent          = "Magic link sent to your email"
	MessagePasswordResetRequested = "If an account exists with this email, a password reset link has been sent"
	MessagePasswordResetDone      = "Password has been reset successfully"
	MessageAccountDeleted         = "Account has been deleted successfully"
)

// Flow names reported to the Recorder.
const (
	FlowRegister             = "register"
	FlowLogin                = "login"
	FlowMagicLinkRequest     = "magic_link_request"
	FlowMagicLinkVerify      = "magic_link_verify"
	FlowPasswordResetRequest = "password_reset_request"
	FlowPasswordResetConfirm = "password_reset_confirm"
	FlowDeleteAccount        = "delete_account"
	FlowCurrentUser          = "current_user"
)

// TTLs holds the lifetimes of redeemable tokens.
type TTLs struct {
	MagicLink     time.Duration
	PasswordReset time.Duration
}

// DefaultTTLs returns the default redeemable token lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		MagicLink:     15 * time.Minute,
		PasswordReset: time.Hour,
	}
}

// AuthResult is returned by flows that establish a session.
type AuthResult struct {
	Token     string
	TokenType string
	User      *User
}

// ServiceDeps are the collaborators of a Service.
type ServiceDeps struct {
	Users      *UserStore
	MagicLinks *TokenStore
	Resets     *TokenStore
	Sessions   *SessionCodec
	Mailer     Mailer
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithRecorder reports flow outcomes to r.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithTracer sets the tracer flows start their spans on.
func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) { s.tracer = t }
}

// WithTTLs overrides the redeemable token lifetimes.
func WithTTLs(ttls TTLs) ServiceOption {
	return func(s *Service) { s.ttls = ttls }
}

// Service orchestrates the authentication flows.
//
// Storage and codec layers return precise failure kinds. Service collapses
// some of them on purpose: every magic-link or reset redemption failure
// becomes ErrInvalidLink, and password reset requests answer the same
// message whether the email exists or not.
type Service struct {
	users      *UserStore
	magicLinks *TokenStore
	resets     *TokenStore
	sessions   *SessionCodec
	mailer     Mailer
	ttls       TTLs
	logger     *slog.Logger
	recorder   Recorder
	tracer     trace.Tracer
}

// NewService creates a Service.
func NewService(deps ServiceDeps, opts ...ServiceOption) (*Service, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user store is required")
	case deps.MagicLinks == nil || deps.MagicLinks.Purpose() != PurposeMagicLink:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("magic link token store is required")
	case deps.Resets == nil || deps.Resets.Purpose() != PurposePasswordReset:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password reset token store is required")
	case deps.Sessions == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session codec is required")
	case deps.Mailer == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("mailer is required")
	}

	s := &Service{
		users:      deps.Users,
		magicLinks: deps.MagicLinks,
		resets:     deps.Resets,
		sessions:   deps.Sessions,
		mailer:     deps.Mailer,
		ttls:       DefaultTTLs(),
		logger:     slog.Default(),
		recorder:   nopRecorder{},
		tracer:     otel.Tracer("gatekeep/auth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an account and opens a session for it.
func (s *Service) Register(ctx context.Context, email, password string) (result *AuthResult, err error) {
	ctx, span := s.start(ctx, FlowRegister)
	defer func() { s.finish(span, FlowRegister, err) }()

	user, err := s.users.CreateUser(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.openSession(user)
}

// Login authenticates with email and password.
func (s *Service) Login(ctx context.Context, email, password string) (result *AuthResult, err error) {
	ctx, span := s.start(ctx, FlowLogin)
	defer func() { s.finish(span, FlowLogin, err) }()

	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			return nil, err
		}
		// Only a correct password on a deactivated or deleted record is
		// reported as inactive.
		_, matchErr := s.users.FindInactiveMatch(ctx, email, password)
		if matchErr == nil {
			return nil, oops.Code(CodeInactiveAccount).Wrap(ErrInactiveAccount)
		}
		if !errors.Is(matchErr, ErrNotFound) {
			errutil.LogError(s.logger, "inactive account check failed", matchErr)
		}
		return nil, err
	}

	// Unreachable while Authenticate filters to active users.
	if !user.IsActive {
		return nil, oops.Code(CodeInactiveAccount).With("user_id", user.ID).Wrap(ErrInactiveAccount)
	}
	return s.openSession(user)
}

// RequestMagicLink issues a magic link for an active account and mails it.
// Unknown emails fail with an error wrapping ErrNotFound.
func (s *Service) RequestMagicLink(ctx context.Context, email, originURL string) (msg string, err error) {
	ctx, span := s.start(ctx, FlowMagicLinkRequest)
	defer func() { s.finish(span, FlowMagicLinkRequest, err) }()

	user, err := s.users.FindActiveByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	token, err := s.magicLinks.Issue(ctx, user, s.ttls.MagicLink)
	if err != nil {
		return "", err
	}
	s.dispatch(ctx, PurposeMagicLink, user, func() error {
		return s.mailer.SendMagicLink(ctx, user, token, originURL)
	})
	return MessageMagicLinkSent, nil
}

// VerifyMagicLink redeems a magic link and opens a session. Every failure is
// reported as ErrInvalidLink.
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (result *AuthResult, err error) {
	ctx, span := s.start(ctx, FlowMagicLinkVerify)
	defer func() { s.finish(span, FlowMagicLinkVerify, err) }()

	user, err := s.magicLinks.VerifyAndRedeem(ctx, token)
	if err != nil {
		return nil, s.invalidLink(ctx, FlowMagicLinkVerify, err)
	}
	if !user.CanAuthenticate() {
		return nil, s.invalidLink(ctx, FlowMagicLinkVerify,
			oops.Code(CodeUserNotFoundOrInactive).With("user_id", user.ID).Wrap(ErrUserNotFoundOrInactive))
	}
	return s.openSession(user)
}

// RequestPasswordReset mails a reset link when email belongs to an active
// account. The returned message is the same either way.
func (s *Service) RequestPasswordReset(ctx context.Context, email, originURL string) (msg string, err error) {
	ctx, span := s.start(ctx, FlowPasswordResetRequest)
	defer func() { s.finish(span, FlowPasswordResetRequest, err) }()

	user, err := s.users.FindActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return MessagePasswordResetRequested, nil
		}
		return "", err
	}

	token, err := s.resets.Issue(ctx, user, s.ttls.PasswordReset)
	if err != nil {
		errutil.LogError(s.logger, "password reset issue failed", err)
		return MessagePasswordResetRequested, nil
	}
	s.dispatch(ctx, PurposePasswordReset, user, func() error {
		return s.mailer.SendPasswordReset(ctx, user, token, originURL)
	})
	return MessagePasswordResetRequested, nil
}

// ConfirmPasswordReset redeems a reset token and sets the new password. The
// token is consumed before the password is written and stays consumed if the
// write fails. Every failure is reported as ErrInvalidLink.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (msg string, err error) {
	ctx, span := s.start(ctx, FlowPasswordResetConfirm)
	defer func() { s.finish(span, FlowPasswordResetConfirm, err) }()

	if newPassword == "" {
		return "", oops.Code(CodeEmptyPassword).Wrap(ErrEmptyPassword)
	}

	_, err = s.resets.VerifyAndRedeemThen(ctx, token, func(ctx context.Context, user *User) error {
		if !user.CanAuthenticate() {
			return oops.Code(CodeUserNotFoundOrInactive).With("user_id", user.ID).Wrap(ErrUserNotFoundOrInactive)
		}
		return s.users.SetPassword(ctx, user, newPassword)
	})
	if err != nil {
		return "", s.invalidLink(ctx, FlowPasswordResetConfirm, err)
	}
	return MessagePasswordResetDone, nil
}

// DeleteAccount soft-deletes the authenticated user after re-checking the
// password.
func (s *Service) DeleteAccount(ctx context.Context, user *User, password string) (msg string, err error) {
	ctx, span := s.start(ctx, FlowDeleteAccount)
	defer func() { s.finish(span, FlowDeleteAccount, err) }()

	if user == nil || !s.users.CheckPassword(user, password) {
		return "", oops.Code(CodeUnauthorized).Wrap(ErrUnauthorized)
	}
	if err := s.users.SoftDelete(ctx, user); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "account deleted", "user_id", user.ID)
	return MessageAccountDeleted, nil
}

// CurrentUser resolves a session token to a live account. Tokens of deleted,
// deactivated or missing users fail with ErrUserNotFoundOrInactive.
func (s *Service) CurrentUser(ctx context.Context, token string) (user *User, err error) {
	ctx, span := s.start(ctx, FlowCurrentUser)
	defer func() { s.finish(span, FlowCurrentUser, err) }()

	userID, err := s.sessions.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err = s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFoundOrInactive).With("user_id", userID).Wrap(ErrUserNotFoundOrInactive)
		}
		return nil, err
	}
	if !user.CanAuthenticate() {
		return nil, oops.Code(CodeUserNotFoundOrInactive).With("user_id", userID).Wrap(ErrUserNotFoundOrInactive)
	}
	return user, nil
}

func (s *Service) openSession(user *User) (*AuthResult, error) {
	token, err := s.sessions.Issue(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, TokenType: TokenTypeBearer, User: user}, nil
}

// dispatch runs send after the token is persisted. Failures are logged and
// never invalidate the token.
func (s *Service) dispatch(ctx context.Context, purpose Purpose, user *User, send func() error) {
	if err := send(); err != nil {
		errutil.LogError(s.logger, "mail dispatch failed", oops.Code("MAIL_DISPATCH_FAILED").
			With("purpose", string(purpose)).
			With("user_id", user.ID).
			Wrap(err))
		return
	}
	s.logger.DebugContext(ctx, "mail dispatched", "purpose", string(purpose), "user_id", user.ID)
}

func (s *Service) invalidLink(ctx context.Context, flow string, cause error) error {
	switch {
	case errors.Is(cause, ErrTokenNotFound),
		errors.Is(cause, ErrTokenExpired),
		errors.Is(cause, ErrTokenAlreadyUsed),
		errors.Is(cause, ErrUserNotFoundOrInactive):
		s.logger.DebugContext(ctx, "link rejected", "flow", flow, "reason", errutil.Code(cause))
	default:
		errutil.LogError(s.logger, "link redemption failed", cause)
	}
	return oops.Code(CodeInvalidLink).With("flow", flow).Wrap(ErrInvalidLink)
}

func (s *Service) start(ctx context.Context, flow string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "auth."+flow, trace.WithAttributes(attribute.String("auth.flow", flow)))
}

func (s *Service) finish(span trace.Span, flow string, err error) {
	defer span.End()

	outcome := "success"
	if err != nil {
		outcome = "error"
		if code := errutil.Code(err); code != "" {
			outcome = strings.ToLower(code)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	s.recorder.FlowCompleted(flow, outcome)
}
