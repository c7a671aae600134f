// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package web

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/pkg/errutil"
)

// Response messages for failures.
const (
	MessageBadBody            = "Invalid request body"
	MessageValidation         = "Validation failed"
	MessageInvalidEmail       = "Invalid email address"
	MessagePasswordRequired   = "Password is required"
	MessageDuplicateEmail     = "User with this email already exists"
	MessageInvalidCredentials = "Invalid email or password"
	MessageInactiveAccount    = "Account is inactive"
	MessageNoActiveAccount    = "No active account found with this email"
	MessageInvalidLink        = "Invalid or expired link"
	MessageInvalidPassword    = "Invalid password"
	MessageInvalidSession     = "Invalid or expired token"
	MessageInternal           = "Internal server error"
)

var errBadBody = errors.New("malformed request body")

type failure struct {
	status  int
	message string
}

// failures maps auth sentinels to responses, checked in order.
var failures = []struct {
	target error
	failure
}{
	{auth.ErrDuplicateEmail, failure{http.StatusConflict, MessageDuplicateEmail}},
	{auth.ErrInvalidEmail, failure{http.StatusBadRequest, MessageInvalidEmail}},
	{auth.ErrEmptyPassword, failure{http.StatusBadRequest, MessagePasswordRequired}},
	{auth.ErrInvalidCredentials, failure{http.StatusUnauthorized, MessageInvalidCredentials}},
	{auth.ErrInactiveAccount, failure{http.StatusUnauthorized, MessageInactiveAccount}},
	{auth.ErrNotFound, failure{http.StatusNotFound, MessageNoActiveAccount}},
	{auth.ErrInvalidLink, failure{http.StatusBadRequest, MessageInvalidLink}},
	{auth.ErrUnauthorized, failure{http.StatusUnauthorized, MessageInvalidPassword}},
	{auth.ErrSessionMalformed, failure{http.StatusUnauthorized, MessageInvalidSession}},
	{auth.ErrSessionBadSignature, failure{http.StatusUnauthorized, MessageInvalidSession}},
	{auth.ErrSessionExpired, failure{http.StatusUnauthorized, MessageInvalidSession}},
	{auth.ErrUserNotFoundOrInactive, failure{http.StatusUnauthorized, MessageInvalidSession}},
}

func (s *server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := s.describe(err)
	if status == http.StatusUnauthorized && c.Get(userKey) == nil && isSessionFailure(err) {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		s.logger.Debug("error response not written", "error", writeErr)
	}
}

func (s *server) describe(err error) (int, messageResponse) {
	if errors.Is(err, errBadBody) {
		return http.StatusBadRequest, messageResponse{Message: MessageBadBody}
	}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for name, fieldErr := range fieldErrs {
			fields[name] = fieldErr.Error()
		}
		return http.StatusBadRequest, messageResponse{Message: MessageValidation, Errors: fields}
	}

	for _, f := range failures {
		if errors.Is(err, f.target) {
			return f.status, messageResponse{Message: f.message}
		}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok {
			msg = m
		}
		return httpErr.Code, messageResponse{Message: msg}
	}

	errutil.LogError(s.logger, "request failed", err)
	return http.StatusInternalServerError, messageResponse{Message: MessageInternal}
}

func isSessionFailure(err error) bool {
	return errors.Is(err, auth.ErrSessionMalformed) ||
		errors.Is(err, auth.ErrSessionBadSignature) ||
		errors.Is(err, auth.ErrSessionExpired) ||
		errors.Is(err, auth.ErrUserNotFoundOrInactive)
}
