// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package web

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

func (s *server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy", "service": "gatekeep"})
}

func (s *server) register(c echo.Context) error {
	var req credentialsRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	result, err := s.svc.Register(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newTokenResponse(result))
}

func (s *server) login(c echo.Context) error {
	var req credentialsRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	result, err := s.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newTokenResponse(result))
}

func (s *server) requestMagicLink(c echo.Context) error {
	var req emailRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	msg, err := s.svc.RequestMagicLink(c.Request().Context(), req.Email, s.origin(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: msg})
}

func (s *server) verifyMagicLink(c echo.Context) error {
	var req tokenRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	result, err := s.svc.VerifyMagicLink(c.Request().Context(), req.Token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newTokenResponse(result))
}

func (s *server) requestPasswordReset(c echo.Context) error {
	var req emailRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	msg, err := s.svc.RequestPasswordReset(c.Request().Context(), req.Email, s.origin(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: msg})
}

func (s *server) confirmPasswordReset(c echo.Context) error {
	var req resetConfirmRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	msg, err := s.svc.ConfirmPasswordReset(c.Request().Context(), req.Token, req.NewPassword)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: msg})
}

func (s *server) me(c echo.Context) error {
	return c.JSON(http.StatusOK, newUserResponse(CurrentUser(c)))
}

func (s *server) deleteAccount(c echo.Context) error {
	var req passwordRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	msg, err := s.svc.DeleteAccount(c.Request().Context(), CurrentUser(c), req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: msg})
}

// origin is where mailed links point: the caller's Origin header when it is
// allow-listed, otherwise the configured fallback.
func (s *server) origin(c echo.Context) string {
	origin := normalizeOrigin(c.Request().Header.Get(echo.HeaderOrigin))
	if origin == "" {
		return s.opts.OriginFallback
	}
	if _, ok := s.origins[origin]; ok {
		return origin
	}
	s.logger.DebugContext(c.Request().Context(), "origin not allowed, using fallback", "origin", origin)
	return s.opts.OriginFallback
}

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}

// bindValid decodes the JSON body into req and validates it. Email fields
// are trimmed first.
func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return errBadBody
	}
	switch r := req.(type) {
	case *credentialsRequest:
		r.Email = strings.TrimSpace(r.Email)
	case *emailRequest:
		r.Email = strings.TrimSpace(r.Email)
	}
	return c.Validate(req)
}
