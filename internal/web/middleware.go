// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package web

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/internal/auth"
)

const userKey = "gatekeep.user"

// bearer resolves the Authorization header to a live user through
// AuthService.CurrentUser and stores it on the context.
func (s *server) bearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return oops.Code(auth.CodeSessionMalformed).Wrap(auth.ErrSessionMalformed)
		}
		user, err := s.svc.CurrentUser(c.Request().Context(), token)
		if err != nil {
			return err
		}
		c.Set(userKey, user)
		return next(c)
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// CurrentUser returns the user resolved by the bearer middleware, or nil on
// routes without it.
func CurrentUser(c echo.Context) *auth.User {
	user, _ := c.Get(userKey).(*auth.User)
	return user
}
