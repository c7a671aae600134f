// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package mail implements auth.Mailer. Gatekeep does not render or send
// email itself: it hands a job with the recipient and the credential link to
// an external sender.
package mail

import (
	"net/url"
	"strings"

	"github.com/samber/oops"
)

// Job kinds.
const (
	KindMagicLink     = "magic_link"
	KindPasswordReset = "password_reset"
)

// Paths are the frontend routes that receive a token.
type Paths struct {
	MagicLink     string
	PasswordReset string
}

// DefaultPaths returns the default frontend routes.
func DefaultPaths() Paths {
	return Paths{
		MagicLink:     "/auth/magic-link/verify",
		PasswordReset: "/auth/password-reset/confirm",
	}
}

func (p Paths) forKind(kind string) string {
	if kind == KindPasswordReset {
		return p.PasswordReset
	}
	return p.MagicLink
}

// BuildLink joins origin and path and adds the token query parameter.
// origin must be an absolute http or https URL.
func BuildLink(origin, path, token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", oops.Code("MAIL_INVALID_ORIGIN").With("origin", origin).Wrap(err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", oops.Code("MAIL_INVALID_ORIGIN").With("origin", origin).Errorf("origin must be an absolute http(s) URL")
	}
	if token == "" {
		return "", oops.Code("MAIL_EMPTY_TOKEN").Errorf("token is required")
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	u.RawPath = ""
	u.RawQuery = url.Values{"token": {token}}.Encode()
	u.Fragment = ""
	return u.String(), nil
}
