// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import "context"

// Mailer delivers credential emails. Implementations build the link from
// originURL and the plaintext token; they must not log the token.
type Mailer interface {
	SendMagicLink(ctx context.Context, user *User, rawToken, originURL string) error
	SendPasswordReset(ctx context.Context, user *User, rawToken, originURL string) error
}
