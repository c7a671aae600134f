// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Failure kinds. Each is wrapped inside an oops error carrying the matching
// code, so callers can use errors.Is or inspect the code.
var (
	ErrInvalidEmail           = errors.New("invalid email")
	ErrDuplicateEmail         = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInactiveAccount        = errors.New("account is inactive")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrTokenNotFound          = errors.New("token not found")
	ErrTokenExpired           = errors.New("token expired")
	ErrTokenAlreadyUsed       = errors.New("token already used")
	ErrTokenCollision         = errors.New("token already exists")
	ErrInvalidLink            = errors.New("invalid or expired link")
	ErrSessionMalformed       = errors.New("session token malformed")
	ErrSessionBadSignature    = errors.New("session token signature invalid")
	ErrSessionExpired         = errors.New("session token expired")
	ErrUserNotFoundOrInactive = errors.New("user not found or inactive")
)

// Error codes attached to the failure kinds above.
const (
	CodeInvalidEmail           = "AUTH_INVALID_EMAIL"
	CodeDuplicateEmail         = "AUTH_DUPLICATE_EMAIL"
	CodeInvalidCredentials     = "AUTH_INVALID_CREDENTIALS"
	CodeInactiveAccount        = "AUTH_INACTIVE_ACCOUNT"
	CodeUnauthorized           = "AUTH_UNAUTHORIZED"
	CodeAccountNotFound        = "AUTH_ACCOUNT_NOT_FOUND"
	CodeTokenNotFound          = "TOKEN_NOT_FOUND"
	CodeTokenExpired           = "TOKEN_EXPIRED"
	CodeTokenAlreadyUsed       = "TOKEN_ALREADY_USED"
	CodeTokenCollision         = "TOKEN_COLLISION"
	CodeInvalidLink            = "AUTH_INVALID_LINK"
	CodeSessionMalformed       = "SESSION_MALFORMED"
	CodeSessionBadSignature    = "SESSION_BAD_SIGNATURE"
	CodeSessionExpired         = "SESSION_EXPIRED"
	CodeUserNotFoundOrInactive = "SESSION_USER_NOT_FOUND_OR_INACTIVE"
)
