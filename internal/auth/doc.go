// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package auth provides the authentication core of Gatekeep.
//
// # Components
//
//   - UserStore - user creation, password checks and soft-delete
//   - TokenGenerator - random opaque strings for single-use credentials
//   - TokenStore - issue and atomically redeem magic-link and password-reset tokens
//   - SessionCodec - signed, stateless bearer session tokens
//   - Service - the register, login, magic-link, password-reset and delete-account flows
//
// # Soft delete
//
// A soft-deleted user keeps its row with deleted_at set. Its email can be
// registered again. Email lookups state which records they see: active
// (non-deleted), all, or deleted only.
//
// # Failures
//
// Every failure is an oops error with a stable code that wraps one of the
// Err* sentinels, so callers match with errors.Is. Service deliberately
// collapses token failures into ErrInvalidLink.
package auth
