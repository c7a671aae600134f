// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package errutil

import (
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err is an oops error with the given code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, oopsErr.Code())
}

// AssertErrorContext asserts that err carries key with value in its oops
// context.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	got, found := oopsErr.Context()[key]
	require.True(t, found, "context key %q missing", key)
	assert.Equal(t, value, got, "context key %q", key)
}

// AssertFailure asserts both halves of a failure kind: err wraps sentinel
// for errors.Is callers and carries code for logs and metrics.
func AssertFailure(t *testing.T, err error, sentinel error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	AssertErrorCode(t, err, code)
}

// AssertNotLeaked asserts that secret appears nowhere in err: not in its
// message and not in any oops context value. Plaintext tokens and passwords
// must never reach logs through error context.
func AssertNotLeaked(t *testing.T, err error, secret string) {
	t.Helper()
	require.NotEmpty(t, secret)
	if err == nil {
		return
	}
	assert.NotContains(t, err.Error(), secret, "error message")

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return
	}
	for key, value := range oopsErr.Context() {
		assert.NotContains(t, fmt.Sprint(value), secret, "context key %q", key)
	}
}
