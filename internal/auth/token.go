// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/samber/oops"
)

// MinTokenBytes is the minimum entropy of a redeemable token.
const MinTokenBytes = 32

// TokenGenerator produces opaque single-use credentials.
type TokenGenerator interface {
	Generate() (string, error)
}

// RandomTokenGenerator reads from crypto/rand and encodes the bytes as
// unpadded URL-safe base64.
type RandomTokenGenerator struct {
	bytes int
}

// NewRandomTokenGenerator creates a generator emitting n random bytes per
// token. Values below MinTokenBytes are raised to MinTokenBytes.
func NewRandomTokenGenerator(n int) *RandomTokenGenerator {
	if n < MinTokenBytes {
		n = MinTokenBytes
	}
	return &RandomTokenGenerator{bytes: n}
}

// Generate returns a fresh token.
func (g *RandomTokenGenerator) Generate() (string, error) {
	n := g.bytes
	if n < MinTokenBytes {
		n = MinTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
