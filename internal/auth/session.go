// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// MinSessionSecretBytes is the minimum length of the session signing secret.
const MinSessionSecretBytes = 32

// TokenTypeBearer is reported alongside issued session tokens.
const TokenTypeBearer = "bearer"

// SessionConfig configures a SessionCodec.
type SessionConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	// Now overrides the time source. Defaults to time.Now.
	Now func() time.Time
}

// SessionCodec issues and verifies stateless HS256 session tokens carrying
// the user id, issue time and expiry.
type SessionCodec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// NewSessionCodec validates cfg and creates a SessionCodec.
func NewSessionCodec(cfg SessionConfig) (*SessionCodec, error) {
	if len(cfg.Secret) < MinSessionSecretBytes {
		return nil, oops.Code("SESSION_CONFIG_INVALID").
			With("secret_length", len(cfg.Secret)).
			Errorf("session secret must be at least %d bytes", MinSessionSecretBytes)
	}
	if cfg.TTL <= 0 {
		return nil, oops.Code("SESSION_CONFIG_INVALID").
			With("ttl", cfg.TTL.String()).
			Errorf("session ttl must be positive")
	}

	c := &SessionCodec{
		secret: append([]byte(nil), cfg.Secret...),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    cfg.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.issuer))
	}
	c.parser = jwt.NewParser(parserOpts...)
	return c, nil
}

// TTL returns the lifetime of issued tokens.
func (c *SessionCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a session token for user.
func (c *SessionCodec) Issue(user *User) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(user.ID, 10),
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", oops.Code("SESSION_ISSUE_FAILED").
			With("user_id", user.ID).
			Wrap(err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns the user id it
// carries. No payload field is read before the signature is verified.
func (c *SessionCodec) Verify(token string) (int64, error) {
	var claims jwt.RegisteredClaims
	_, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) && c.onlySignatureUndecodable(token) {
			return 0, oops.Code(CodeSessionBadSignature).
				With("reason", "signature encoding").
				Wrap(ErrSessionBadSignature)
		}
		return 0, classifySessionError(err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, oops.Code(CodeSessionMalformed).
			With("reason", "subject is not a user id").
			Wrap(ErrSessionMalformed)
	}
	return userID, nil
}

// onlySignatureUndecodable reports whether token parses apart from its
// signature segment. Strict decoding rejects a signature whose spare trailing
// bits were altered, which is tampering rather than a malformed token.
func (c *SessionCodec) onlySignatureUndecodable(token string) bool {
	_, _, err := c.parser.ParseUnverified(token, &jwt.RegisteredClaims{})
	return err == nil
}

func classifySessionError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return oops.Code(CodeSessionMalformed).With("reason", err.Error()).Wrap(ErrSessionMalformed)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return oops.Code(CodeSessionBadSignature).Wrap(ErrSessionBadSignature)
	case errors.Is(err, jwt.ErrTokenExpired):
		return oops.Code(CodeSessionExpired).Wrap(ErrSessionExpired)
	default:
		return oops.Code(CodeSessionMalformed).With("reason", err.Error()).Wrap(ErrSessionMalformed)
	}
}
