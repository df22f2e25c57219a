// Package auth issues and verifies session tokens. Tokens are JWTs carrying
// the subject address and an expiry. They are signed either with HS256 and
// the server secret, or with the PQC oracle's ML-DSA key, in which case the
// oracle is asked to verify every token against its cached public key.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/safelog/internal/clock"
	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/logging"
)

// Claims is the token payload: {sub, exp}.
type Claims struct {
	jwt.RegisteredClaims
}

// Oracle signs and verifies with the server's post-quantum key.
type Oracle interface {
	Sign(ctx context.Context, message string) (string, error)
	Verify(ctx context.Context, message, signature, publicKey string) (bool, error)
}

// KeyProvider returns the oracle's public key, normally a *pqc.KeyCache.
type KeyProvider interface {
	Get(ctx context.Context) (string, error)
}

type Codec struct {
	method jwt.SigningMethod
	secret []byte
	oracle Oracle
	keys   KeyProvider
	ttl    time.Duration
	clock  clock.Clock
	log    logging.Logger
}

// NewHMACCodec returns a codec verifying tokens locally with secret.
func NewHMACCodec(secret []byte, ttl time.Duration, clk clock.Clock, log logging.Logger) *Codec {
	return &Codec{
		method: jwt.SigningMethodHS256,
		secret: secret,
		ttl:    ttl,
		clock:  clk,
		log:    log,
	}
}

// NewPQCCodec returns a codec whose tokens are signed and verified by the
// oracle. The server public key is fetched through keys on first verify.
func NewPQCCodec(oracle Oracle, keys KeyProvider, ttl time.Duration, clk clock.Clock, log logging.Logger) *Codec {
	return &Codec{
		method: SigningMethodMLDSA44,
		oracle: oracle,
		keys:   keys,
		ttl:    ttl,
		clock:  clk,
		log:    log,
	}
}

// Issue builds a token for subject expiring ttl from now.
func (c *Codec) Issue(ctx context.Context, subject string) (string, time.Time, error) {
	exp := c.clock.Now().Add(c.ttl)
	token := jwt.NewWithClaims(c.method, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	var key any = c.secret
	if c.oracle != nil {
		key = &oracleKey{ctx: ctx, oracle: c.oracle}
	}

	tokenString, err := token.SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, exp, nil
}

// Verify returns the subject of a valid, unexpired token. Every failure is
// reported as common.ErrInvalidToken.
func (c *Codec) Verify(ctx context.Context, tokenString string) (string, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if c.oracle == nil {
			return c.secret, nil
		}
		pk, err := c.keys.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("server public key: %w", err)
		}
		return &oracleKey{ctx: ctx, oracle: c.oracle, publicKey: pk}, nil
	},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenExpired) {
			c.log.Warn(ctx, "token rejected", "error", err)
		}
		return "", common.ErrInvalidToken
	}

	if claims.Subject == "" {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}
