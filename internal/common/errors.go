// Package common defines shared constants and sentinel errors used across
// the vault server and client. Callers should use errors.Is to match these
// values; the HTTP boundary maps each of them to a status code.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrValidation     = errors.New("validation error")
	ErrRateLimited    = errors.New("too many requests")

	// Challenge-response login errors.
	ErrInvalidNonce     = errors.New("invalid nonce")
	ErrNonceStale       = fmt.Errorf("%w: nonce expired or not requested", ErrInvalidNonce)
	ErrNonceMismatch    = fmt.Errorf("%w: nonce mismatch", ErrInvalidNonce)
	ErrInvalidSignature = errors.New("invalid signature")

	// Auth errors (invalid, malformed or expired token). Never carries the reason.
	ErrInvalidToken = errors.New("invalid token")

	// State conflicts.
	ErrConflict      = errors.New("conflict")
	ErrAlreadySigned = fmt.Errorf("%w: already signed", ErrConflict)

	// Size limits on ciphertext payloads and chunk sets.
	ErrPayloadTooLarge = errors.New("payload too large")
)
