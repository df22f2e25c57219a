// Package nonces declares the server-side repository contract for login
// challenge nonces.
package nonces

import (
	"context"
	"time"

	"github.com/dmitrijs2005/safelog/internal/server/models"
)

// Repository stores at most one live nonce per address.
type Repository interface {
	// Upsert stores n, replacing any earlier nonce for the same address.
	Upsert(ctx context.Context, n *models.Nonce) error

	// GetForUpdate returns the nonce for address and locks its row until the
	// surrounding transaction ends. Returns common.ErrorNotFound when absent.
	GetForUpdate(ctx context.Context, address string) (*models.Nonce, error)

	// Delete removes the nonce for address. Deleting a missing nonce is not an error.
	Delete(ctx context.Context, address string) error

	// DeleteExpired removes every nonce with expires_at <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
