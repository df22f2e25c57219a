// Package secrets declares storage for secret ciphertext rows.
package secrets

import (
	"context"
	"time"

	"github.com/dmitrijs2005/safelog/internal/server/models"
)

type Repository interface {
	// Create inserts s and sets s.ID.
	Create(ctx context.Context, s *models.Secret) error
	// Get returns common.ErrorNotFound when the id is unknown.
	Get(ctx context.Context, id int64) (*models.Secret, error)
	Update(ctx context.Context, id int64, name, encryptedData string, now time.Time) error
	// Delete removes the secret row. Grants, chunks and workflows cascade.
	Delete(ctx context.Context, id int64) error
	// ListOwned returns the owner's secrets joined with the owner's own grant.
	ListOwned(ctx context.Context, owner string) ([]models.SecretWithKey, error)
}
