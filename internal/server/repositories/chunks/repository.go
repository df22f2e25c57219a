// Package chunks declares metadata storage for file-secret chunks. The
// encrypted bytes live in blob storage; rows here point at them.
package chunks

import (
	"context"

	"github.com/dmitrijs2005/safelog/internal/server/models"
)

type Repository interface {
	// Upsert inserts the chunk or replaces the row with the same index.
	Upsert(ctx context.Context, c *models.Chunk) error
	Get(ctx context.Context, secretID int64, index int) (*models.Chunk, error)
	List(ctx context.Context, secretID int64) ([]models.Chunk, error)
	// TotalSize sums chunk sizes for the secret, excluding one index
	// (pass -1 to include all).
	TotalSize(ctx context.Context, secretID int64, excludeIndex int) (int64, error)
	DeleteBySecret(ctx context.Context, secretID int64) error
}
