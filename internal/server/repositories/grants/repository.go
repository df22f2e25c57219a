// Package grants declares storage for access grants. At most one grant
// exists per (secret, grantee).
package grants

import (
	"context"

	"github.com/dmitrijs2005/safelog/internal/server/models"
)

type Repository interface {
	// Create inserts g and sets g.ID. A second grant for the same pair is
	// common.ErrConflict.
	Create(ctx context.Context, g *models.AccessGrant) error
	// CreateIfAbsent inserts g unless the pair already has a grant and
	// reports whether a row was written. Safe under concurrent callers.
	CreateIfAbsent(ctx context.Context, g *models.AccessGrant) (bool, error)
	Get(ctx context.Context, id int64) (*models.AccessGrant, error)
	Find(ctx context.Context, secretID int64, grantee string) (*models.AccessGrant, error)
	Delete(ctx context.Context, id int64) error
	DeleteFor(ctx context.Context, secretID int64, grantee string) error
	DeleteBySecret(ctx context.Context, secretID int64) error
	ListBySecret(ctx context.Context, secretID int64) ([]models.AccessGrant, error)
	// ListSharedWith returns grants held by grantee on secrets owned by
	// someone else.
	ListSharedWith(ctx context.Context, grantee string) ([]models.SharedGrant, error)
}
