// Package users declares the user directory repository.
package users

import (
	"context"

	"github.com/dmitrijs2005/safelog/internal/server/models"
)

type Repository interface {
	// Create inserts a new user. The address must already be normalized.
	Create(ctx context.Context, user *models.User) error
	// Get returns common.ErrorNotFound when the address is unknown.
	Get(ctx context.Context, address string) (*models.User, error)
	Exists(ctx context.Context, address string) (bool, error)
	UpdateEncryptionKey(ctx context.Context, address, key string) error
	UpdateUsername(ctx context.Context, address, username string) error
	// Search matches query as a case-insensitive substring of the address or
	// username. An empty query lists everyone.
	Search(ctx context.Context, query string, limit, offset int) ([]models.User, error)
}
