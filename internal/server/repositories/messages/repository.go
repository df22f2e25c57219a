// Package messages declares storage for direct messages between users.
package messages

import (
	"context"

	"github.com/dmitrijs2005/safelog/internal/server/models"
)

type Repository interface {
	// Create inserts m and sets m.ID.
	Create(ctx context.Context, m *models.Message) error
	// Conversations returns one summary per partner, newest first.
	Conversations(ctx context.Context, address string) ([]models.Conversation, error)
	// History returns messages exchanged by a and b, oldest first.
	History(ctx context.Context, a, b string) ([]models.Message, error)
	// MarkRead marks messages from partner to reader as read and returns
	// how many changed.
	MarkRead(ctx context.Context, reader, partner string) (int64, error)
}
