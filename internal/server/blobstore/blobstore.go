// Package blobstore keeps encrypted file chunks outside the database. The
// server never decrypts them; it only stores and returns opaque bytes.
package blobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns common.ErrorNotFound for an unknown key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// NewKey returns a fresh storage key for one chunk. Re-uploading the same
// index gets a new key so the old blob can be removed after commit.
func NewKey(now time.Time, secretID int64, index int) string {
	return fmt.Sprintf("chunks/%d/%02d/%d/%d-%s", now.Year(), now.Month(), secretID, index, uuid.New())
}
