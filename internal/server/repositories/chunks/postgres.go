package chunks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/models"
)

// PostgresRepository implements chunk metadata storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert writes a chunk row keyed by (secret_id, chunk_index). On conflict
// the iv, storage key and size are replaced.
func (r *PostgresRepository) Upsert(ctx context.Context, c *models.Chunk) error {
	query := `
		INSERT INTO file_chunks (secret_id, chunk_index, iv, storage_key, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (secret_id, chunk_index)
		DO UPDATE SET
			iv = EXCLUDED.iv,
			storage_key = EXCLUDED.storage_key,
			size = EXCLUDED.size,
			created_at = EXCLUDED.created_at
	`
	_, err := r.db.ExecContext(ctx, query, c.SecretID, c.Index, c.IV, c.StorageKey, c.Size, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, secretID int64, index int) (*models.Chunk, error) {
	query := ` SELECT secret_id, chunk_index, iv, storage_key, size, created_at from file_chunks
		WHERE secret_id=$1 and chunk_index=$2
		`
	c := &models.Chunk{}
	err := r.db.QueryRowContext(ctx, query, secretID, index).
		Scan(&c.SecretID, &c.Index, &c.IV, &c.StorageKey, &c.Size, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

// List returns chunk metadata for the secret ordered by index.
func (r *PostgresRepository) List(ctx context.Context, secretID int64) ([]models.Chunk, error) {
	query := ` SELECT secret_id, chunk_index, iv, storage_key, size, created_at from file_chunks
		WHERE secret_id=$1 ORDER BY chunk_index
		`
	rows, err := r.db.QueryContext(ctx, query, secretID)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunks: %w", err)
	}
	defer rows.Close()

	var result []models.Chunk
	for rows.Next() {
		var item models.Chunk
		if err := rows.Scan(&item.SecretID, &item.Index, &item.IV, &item.StorageKey, &item.Size, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) TotalSize(ctx context.Context, secretID int64, excludeIndex int) (int64, error) {
	query := `SELECT COALESCE(SUM(size), 0) FROM file_chunks WHERE secret_id=$1 AND chunk_index<>$2`

	var total int64
	if err := r.db.QueryRowContext(ctx, query, secretID, excludeIndex).Scan(&total); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}

func (r *PostgresRepository) DeleteBySecret(ctx context.Context, secretID int64) error {
	query := `DELETE FROM file_chunks WHERE secret_id=$1`
	if _, err := r.db.ExecContext(ctx, query, secretID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
