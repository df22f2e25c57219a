// Package nonces provides a PostgreSQL-backed repository for the one-time
// challenges used by the login flow.
package nonces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/models"
)

// PostgresRepository implements nonce storage over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, n *models.Nonce) error {
	query := `
		INSERT INTO nonces (address, nonce, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address)
		DO UPDATE SET nonce = EXCLUDED.nonce, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
	`
	if _, err := r.db.ExecContext(ctx, query, n.Address, n.Value, n.CreatedAt, n.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, address string) (*models.Nonce, error) {
	query := `
		SELECT address, nonce, created_at, expires_at
		FROM nonces
		WHERE address = $1
		FOR UPDATE
	`
	n := &models.Nonce{}
	if err := r.db.QueryRowContext(ctx, query, address).Scan(&n.Address, &n.Value, &n.CreatedAt, &n.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, address string) error {
	query := `
		DELETE FROM nonces
		WHERE address = $1
	`
	if _, err := r.db.ExecContext(ctx, query, address); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM nonces
		WHERE expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
