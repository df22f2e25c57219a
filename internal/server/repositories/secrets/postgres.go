// Package secrets provides the PostgreSQL-backed secret repository.
package secrets

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

// PostgresRepository implements secret storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Secret) error {
	query := `
		INSERT INTO secrets (owner_address, name, type, encrypted_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		s.OwnerAddress, s.Name, string(s.Type), s.EncryptedData, s.CreatedAt, s.UpdatedAt).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.Secret, error) {
	query := `
		SELECT id, owner_address, name, type, encrypted_data, created_at, updated_at
		FROM secrets
		WHERE id = $1
	`
	var (
		s  models.Secret
		st string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.OwnerAddress, &s.Name, &st, &s.EncryptedData, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.Type = models.SecretType(st)
	return &s, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id int64, name, encryptedData string, now time.Time) error {
	query := `
		UPDATE secrets SET name = $2, encrypted_data = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, name, encryptedData, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM secrets WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListOwned(ctx context.Context, owner string) ([]models.SecretWithKey, error) {
	query := `
		SELECT s.id, s.owner_address, s.name, s.type, s.encrypted_data, s.created_at, s.updated_at,
		       g.encrypted_key, g.expires_at
		FROM secrets s
		JOIN access_grants g ON g.secret_id = s.id AND g.grantee_address = s.owner_address
		WHERE s.owner_address = $1
		ORDER BY s.id
	`
	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to select secrets: %w", err)
	}
	defer rows.Close()

	var result []models.SecretWithKey
	for rows.Next() {
		var (
			item models.SecretWithKey
			st   string
			exp  sql.NullTime
		)
		if err := rows.Scan(
			&item.ID, &item.OwnerAddress, &item.Name, &st, &item.EncryptedData, &item.CreatedAt, &item.UpdatedAt,
			&item.EncryptedKey, &exp,
		); err != nil {
			return nil, err
		}
		item.Type = models.SecretType(st)
		if exp.Valid {
			item.ExpiresAt = &exp.Time
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
