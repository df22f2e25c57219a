package grants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/models"
)

// PostgresRepository implements grant storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, g *models.AccessGrant) error {
	query := `
		INSERT INTO access_grants (secret_id, grantee_address, encrypted_key, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		g.SecretID, g.GranteeAddress, g.EncryptedKey, g.CreatedAt, nullTime(g)).Scan(&g.ID)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: grant exists", common.ErrConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, g *models.AccessGrant) (bool, error) {
	query := `
		INSERT INTO access_grants (secret_id, grantee_address, encrypted_key, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (secret_id, grantee_address) DO NOTHING
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		g.SecretID, g.GranteeAddress, g.EncryptedKey, g.CreatedAt, nullTime(g)).Scan(&g.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

const selectGrant = `
		SELECT id, secret_id, grantee_address, encrypted_key, created_at, expires_at
		FROM access_grants
`

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.AccessGrant, error) {
	return r.getOne(ctx, selectGrant+`WHERE id = $1`, id)
}

func (r *PostgresRepository) Find(ctx context.Context, secretID int64, grantee string) (*models.AccessGrant, error) {
	return r.getOne(ctx, selectGrant+`WHERE secret_id = $1 AND grantee_address = $2`, secretID, grantee)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.AccessGrant, error) {
	g, err := scanGrant(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, `DELETE FROM access_grants WHERE id = $1`, id)
}

func (r *PostgresRepository) DeleteFor(ctx context.Context, secretID int64, grantee string) error {
	return r.exec(ctx, `DELETE FROM access_grants WHERE secret_id = $1 AND grantee_address = $2`, secretID, grantee)
}

func (r *PostgresRepository) DeleteBySecret(ctx context.Context, secretID int64) error {
	return r.exec(ctx, `DELETE FROM access_grants WHERE secret_id = $1`, secretID)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListBySecret(ctx context.Context, secretID int64) ([]models.AccessGrant, error) {
	rows, err := r.db.QueryContext(ctx, selectGrant+`WHERE secret_id = $1 ORDER BY id`, secretID)
	if err != nil {
		return nil, fmt.Errorf("failed to select grants: %w", err)
	}
	defer rows.Close()

	var result []models.AccessGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListSharedWith(ctx context.Context, grantee string) ([]models.SharedGrant, error) {
	query := `
		SELECT g.id, g.secret_id, g.grantee_address, g.encrypted_key, g.created_at, g.expires_at,
		       s.name, s.type, s.owner_address
		FROM access_grants g
		JOIN secrets s ON s.id = g.secret_id
		WHERE g.grantee_address = $1 AND s.owner_address <> $1
		ORDER BY g.id
	`
	rows, err := r.db.QueryContext(ctx, query, grantee)
	if err != nil {
		return nil, fmt.Errorf("failed to select grants: %w", err)
	}
	defer rows.Close()

	var result []models.SharedGrant
	for rows.Next() {
		var (
			item models.SharedGrant
			exp  sql.NullTime
			st   string
		)
		if err := rows.Scan(
			&item.ID, &item.SecretID, &item.GranteeAddress, &item.EncryptedKey, &item.CreatedAt, &exp,
			&item.SecretName, &st, &item.OwnerAddress,
		); err != nil {
			return nil, err
		}
		if exp.Valid {
			item.ExpiresAt = &exp.Time
		}
		item.SecretType = models.SecretType(st)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGrant(s scanner) (*models.AccessGrant, error) {
	var (
		g   models.AccessGrant
		exp sql.NullTime
	)
	if err := s.Scan(&g.ID, &g.SecretID, &g.GranteeAddress, &g.EncryptedKey, &g.CreatedAt, &exp); err != nil {
		return nil, err
	}
	if exp.Valid {
		g.ExpiresAt = &exp.Time
	}
	return &g, nil
}

func nullTime(g *models.AccessGrant) sql.NullTime {
	if g.ExpiresAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *g.ExpiresAt, Valid: true}
}
