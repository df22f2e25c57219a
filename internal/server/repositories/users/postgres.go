package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/identity"
	"github.com/dmitrijs2005/safelog/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) error {
	query :=
		`INSERT INTO users (address, kind, username, encryption_public_key, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 `

	_, err := r.db.ExecContext(ctx, query,
		user.Address, string(user.Kind), nullString(user.Username), nullString(user.EncryptionPublicKey), user.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: user exists", common.ErrConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, address string) (*models.User, error) {
	query :=
		`SELECT address, kind, username, encryption_public_key, created_at FROM users
		 WHERE address = $1
		 `

	u, err := scanUser(r.db.QueryRowContext(ctx, query, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, address string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE address = $1)`

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, address).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) UpdateEncryptionKey(ctx context.Context, address, key string) error {
	query := `UPDATE users SET encryption_public_key = $2 WHERE address = $1`
	return r.updateOne(ctx, query, address, key)
}

func (r *PostgresRepository) UpdateUsername(ctx context.Context, address, username string) error {
	query := `UPDATE users SET username = $2 WHERE address = $1`
	return r.updateOne(ctx, query, address, username)
}

func (r *PostgresRepository) updateOne(ctx context.Context, query, address, value string) error {
	res, err := r.db.ExecContext(ctx, query, address, value)
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

func (r *PostgresRepository) Search(ctx context.Context, query string, limit, offset int) ([]models.User, error) {
	q :=
		`SELECT address, kind, username, encryption_public_key, created_at FROM users
		 WHERE $1 = '' OR address LIKE $2 OR lower(username) LIKE $2
		 ORDER BY created_at, address
		 LIMIT $3 OFFSET $4
		 `

	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := r.db.QueryContext(ctx, q, query, pattern, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*models.User, error) {
	var (
		u        models.User
		kind     string
		username sql.NullString
		key      sql.NullString
	)
	if err := s.Scan(&u.Address, &kind, &username, &key, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Kind = identity.Kind(kind)
	u.Username = username.String
	u.EncryptionPublicKey = key.String
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
