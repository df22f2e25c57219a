package multisig

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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateWorkflow(ctx context.Context, w *models.Workflow) error {
	query := `
		INSERT INTO multisig_workflows (name, owner_address, secret_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query, w.Name, w.OwnerAddress, w.SecretID, string(w.Status), w.CreatedAt).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddSigner(ctx context.Context, s *models.Signer) error {
	query := `
		INSERT INTO multisig_signers (workflow_id, user_address, has_signed, encrypted_key)
		VALUES ($1, $2, FALSE, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, s.WorkflowID, s.UserAddress, s.EncryptedKey); err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate signer", common.ErrValidation)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddRecipient(ctx context.Context, rc *models.Recipient) error {
	query := `
		INSERT INTO multisig_recipients (workflow_id, user_address, encrypted_key)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, rc.WorkflowID, rc.UserAddress, nullKey(rc.EncryptedKey)); err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate recipient", common.ErrValidation)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectWorkflow = `
		SELECT id, name, owner_address, secret_id, status, created_at
		FROM multisig_workflows
`

func (r *PostgresRepository) GetWorkflow(ctx context.Context, id int64) (*models.Workflow, error) {
	return r.getWorkflow(ctx, selectWorkflow+`WHERE id = $1`, id)
}

func (r *PostgresRepository) LockWorkflow(ctx context.Context, id int64) (*models.Workflow, error) {
	return r.getWorkflow(ctx, selectWorkflow+`WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) getWorkflow(ctx context.Context, query string, id int64) (*models.Workflow, error) {
	w, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return w, nil
}

func (r *PostgresRepository) ListSigners(ctx context.Context, workflowID int64) ([]models.Signer, error) {
	query := `
		SELECT workflow_id, user_address, has_signed, signature, signed_at, encrypted_key
		FROM multisig_signers
		WHERE workflow_id = $1
		ORDER BY user_address
	`
	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to select signers: %w", err)
	}
	defer rows.Close()

	var result []models.Signer
	for rows.Next() {
		var (
			s   models.Signer
			sig sql.NullString
			at  sql.NullTime
		)
		if err := rows.Scan(&s.WorkflowID, &s.UserAddress, &s.HasSigned, &sig, &at, &s.EncryptedKey); err != nil {
			return nil, err
		}
		s.Signature = sig.String
		if at.Valid {
			s.SignedAt = &at.Time
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListRecipients(ctx context.Context, workflowID int64) ([]models.Recipient, error) {
	query := `
		SELECT workflow_id, user_address, encrypted_key
		FROM multisig_recipients
		WHERE workflow_id = $1
		ORDER BY user_address
	`
	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to select recipients: %w", err)
	}
	defer rows.Close()

	var result []models.Recipient
	for rows.Next() {
		var (
			rc  models.Recipient
			key sql.NullString
		)
		if err := rows.Scan(&rc.WorkflowID, &rc.UserAddress, &key); err != nil {
			return nil, err
		}
		if key.Valid {
			k := key.String
			rc.EncryptedKey = &k
		}
		result = append(result, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) MarkSigned(ctx context.Context, workflowID int64, signer, signature string, at time.Time) error {
	query := `
		UPDATE multisig_signers SET has_signed = TRUE, signature = $3, signed_at = $4
		WHERE workflow_id = $1 AND user_address = $2 AND has_signed = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, workflowID, signer, signature, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SetRecipientKey(ctx context.Context, workflowID int64, recipient, key string) (bool, error) {
	query := `
		UPDATE multisig_recipients SET encrypted_key = $3
		WHERE workflow_id = $1 AND user_address = $2
	`
	res, err := r.db.ExecContext(ctx, query, workflowID, recipient, key)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Complete(ctx context.Context, workflowID int64) (bool, error) {
	query := `
		UPDATE multisig_workflows SET status = 'completed'
		WHERE id = $1 AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query, workflowID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) ListVisible(ctx context.Context, address string) ([]models.Workflow, error) {
	query := selectWorkflow + `WHERE owner_address = $1
		   OR id IN (SELECT workflow_id FROM multisig_signers WHERE user_address = $1)
		   OR (status = 'completed' AND id IN (SELECT workflow_id FROM multisig_recipients WHERE user_address = $1))
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("failed to select workflows: %w", err)
	}
	defer rows.Close()

	var result []models.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(s scanner) (*models.Workflow, error) {
	var (
		w      models.Workflow
		status string
	)
	if err := s.Scan(&w.ID, &w.Name, &w.OwnerAddress, &w.SecretID, &status, &w.CreatedAt); err != nil {
		return nil, err
	}
	w.Status = models.WorkflowStatus(status)
	return &w, nil
}

func nullKey(k *string) sql.NullString {
	if k == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *k, Valid: true}
}
