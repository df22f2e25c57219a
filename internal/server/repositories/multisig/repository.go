// Package multisig declares storage for release workflows and their fixed
// signer and recipient sets.
package multisig

import (
	"context"
	"time"

	"github.com/dmitrijs2005/safelog/internal/server/models"
)

type Repository interface {
	// CreateWorkflow inserts the workflow row and sets w.ID. Children are
	// added separately.
	CreateWorkflow(ctx context.Context, w *models.Workflow) error
	AddSigner(ctx context.Context, s *models.Signer) error
	AddRecipient(ctx context.Context, r *models.Recipient) error

	// GetWorkflow returns the bare workflow row.
	GetWorkflow(ctx context.Context, id int64) (*models.Workflow, error)
	// LockWorkflow is GetWorkflow plus a row lock held until the transaction
	// ends, serializing signers of the same workflow.
	LockWorkflow(ctx context.Context, id int64) (*models.Workflow, error)

	ListSigners(ctx context.Context, workflowID int64) ([]models.Signer, error)
	ListRecipients(ctx context.Context, workflowID int64) ([]models.Recipient, error)

	// MarkSigned records a signature only for a signer that has not signed.
	// It returns common.ErrorNotFound when no such pending row exists.
	MarkSigned(ctx context.Context, workflowID int64, signer, signature string, at time.Time) error
	// SetRecipientKey stores key for an existing recipient. Unknown
	// recipients are ignored and reported as false.
	SetRecipientKey(ctx context.Context, workflowID int64, recipient, key string) (bool, error)
	// Complete flips a pending workflow to completed. It reports false when
	// the workflow was already completed.
	Complete(ctx context.Context, workflowID int64) (bool, error)

	// ListVisible returns workflows the address owns or signs, plus those
	// it receives once completed.
	ListVisible(ctx context.Context, address string) ([]models.Workflow, error)
}
