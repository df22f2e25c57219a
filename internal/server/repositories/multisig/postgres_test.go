package multisig

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/server/models"
)

const (
	owner = "0x5555555555555555555555555555555555555555"
	bob   = "0x6666666666666666666666666666666666666666"
)

var wfCols = []string{"id", "name", "owner_address", "secret_id", "status", "created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreateWorkflow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+multisig_workflows\b.*RETURNING\s+id\s*$`).
		WithArgs("release", owner, int64(3), "pending", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

	w := &models.Workflow{Name: "release", OwnerAddress: owner, SecretID: 3, Status: models.WorkflowPending, CreatedAt: now}
	require.NoError(t, repo.CreateWorkflow(context.Background(), w))
	assert.Equal(t, int64(9), w.ID)
}

func TestAddSignerAndRecipient(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	key := "rk"
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+multisig_signers\s*\(workflow_id,\s*user_address,\s*has_signed,\s*encrypted_key\)\s*VALUES\s*\(\$1,\s*\$2,\s*FALSE,\s*\$3\)`).
		WithArgs(int64(9), bob, "sk").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+multisig_signers`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+multisig_recipients`).
		WithArgs(int64(9), bob, "rk").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+multisig_recipients`).
		WithArgs(int64(9), owner, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddSigner(context.Background(), &models.Signer{WorkflowID: 9, UserAddress: bob, EncryptedKey: "sk"}))
	assert.ErrorIs(t, repo.AddSigner(context.Background(), &models.Signer{WorkflowID: 9, UserAddress: bob}), common.ErrValidation)
	require.NoError(t, repo.AddRecipient(context.Background(), &models.Recipient{WorkflowID: 9, UserAddress: bob, EncryptedKey: &key}))
	require.NoError(t, repo.AddRecipient(context.Background(), &models.Recipient{WorkflowID: 9, UserAddress: owner}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAndLockWorkflow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)FROM\s+multisig_workflows\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(wfCols).AddRow(int64(9), "r", owner, int64(3), "pending", now))
	mock.ExpectQuery(`(?s)FROM\s+multisig_workflows\s+WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE$`).
		WithArgs(int64(10)).
		WillReturnError(sql.ErrNoRows)

	w, err := repo.GetWorkflow(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowPending, w.Status)

	_, err = repo.LockWorkflow(context.Background(), 10)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListSignersAndRecipients(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)FROM\s+multisig_signers\s+WHERE\s+workflow_id\s*=\s*\$1`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"workflow_id", "user_address", "has_signed", "signature", "signed_at", "encrypted_key"}).
			AddRow(int64(9), bob, true, "sig", now, "sk").
			AddRow(int64(9), owner, false, nil, nil, "sk2"))
	mock.ExpectQuery(`(?s)FROM\s+multisig_recipients\s+WHERE\s+workflow_id\s*=\s*\$1`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"workflow_id", "user_address", "encrypted_key"}).
			AddRow(int64(9), bob, "rk").
			AddRow(int64(9), owner, nil))

	signers, err := repo.ListSigners(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, signers, 2)
	assert.True(t, signers[0].HasSigned)
	assert.NotNil(t, signers[0].SignedAt)
	assert.Equal(t, "", signers[1].Signature)
	assert.Nil(t, signers[1].SignedAt)

	recipients, err := repo.ListRecipients(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	require.NotNil(t, recipients[0].EncryptedKey)
	assert.Equal(t, "rk", *recipients[0].EncryptedKey)
	assert.Nil(t, recipients[1].EncryptedKey)
}

func TestMarkSigned(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	q := `(?s)UPDATE\s+multisig_signers\s+SET\s+has_signed\s*=\s*TRUE.*WHERE\s+workflow_id\s*=\s*\$1\s+AND\s+user_address\s*=\s*\$2\s+AND\s+has_signed\s*=\s*FALSE`
	mock.ExpectExec(q).WithArgs(int64(9), bob, "sig", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(9), bob, "sig", now).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WillReturnError(errors.New("boom"))

	require.NoError(t, repo.MarkSigned(context.Background(), 9, bob, "sig", now))
	assert.ErrorIs(t, repo.MarkSigned(context.Background(), 9, bob, "sig", now), common.ErrorNotFound)
	assert.ErrorContains(t, repo.MarkSigned(context.Background(), 9, bob, "sig", now), "db error")
}

func TestSetRecipientKeyAndComplete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+multisig_recipients\s+SET\s+encrypted_key\s*=\s*\$3`).
		WithArgs(int64(9), bob, "rk").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)UPDATE\s+multisig_recipients`).
		WithArgs(int64(9), "0xnobody", "rk").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`(?s)UPDATE\s+multisig_workflows\s+SET\s+status\s*=\s*'completed'\s+WHERE\s+id\s*=\s*\$1\s+AND\s+status\s*=\s*'pending'`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)UPDATE\s+multisig_workflows`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.SetRecipientKey(context.Background(), 9, bob, "rk")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetRecipientKey(context.Background(), 9, "0xnobody", "rk")
	require.NoError(t, err)
	assert.False(t, ok)

	done, err := repo.Complete(context.Background(), 9)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = repo.Complete(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestListVisible(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	q := `(?s)FROM\s+multisig_workflows\s+WHERE\s+owner_address\s*=\s*\$1.*multisig_signers.*status\s*=\s*'completed'.*multisig_recipients`
	mock.ExpectQuery(q).
		WithArgs(bob).
		WillReturnRows(sqlmock.NewRows(wfCols).
			AddRow(int64(1), "a", owner, int64(3), "pending", now).
			AddRow(int64(2), "b", owner, int64(4), "completed", now))

	got, err := repo.ListVisible(context.Background(), bob)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.WorkflowCompleted, got[1].Status)
}
