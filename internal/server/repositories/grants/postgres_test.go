package grants

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

const bob = "0x4444444444444444444444444444444444444444"

var grantCols = []string{"id", "secret_id", "grantee_address", "encrypted_key", "created_at", "expires_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	exp := now.Add(time.Minute)
	q := `(?s)^\s*INSERT\s+INTO\s+access_grants\s*\(secret_id,\s*grantee_address,\s*encrypted_key,\s*created_at,\s*expires_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*RETURNING\s+id\s*$`

	mock.ExpectQuery(q).
		WithArgs(int64(1), bob, "k", now, exp).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectQuery(q).
		WithArgs(int64(1), bob, "k", now, nil).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	g := &models.AccessGrant{SecretID: 1, GranteeAddress: bob, EncryptedKey: "k", CreatedAt: now, ExpiresAt: &exp}
	require.NoError(t, repo.Create(context.Background(), g))
	assert.Equal(t, int64(11), g.ID)

	err := repo.Create(context.Background(), &models.AccessGrant{SecretID: 1, GranteeAddress: bob, EncryptedKey: "k", CreatedAt: now})
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestCreateIfAbsent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	q := `(?s)INSERT\s+INTO\s+access_grants.*ON\s+CONFLICT\s*\(secret_id,\s*grantee_address\)\s*DO\s+NOTHING\s+RETURNING\s+id`

	mock.ExpectQuery(q).
		WithArgs(int64(1), bob, "k", now, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectQuery(q).
		WithArgs(int64(1), bob, "k", now, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(q).
		WillReturnError(errors.New("db down"))

	g := &models.AccessGrant{SecretID: 1, GranteeAddress: bob, EncryptedKey: "k", CreatedAt: now}
	created, err := repo.CreateIfAbsent(context.Background(), g)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(5), g.ID)

	created, err = repo.CreateIfAbsent(context.Background(), &models.AccessGrant{SecretID: 1, GranteeAddress: bob, EncryptedKey: "k", CreatedAt: now})
	require.NoError(t, err)
	assert.False(t, created)

	_, err = repo.CreateIfAbsent(context.Background(), &models.AccessGrant{})
	assert.ErrorContains(t, err, "db error")
}

func TestGetAndFind(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)FROM\s+access_grants\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(grantCols).AddRow(int64(3), int64(1), bob, "k", now, now))
	mock.ExpectQuery(`(?s)FROM\s+access_grants\s+WHERE\s+secret_id\s*=\s*\$1\s+AND\s+grantee_address\s*=\s*\$2$`).
		WithArgs(int64(1), "ghost").
		WillReturnError(sql.ErrNoRows)

	g, err := repo.Get(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, g.ExpiresAt)
	assert.True(t, g.ExpiresAt.Equal(now))

	_, err = repo.Find(context.Background(), 1, "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDeletes(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE\s+FROM\s+access_grants\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^DELETE\s+FROM\s+access_grants\s+WHERE\s+secret_id\s*=\s*\$1\s+AND\s+grantee_address\s*=\s*\$2$`).
		WithArgs(int64(1), bob).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^DELETE\s+FROM\s+access_grants\s+WHERE\s+secret_id\s*=\s*\$1$`).
		WithArgs(int64(1)).WillReturnError(errors.New("db err"))

	require.NoError(t, repo.Delete(context.Background(), 3))
	require.NoError(t, repo.DeleteFor(context.Background(), 1, bob))
	assert.ErrorContains(t, repo.DeleteBySecret(context.Background(), 1), "db error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBySecret(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)FROM\s+access_grants\s+WHERE\s+secret_id\s*=\s*\$1\s+ORDER\s+BY\s+id$`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(grantCols).
			AddRow(int64(1), int64(1), "owner", "k0", now, nil).
			AddRow(int64(2), int64(1), bob, "k1", now, now.Add(time.Minute)))

	got, err := repo.ListBySecret(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].ExpiresAt)
	assert.NotNil(t, got[1].ExpiresAt)
}

func TestListSharedWith(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	q := `(?s)FROM\s+access_grants\s+g\s+JOIN\s+secrets\s+s\s+ON\s+s\.id\s*=\s*g\.secret_id\s+WHERE\s+g\.grantee_address\s*=\s*\$1\s+AND\s+s\.owner_address\s*<>\s*\$1`
	mock.ExpectQuery(q).
		WithArgs(bob).
		WillReturnRows(sqlmock.NewRows(append(grantCols, "name", "type", "owner_address")).
			AddRow(int64(2), int64(1), bob, "k1", now, nil, "wifi", "standard", "0xowner"))

	got, err := repo.ListSharedWith(context.Background(), bob)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wifi", got[0].SecretName)
	assert.Equal(t, "0xowner", got[0].OwnerAddress)
	assert.Equal(t, models.SecretTypeStandard, got[0].SecretType)
}
