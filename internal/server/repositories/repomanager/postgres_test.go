package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/safelog/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/grants"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/messages"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/multisig"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/nonces"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/secrets"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/users"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestNewPostgresRepositoryManager_ReturnsInterface(t *testing.T) {
	var _ RepositoryManager = NewPostgresRepositoryManager()
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := NewPostgresRepositoryManager()

	if u := m.Users(db); u == nil {
		t.Fatal("Users() nil")
	}
	if n := m.Nonces(db); n == nil {
		t.Fatal("Nonces() nil")
	}

	var _ users.Repository = m.Users(db)
	var _ nonces.Repository = m.Nonces(db)
	var _ secrets.Repository = m.Secrets(db)
	var _ grants.Repository = m.Grants(db)
	var _ chunks.Repository = m.Chunks(db)
	var _ multisig.Repository = m.Multisig(db)
	var _ messages.Repository = m.Messages(db)
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}
