package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/grants"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/messages"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/multisig"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/nonces"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/secrets"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DB handle, usually the
// transaction handed out by a dbx.TxRunner.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Nonces(db dbx.DBTX) nonces.Repository
	Secrets(db dbx.DBTX) secrets.Repository
	Grants(db dbx.DBTX) grants.Repository
	Chunks(db dbx.DBTX) chunks.Repository
	Multisig(db dbx.DBTX) multisig.Repository
	Messages(db dbx.DBTX) messages.Repository
}
