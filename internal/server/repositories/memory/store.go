// Package memory is an in-process RepositoryManager and dbx.TxRunner used
// when no database DSN is configured and by service tests. Transactions
// are serialized by one mutex and rolled back by restoring a snapshot.
//
// Repositories vended by Store must only be used inside Store.WithTx.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/models"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/grants"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/messages"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/multisig"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/nonces"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/secrets"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/users"
)

var errNoSQL = errors.New("memory store has no SQL handle")

type pairKey struct {
	id   int64
	addr string
}

type chunkKey struct {
	secretID int64
	index    int
}

type state struct {
	users      map[string]models.User
	nonces     map[string]models.Nonce
	secrets    map[int64]models.Secret
	grants     map[int64]models.AccessGrant
	chunks     map[chunkKey]models.Chunk
	workflows  map[int64]models.Workflow
	signers    map[pairKey]models.Signer
	recipients map[pairKey]models.Recipient
	messages   []models.Message

	nextSecret, nextGrant, nextWorkflow, nextMessage int64
}

func newState() *state {
	return &state{
		users:      map[string]models.User{},
		nonces:     map[string]models.Nonce{},
		secrets:    map[int64]models.Secret{},
		grants:     map[int64]models.AccessGrant{},
		chunks:     map[chunkKey]models.Chunk{},
		workflows:  map[int64]models.Workflow{},
		signers:    map[pairKey]models.Signer{},
		recipients: map[pairKey]models.Recipient{},
	}
}

// clone copies every table. Row structs are copied by value; pointer
// fields inside them are never mutated in place, only replaced.
func (s *state) clone() *state {
	c := &state{
		users:        cloneMap(s.users),
		nonces:       cloneMap(s.nonces),
		secrets:      cloneMap(s.secrets),
		grants:       cloneMap(s.grants),
		chunks:       cloneMap(s.chunks),
		workflows:    cloneMap(s.workflows),
		signers:      cloneMap(s.signers),
		recipients:   cloneMap(s.recipients),
		messages:     append([]models.Message(nil), s.messages...),
		nextSecret:   s.nextSecret,
		nextGrant:    s.nextGrant,
		nextWorkflow: s.nextWorkflow,
		nextMessage:  s.nextMessage,
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store holds all tables in memory.
type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// WithTx implements dbx.TxRunner. fn runs with exclusive access; on error
// or panic every change it made is discarded.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
		if err != nil {
			s.st = snapshot
		}
	}()

	return fn(ctx, txHandle{})
}

// RunMigrations is a no-op; the schema is the Go types.
func (s *Store) RunMigrations(context.Context, *sql.DB) error { return nil }

func (s *Store) Users(dbx.DBTX) users.Repository       { return &userRepo{s} }
func (s *Store) Nonces(dbx.DBTX) nonces.Repository     { return &nonceRepo{s} }
func (s *Store) Secrets(dbx.DBTX) secrets.Repository   { return &secretRepo{s} }
func (s *Store) Grants(dbx.DBTX) grants.Repository     { return &grantRepo{s} }
func (s *Store) Chunks(dbx.DBTX) chunks.Repository     { return &chunkRepo{s} }
func (s *Store) Multisig(dbx.DBTX) multisig.Repository { return &multisigRepo{s} }
func (s *Store) Messages(dbx.DBTX) messages.Repository { return &messageRepo{s} }

// txHandle satisfies dbx.DBTX for callers that only pass it through.
type txHandle struct{}

func (txHandle) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errNoSQL
}

func (txHandle) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (txHandle) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}
