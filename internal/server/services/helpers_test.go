package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/safelog/internal/clock"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/logging"
	"github.com/dmitrijs2005/safelog/internal/server/access"
	"github.com/dmitrijs2005/safelog/internal/server/auth"
	"github.com/dmitrijs2005/safelog/internal/server/blobstore"
	"github.com/dmitrijs2005/safelog/internal/server/identity"
	"github.com/dmitrijs2005/safelog/internal/server/models"
	"github.com/dmitrijs2005/safelog/internal/server/notify"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/memory"
	"github.com/dmitrijs2005/safelog/internal/server/sigverify"
)

const (
	alice = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	carol = "0xcccccccccccccccccccccccccccccccccccccccc"
	dave  = "0xdddddddddddddddddddddddddddddddddddddddd"
	eve   = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type sent struct {
	Address string
	N       notify.Notification
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingNotifier) Notify(_ context.Context, address string, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{address, n})
}

func (r *recordingNotifier) to(address, typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := 0
	for _, s := range r.sent {
		if s.Address == address && s.N.Type == typ {
			c++
		}
	}
	return c
}

type failingOracle struct{}

func (failingOracle) Verify(context.Context, string, string, string) (bool, error) {
	return false, errors.New("dial tcp 127.0.0.1:3001: connect: connection refused")
}

type env struct {
	store    *memory.Store
	clock    *clock.Fake
	notifier *recordingNotifier
	blobs    *blobstore.Memory
	deps     Deps
	engine   *access.Engine
	limits   Limits
	codec    *auth.Codec
	log      logging.Logger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	e := &env{
		store:    memory.NewStore(),
		clock:    clock.NewFake(t0),
		notifier: &recordingNotifier{},
		blobs:    blobstore.NewMemory(),
		limits:   Limits{MaxPayload: 1024, MaxFile: 64},
		log:      log,
	}
	e.deps = Deps{Runner: e.store, Repos: e.store, Clock: e.clock, Log: log, Notifier: e.notifier}
	e.engine = access.NewEngine(e.clock, log)
	e.codec = auth.NewHMACCodec([]byte("test-secret"), time.Hour, e.clock, log)
	return e
}

func (e *env) verifier() *sigverify.Dispatcher {
	return sigverify.NewDispatcher(sigverify.NewEthereum(e.log), sigverify.NewOracle(failingOracle{}, e.log), e.log)
}

func (e *env) authService() *AuthService {
	return NewAuthService(e.deps, e.verifier(), e.codec, 5*time.Minute)
}

func (e *env) secretService() *SecretService {
	return NewSecretService(e.deps, e.engine, e.blobs, e.limits)
}

func (e *env) chunkService() *ChunkService {
	return NewChunkService(e.deps, e.engine, e.blobs, e.limits)
}

func (e *env) multisigService() *MultisigService {
	return NewMultisigService(e.deps, e.limits)
}

func (e *env) addUsers(t *testing.T, addrs ...string) {
	t.Helper()
	err := e.store.WithTx(context.Background(), func(ctx context.Context, tx dbx.DBTX) error {
		for _, a := range addrs {
			kind := identity.Classical
			if len(a) > identity.ClassicalMaxLen {
				kind = identity.PostQuantum
			}
			if err := e.store.Users(tx).Create(ctx, &models.User{Address: a, Kind: kind, Username: a[:7], CreatedAt: e.clock.Now()}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func (e *env) grant(t *testing.T, secretID int64, grantee string) *models.AccessGrant {
	t.Helper()
	var g *models.AccessGrant
	err := e.store.WithTx(context.Background(), func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		g, err = e.store.Grants(tx).Find(ctx, secretID, grantee)
		return err
	})
	if err != nil {
		return nil
	}
	return g
}

func (e *env) grantCount(t *testing.T, secretID int64) int {
	t.Helper()
	var n int
	require.NoError(t, e.store.WithTx(context.Background(), func(ctx context.Context, tx dbx.DBTX) error {
		list, err := e.store.Grants(tx).ListBySecret(ctx, secretID)
		n = len(list)
		return err
	}))
	return n
}

func pqAddress() string {
	return strings.Repeat("ab", 660)
}
