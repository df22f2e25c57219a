package services

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/identity"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/memory"
)

type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: k, address: strings.ToLower(crypto.PubkeyToAddress(k.PublicKey).Hex())}
}

func (w wallet) sign(t *testing.T, nonce string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(common.LoginMessage(nonce))), w.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return "0x" + hex.EncodeToString(sig)
}

func (e *env) nonceExists(t *testing.T, address string) bool {
	t.Helper()
	var ok bool
	require.NoError(t, e.store.WithTx(context.Background(), func(ctx context.Context, tx dbx.DBTX) error {
		_, err := e.store.Nonces(tx).GetForUpdate(ctx, address)
		ok = err == nil
		return nil
	}))
	return ok
}

func TestLogin_Success_CreatesUser(t *testing.T) {
	e := newEnv(t)
	s := e.authService()
	w := newWallet(t)
	ctx := context.Background()

	nonce, err := s.IssueNonce(ctx, "0x"+strings.ToUpper(w.address[2:]))
	require.NoError(t, err)
	assert.Len(t, nonce, NonceBytes*2)

	res, err := s.Login(ctx, LoginRequest{Address: w.address, Nonce: nonce, Signature: w.sign(t, nonce), EncryptionPublicKey: "pk1"})
	require.NoError(t, err)
	assert.Equal(t, w.address, res.User.Address)
	assert.Equal(t, identity.Classical, res.User.Kind)
	assert.Equal(t, w.address[:7], res.User.Username)
	assert.Equal(t, "pk1", res.User.EncryptionPublicKey)
	assert.Equal(t, t0.Add(time.Hour), res.ExpiresAt)

	u, err := s.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, w.address, u.Address)
	assert.False(t, e.nonceExists(t, w.address))
}

func TestLogin_NonceIsOneTime(t *testing.T) {
	e := newEnv(t)
	s := e.authService()
	w := newWallet(t)
	ctx := context.Background()

	nonce, err := s.IssueNonce(ctx, w.address)
	require.NoError(t, err)
	sig := w.sign(t, nonce)

	_, err = s.Login(ctx, LoginRequest{Address: w.address, Nonce: nonce, Signature: sig})
	require.NoError(t, err)

	_, err = s.Login(ctx, LoginRequest{Address: w.address, Nonce: nonce, Signature: sig})
	assert.ErrorIs(t, err, common.ErrInvalidNonce)
}

func TestLogin_NonceExpiry(t *testing.T) {
	e := newEnv(t)
	s := e.authService()
	w := newWallet(t)
	ctx := context.Background()

	nonce, err := s.IssueNonce(ctx, w.address)
	require.NoError(t, err)

	e.clock.Advance(5*time.Minute + time.Millisecond)
	_, err = s.Login(ctx, LoginRequest{Address: w.address, Nonce: nonce, Signature: w.sign(t, nonce)})
	assert.ErrorIs(t, err, common.ErrNonceStale)
	assert.False(t, e.nonceExists(t, w.address), "expired nonce is deleted")
}

func TestLogin_ExactExpiryIsStale(t *testing.T) {
	e := newEnv(t)
	s := e.authService()
	w := newWallet(t)
	ctx := context.Background()

	nonce, err := s.IssueNonce(ctx, w.address)
	require.NoError(t, err)
	e.clock.Advance(5 * time.Minute)
	_, err = s.Login(ctx, LoginRequest{Address: w.address, Nonce: nonce, Signature: w.sign(t, nonce)})
	assert.ErrorIs(t, err, common.ErrNonceStale)
}

func TestLogin_NoNonceRequested(t *testing.T) {
	e := newEnv(t)
	w := newWallet(t)
	_, err := e.authService().Login(context.Background(), LoginRequest{Address: w.address, Nonce: "x", Signature: "0x00"})
	assert.ErrorIs(t, err, common.ErrNonceStale)
}

func TestLogin_MismatchKeepsNonce(t *testing.T) {
	e := newEnv(t)
	s := e.authService()
	w := newWallet(t)
	ctx := context.Background()

	nonce, err := s.IssueNonce(ctx, w.address)
	require.NoError(t, err)

	_, err = s.Login(ctx, LoginRequest{Address: w.address, Nonce: "guess", Signature: w.sign(t, "guess")})
	assert.ErrorIs(t, err, common.ErrNonceMismatch)
	assert.True(t, e.nonceExists(t, w.address))

	_, err = s.Login(ctx, LoginRequest{Address: w.address, Nonce: nonce, Signature: w.sign(t, nonce)})
	require.NoError(t, err)
}

func TestLogin_InvalidSignature(t *testing.T) {
	e := newEnv(t)
	s := e.authService()
	w := newWallet(t)
	other := newWallet(t)
	ctx := context.Background()

	nonce, err := s.IssueNonce(ctx, w.address)
	require.NoError(t, err)

	_, err = s.Login(ctx, LoginRequest{Address: w.address, Nonce: nonce, Signature: other.sign(t, nonce)})
	assert.ErrorIs(t, err, common.ErrInvalidSignature)
	assert.True(t, e.nonceExists(t, w.address))

	var n int
	require.NoError(t, e.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		users, err := e.store.Users(tx).Search(ctx, "", 50, 0)
		n = len(users)
		return err
	}))
	assert.Zero(t, n, "no user is created on failure")
}

func TestLogin_PQCOracleUnreachable(t *testing.T) {
	e := newEnv(t)
	s := e.authService()
	ctx := context.Background()
	addr := pqAddress()

	nonce, err := s.IssueNonce(ctx, addr)
	require.NoError(t, err)

	_, err = s.Login(ctx, LoginRequest{Address: addr, Nonce: nonce, Signature: "deadbeef"})
	assert.ErrorIs(t, err, common.ErrInvalidSignature)
}

func TestLogin_UpdatesEncryptionKey(t *testing.T) {
	e := newEnv(t)
	s := e.authService()
	w := newWallet(t)
	ctx := context.Background()

	login := func(pk, username string) *LoginResult {
		nonce, err := s.IssueNonce(ctx, w.address)
		require.NoError(t, err)
		res, err := s.Login(ctx, LoginRequest{Address: w.address, Nonce: nonce, Signature: w.sign(t, nonce), EncryptionPublicKey: pk, Username: username})
		require.NoError(t, err)
		return res
	}

	first := login("pk1", "alice")
	assert.Equal(t, "alice", first.User.Username)

	second := login("pk2", "ignored")
	assert.Equal(t, "pk2", second.User.EncryptionPublicKey)
	assert.Equal(t, "alice", second.User.Username)

	third := login("", "")
	assert.Equal(t, "pk2", third.User.EncryptionPublicKey)
}

func TestIssueNonce_ReplacesAndSweeps(t *testing.T) {
	e := newEnv(t)
	s := e.authService()
	w1, w2 := newWallet(t), newWallet(t)
	ctx := context.Background()

	old, err := s.IssueNonce(ctx, w1.address)
	require.NoError(t, err)
	fresh, err := s.IssueNonce(ctx, w1.address)
	require.NoError(t, err)
	assert.NotEqual(t, old, fresh)

	_, err = s.Login(ctx, LoginRequest{Address: w1.address, Nonce: old, Signature: w1.sign(t, old)})
	assert.ErrorIs(t, err, common.ErrNonceMismatch)

	e.clock.Advance(10 * time.Minute)
	_, err = s.IssueNonce(ctx, w2.address)
	require.NoError(t, err)
	assert.False(t, e.nonceExists(t, w1.address), "expired nonces are swept on issue")
}

func TestIssueNonce_RejectsMalformedAddress(t *testing.T) {
	e := newEnv(t)
	_, err := e.authService().IssueNonce(context.Background(), "0x123")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestAuthenticate_Failures(t *testing.T) {
	e := newEnv(t)
	s := e.authService()
	ctx := context.Background()

	_, err := s.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	tok, _, err := e.codec.Issue(ctx, alice)
	require.NoError(t, err)
	_, err = s.Authenticate(ctx, tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken, "unknown subject")

	e.addUsers(t, alice)
	_, err = s.Authenticate(ctx, tok)
	require.NoError(t, err)

	e.clock.Advance(time.Hour)
	_, err = s.Authenticate(ctx, tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

var errSerialization = errors.New("could not serialize access")

// retryingRunner rolls back every attempt but the last, like a
// serialization failure at commit.
type retryingRunner struct {
	store    *memory.Store
	attempts int
	calls    int
}

func (r *retryingRunner) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	for i := 1; i < r.attempts; i++ {
		r.calls++
		_ = r.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			if err := fn(ctx, tx); err != nil {
				return err
			}
			return errSerialization
		})
	}
	r.calls++
	return r.store.WithTx(ctx, fn)
}

type countingVerifier struct {
	next  SignatureVerifier
	calls int
}

func (v *countingVerifier) Verify(ctx context.Context, id identity.Identity, message, signature string) bool {
	v.calls++
	return v.next.Verify(ctx, id, message, signature)
}

type countingTokens struct {
	TokenCodec
	issued int
}

func (c *countingTokens) Issue(ctx context.Context, subject string) (string, time.Time, error) {
	c.issued++
	return c.TokenCodec.Issue(ctx, subject)
}

func TestLogin_RetriedTxDoesNotRepeatVerification(t *testing.T) {
	e := newEnv(t)
	w := newWallet(t)
	ctx := context.Background()

	runner := &retryingRunner{store: e.store, attempts: 3}
	deps := e.deps
	deps.Runner = runner
	verifier := &countingVerifier{next: e.verifier()}
	tokens := &countingTokens{TokenCodec: e.codec}
	s := NewAuthService(deps, verifier, tokens, 5*time.Minute)

	nonce, err := s.IssueNonce(ctx, w.address)
	require.NoError(t, err)
	runner.calls = 0

	res, err := s.Login(ctx, LoginRequest{Address: w.address, Nonce: nonce, Signature: w.sign(t, nonce), EncryptionPublicKey: "pk1"})
	require.NoError(t, err)
	assert.Equal(t, w.address, res.User.Address)
	assert.Equal(t, 6, runner.calls, "two transactions, three attempts each")
	assert.Equal(t, 1, verifier.calls)
	assert.Equal(t, 1, tokens.issued)
	assert.False(t, e.nonceExists(t, w.address))
}

func TestLogin_NonceReplacedAfterVerification(t *testing.T) {
	e := newEnv(t)
	w := newWallet(t)
	ctx := context.Background()
	s := e.authService()

	nonce, err := s.IssueNonce(ctx, w.address)
	require.NoError(t, err)

	verifier := &replacingVerifier{next: e.verifier(), replace: func() {
		_, err := s.IssueNonce(ctx, w.address)
		require.NoError(t, err)
	}}
	racing := NewAuthService(e.deps, verifier, e.codec, 5*time.Minute)

	_, err = racing.Login(ctx, LoginRequest{Address: w.address, Nonce: nonce, Signature: w.sign(t, nonce)})
	assert.ErrorIs(t, err, common.ErrNonceStale)
	assert.True(t, e.nonceExists(t, w.address), "the replacement nonce survives")
}

// replacingVerifier issues a fresh nonce while the signature is checked.
type replacingVerifier struct {
	next    SignatureVerifier
	replace func()
}

func (v *replacingVerifier) Verify(ctx context.Context, id identity.Identity, message, signature string) bool {
	v.replace()
	return v.next.Verify(ctx, id, message, signature)
}
