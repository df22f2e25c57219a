package sigverify

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/logging"
	"github.com/dmitrijs2005/safelog/internal/server/identity"
)

func testLogger() (*logging.SlogLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil))), &buf
}

func signPersonal(t *testing.T, msg string) (address, sigHex string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()), "0x" + hex.EncodeToString(sig)
}

func TestEthereum_Verify(t *testing.T) {
	log, _ := testLogger()
	v := NewEthereum(log)
	ctx := context.Background()
	msg := common.LoginMessage("abc123")

	addr, sig := signPersonal(t, msg)

	assert.True(t, v.Verify(ctx, addr, msg, sig))
	assert.False(t, v.Verify(ctx, addr[2:], msg, sig), "prefix is part of the address")
	assert.True(t, v.Verify(ctx, "0x"+strings.ToUpper(addr[2:]), msg, sig), "comparison ignores case")

	// Raw 0/1 recovery id is accepted too.
	raw, _ := hex.DecodeString(sig[2:])
	raw[crypto.RecoveryIDOffset] -= 27
	assert.True(t, v.Verify(ctx, addr, msg, hex.EncodeToString(raw)))
}

func TestEthereum_RejectsWrongMessageAndGarbage(t *testing.T) {
	log, buf := testLogger()
	v := NewEthereum(log)
	ctx := context.Background()
	addr, sig := signPersonal(t, common.LoginMessage("n1"))

	assert.False(t, v.Verify(ctx, addr, common.LoginMessage("n2"), sig))
	assert.False(t, v.Verify(ctx, addr, "m", "0xzz"))
	assert.False(t, v.Verify(ctx, addr, "m", "0x1234"))
	assert.False(t, v.Verify(ctx, addr, "m", ""))

	other, _ := signPersonal(t, "x")
	assert.False(t, v.Verify(ctx, other, common.LoginMessage("n1"), sig))

	assert.Contains(t, buf.String(), "level=WARN")
	assert.NotContains(t, buf.String(), sig[2:])
}

type fakeOracle struct {
	valid bool
	err   error
	calls int
	got   [3]string
}

func (f *fakeOracle) Verify(ctx context.Context, message, signature, publicKey string) (bool, error) {
	f.calls++
	f.got = [3]string{message, signature, publicKey}
	return f.valid, f.err
}

func TestOracle_Verify(t *testing.T) {
	log, _ := testLogger()
	ctx := context.Background()
	pk := strings.Repeat("ab", 100)

	ok := &fakeOracle{valid: true}
	assert.True(t, NewOracle(ok, log).Verify(ctx, pk, "msg", "beef"))
	assert.Equal(t, [3]string{"msg", "beef", pk}, ok.got)

	assert.False(t, NewOracle(&fakeOracle{valid: false}, log).Verify(ctx, pk, "msg", "beef"))

	down := &fakeOracle{valid: true, err: errors.New("connection refused")}
	assert.False(t, NewOracle(down, log).Verify(ctx, pk, "msg", "beef"), "oracle errors fail closed")
	assert.Equal(t, 1, down.calls)

	empty := &fakeOracle{valid: true}
	assert.False(t, NewOracle(empty, log).Verify(ctx, pk, "msg", ""))
	assert.Zero(t, empty.calls)
}

type stubVerifier struct{ called bool }

func (s *stubVerifier) Verify(ctx context.Context, address, message, signature string) bool {
	s.called = true
	return true
}

func TestDispatcher_RoutesByKind(t *testing.T) {
	log, _ := testLogger()
	ctx := context.Background()

	cl, pq := &stubVerifier{}, &stubVerifier{}
	d := NewDispatcher(cl, pq, log)
	assert.True(t, d.Verify(ctx, identity.Identity{Kind: identity.Classical, Address: "0x1"}, "m", "s"))
	assert.True(t, cl.called)
	assert.False(t, pq.called)

	cl, pq = &stubVerifier{}, &stubVerifier{}
	d = NewDispatcher(cl, pq, log)
	assert.True(t, d.Verify(ctx, identity.Identity{Kind: identity.PostQuantum, Address: "ab"}, "m", "s"))
	assert.True(t, pq.called)
	assert.False(t, cl.called)

	assert.False(t, d.Verify(ctx, identity.Identity{Kind: "other", Address: "x"}, "m", "s"))
}
