package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	lastAuth   string
	lastLogin  LoginRequest
	lastSign   map[string]any
	lastShare  ShareInput
	secretCode int
}

func (f *fakeAPI) router() http.Handler {
	r := chi.NewRouter()
	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Get("/auth/nonce/{address}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "address") == "bad" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid address"})
			return
		}
		writeJSON(w, http.StatusOK, NonceChallenge{Nonce: "n1", Message: "Sign in with nonce: n1"})
	})
	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&f.lastLogin)
		writeJSON(w, http.StatusOK, Session{AccessToken: "tok", TokenType: "bearer", User: User{Address: f.lastLogin.Address}})
	})
	r.Get("/secrets/", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, []Secret{{ID: 1, Name: "db"}})
	})
	r.Get("/secrets/{id}", func(w http.ResponseWriter, r *http.Request) {
		if f.secretCode != 0 {
			writeJSON(w, f.secretCode, map[string]string{"detail": "nope"})
			return
		}
		writeJSON(w, http.StatusOK, Secret{ID: 7, Name: "x", EncryptedKey: "k"})
	})
	r.Post("/secrets/share", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&f.lastShare)
		writeJSON(w, http.StatusOK, Grant{ID: 3, SecretID: f.lastShare.SecretID})
	})
	r.Post("/multisig/workflow/{id}/sign", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&f.lastSign)
		writeJSON(w, http.StatusOK, Workflow{ID: 9, Status: "completed"})
	})
	return r
}

func newFake(t *testing.T) (*fakeAPI, *HTTPClient) {
	t.Helper()
	f := &fakeAPI{}
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)
	return f, NewHTTPClient(srv.URL+"/", 5*time.Second)
}

func TestHTTPClient_LoginFlow(t *testing.T) {
	f, c := newFake(t)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	_, err := c.ListSecrets(ctx)
	require.ErrorIs(t, err, ErrNotLoggedIn)

	ch, err := c.Nonce(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "n1", ch.Nonce)

	sess, err := c.Login(ctx, LoginRequest{Address: "0xabc", Nonce: ch.Nonce, Signature: "0xsig"})
	require.NoError(t, err)
	assert.Equal(t, "tok", sess.AccessToken)
	assert.Equal(t, "0xsig", f.lastLogin.Signature)

	secrets, err := c.ListSecrets(ctx)
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.Equal(t, "Bearer tok", f.lastAuth)
}

func TestHTTPClient_ErrorMapping(t *testing.T) {
	f, c := newFake(t)
	ctx := context.Background()
	c.SetToken("tok")

	_, err := c.Nonce(ctx, "bad")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "invalid address", apiErr.Detail)

	cases := map[int]error{
		http.StatusUnauthorized:        ErrUnauthorized,
		http.StatusForbidden:           ErrForbidden,
		http.StatusNotFound:            ErrNotFound,
		http.StatusInternalServerError: ErrUnavailable,
	}
	for code, want := range cases {
		f.secretCode = code
		_, err := c.GetSecret(ctx, 7)
		assert.ErrorIs(t, err, want, "status %d", code)
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
}

func TestHTTPClient_ShareAndSign(t *testing.T) {
	f, c := newFake(t)
	ctx := context.Background()
	c.SetToken("tok")

	ttl := int64(60)
	g, err := c.Share(ctx, ShareInput{SecretID: 4, GranteeAddress: "0xbob", EncryptedKey: "k", ExpiresIn: &ttl})
	require.NoError(t, err)
	assert.Equal(t, int64(4), g.SecretID)
	require.NotNil(t, f.lastShare.ExpiresIn)
	assert.Equal(t, int64(60), *f.lastShare.ExpiresIn)

	wf, err := c.SignWorkflow(ctx, 9, "0xsig", map[string]string{"0xdave": "key"})
	require.NoError(t, err)
	assert.Equal(t, "completed", wf.Status)
	assert.Equal(t, "0xsig", f.lastSign["signature"])
	assert.Equal(t, map[string]any{"0xdave": "key"}, f.lastSign["recipient_keys"])
}

func TestWorkflow_Pending(t *testing.T) {
	wf := Workflow{Status: "pending", Signers: []Signer{{UserAddress: "0xa", HasSigned: true}, {UserAddress: "0xb"}}}
	assert.False(t, wf.Pending("0xa"))
	assert.True(t, wf.Pending("0xb"))
	assert.False(t, wf.Pending("0xc"))

	wf.Status = "completed"
	assert.False(t, wf.Pending("0xb"))
}
