package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/safelog/internal/common"
)

// HTTPClient implements Client over the JSON API. The access token obtained
// by Login is attached to every later request.
type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *HTTPClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return mapStatus(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) authed(ctx context.Context, method, path string, body, out any) error {
	if c.Token() == "" {
		return ErrNotLoggedIn
	}
	return c.do(ctx, method, path, body, out)
}

func mapStatus(resp *http.Response) error {
	var payload struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
	default:
		return &APIError{Status: resp.StatusCode, Detail: payload.Detail}
	}
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/readyz", nil, nil)
}

func (c *HTTPClient) Nonce(ctx context.Context, address string) (*NonceChallenge, error) {
	var out NonceChallenge
	if err := c.do(ctx, http.MethodGet, "/auth/nonce/"+url.PathEscape(address), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges a signed challenge for a session and keeps its token.
func (c *HTTPClient) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, errors.New("login response carries no token")
	}
	c.SetToken(out.AccessToken)
	return &out, nil
}

func (c *HTTPClient) GetUser(ctx context.Context, address string) (*User, error) {
	var out User
	if err := c.authed(ctx, http.MethodGet, "/users/"+url.PathEscape(address), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListSecrets(ctx context.Context) ([]Secret, error) {
	var out []Secret
	err := c.authed(ctx, http.MethodGet, "/secrets/", nil, &out)
	return out, err
}

func (c *HTTPClient) SharedWithMe(ctx context.Context) ([]Grant, error) {
	var out []Grant
	err := c.authed(ctx, http.MethodGet, "/secrets/shared-with-me", nil, &out)
	return out, err
}

func (c *HTTPClient) GetSecret(ctx context.Context, id int64) (*Secret, error) {
	var out Secret
	if err := c.authed(ctx, http.MethodGet, fmt.Sprintf("/secrets/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CreateSecret(ctx context.Context, in SecretInput) (*Secret, error) {
	var out Secret
	if err := c.authed(ctx, http.MethodPost, "/secrets/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteSecret(ctx context.Context, id int64) error {
	return c.authed(ctx, http.MethodDelete, fmt.Sprintf("/secrets/%d", id), nil, nil)
}

func (c *HTTPClient) Share(ctx context.Context, in ShareInput) (*Grant, error) {
	var out Grant
	if err := c.authed(ctx, http.MethodPost, "/secrets/share", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	var out []Workflow
	err := c.authed(ctx, http.MethodGet, "/multisig/workflows", nil, &out)
	return out, err
}

func (c *HTTPClient) GetWorkflow(ctx context.Context, id int64) (*Workflow, error) {
	var out Workflow
	if err := c.authed(ctx, http.MethodGet, fmt.Sprintf("/multisig/workflow/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) SignWorkflow(ctx context.Context, id int64, signature string, recipientKeys map[string]string) (*Workflow, error) {
	body := struct {
		Signature     string            `json:"signature"`
		RecipientKeys map[string]string `json:"recipient_keys,omitempty"`
	}{signature, recipientKeys}

	var out Workflow
	if err := c.authed(ctx, http.MethodPost, fmt.Sprintf("/multisig/workflow/%d/sign", id), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
