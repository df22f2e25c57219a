// Package pqc talks to the post-quantum signature oracle: a small HTTP
// service that signs with the server's ML-DSA key and verifies signatures
// for arbitrary public keys. Calls are bounded by a timeout and never
// retried; callers treat any error as a failed verification.
package pqc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/safelog/internal/common"
)

// VerifyRequest is the body of POST /verify.
type VerifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
}

type VerifyResponse struct {
	Valid bool `json:"valid"`
}

// SignRequest is the body of POST /sign.
type SignRequest struct {
	Message string `json:"message"`
}

type SignResponse struct {
	Signature string `json:"signature"`
}

type PublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// StatusError is returned for non-2xx oracle responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("oracle returned %d: %s", e.StatusCode, e.Body)
}

// Client is the oracle HTTP client.
type Client struct {
	baseURL    string
	secret     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient builds a client for the oracle at baseURL. Every call is cut
// off after timeout.
func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Verify asks the oracle whether signature (hex) over message was made by
// publicKey (hex).
func (c *Client) Verify(ctx context.Context, message, signature, publicKey string) (bool, error) {
	var resp VerifyResponse
	err := c.do(ctx, http.MethodPost, "/verify", VerifyRequest{
		Message: message, Signature: signature, PublicKey: publicKey,
	}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// Sign returns the oracle's detached hex signature over message.
func (c *Client) Sign(ctx context.Context, message string) (string, error) {
	var resp SignResponse
	if err := c.do(ctx, http.MethodPost, "/sign", SignRequest{Message: message}, &resp); err != nil {
		return "", err
	}
	if resp.Signature == "" {
		return "", fmt.Errorf("oracle returned empty signature")
	}
	return resp.Signature, nil
}

// ServerPublicKey returns the oracle's long-term public key (hex).
func (c *Client) ServerPublicKey(ctx context.Context) (string, error) {
	var resp PublicKeyResponse
	if err := c.do(ctx, http.MethodGet, "/server-public-key", nil, &resp); err != nil {
		return "", err
	}
	if resp.PublicKey == "" {
		return "", fmt.Errorf("oracle returned empty public key")
	}
	return resp.PublicKey, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(common.OracleSecretHeaderName, c.secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode oracle response: %w", err)
	}
	return nil
}
