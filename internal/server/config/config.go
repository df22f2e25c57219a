// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"fmt"
	"time"
)

// Token signing modes.
const (
	TokenModeHMAC = "hmac"
	TokenModePQC  = "pqc"
)

// Config holds runtime settings for the vault server.
//
// Fields:
//   - EndpointAddrHTTP: bind address for the public HTTP endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty selects the in-memory store.
//   - SecretKey: HMAC secret for HS256 session tokens. Do not use test defaults in prod.
//   - TokenMode: "hmac" or "pqc" (tokens signed by the PQC oracle).
//   - AccessTokenValidityDuration / NonceValidityDuration: token and login challenge lifetimes.
//   - OracleURL / OracleSecret / OracleTimeout: PQC oracle endpoint, shared secret and call bound.
//   - MaxPayloadSize: byte bound for encrypted_data and encrypted_key alike.
//   - MaxFileSize: byte bound for the sum of chunk sizes of one file secret.
//   - RedisAddr: rate limiter backend; empty selects an in-process limiter.
//   - RateLimitPerMinute: requests per client IP per minute on /auth routes.
//   - S3RootUser / S3RootPassword / S3Bucket / S3Region / S3BaseEndpoint: chunk storage.
//     An empty bucket keeps chunks in memory.
//   - AllowedOrigins: CORS allow-list, "*" allows any origin.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	EndpointAddrHTTP            string
	DatabaseDSN                 string
	SecretKey                   string
	TokenMode                   string
	AccessTokenValidityDuration time.Duration
	NonceValidityDuration       time.Duration
	OracleURL                   string
	OracleSecret                string
	OracleTimeout               time.Duration
	MaxPayloadSize              int64
	MaxFileSize                 int64
	RedisAddr                   string
	RateLimitPerMinute          int
	S3RootUser                  string
	S3RootPassword              string
	S3Bucket                    string
	S3Region                    string
	S3BaseEndpoint              string
	AllowedOrigins              []string
	LogLevel                    string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8000"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.TokenMode = TokenModeHMAC
	c.AccessTokenValidityDuration = 24 * time.Hour
	c.NonceValidityDuration = 5 * time.Minute
	c.OracleURL = "http://127.0.0.1:3001"
	c.OracleSecret = "oracleSecret"
	c.OracleTimeout = 5 * time.Second
	c.MaxPayloadSize = 10 << 20
	c.MaxFileSize = 500 << 20
	c.RedisAddr = ""
	c.RateLimitPerMinute = 30
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = ""
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.AllowedOrigins = []string{"*"}
	c.LogLevel = "info"
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.TokenMode != TokenModeHMAC && c.TokenMode != TokenModePQC {
		return fmt.Errorf("unknown token mode %q", c.TokenMode)
	}
	if c.TokenMode == TokenModeHMAC && c.SecretKey == "" {
		return fmt.Errorf("secret key is required in %s mode", TokenModeHMAC)
	}
	if c.TokenMode == TokenModePQC && c.OracleURL == "" {
		return fmt.Errorf("oracle url is required in %s mode", TokenModePQC)
	}
	if c.AccessTokenValidityDuration <= 0 || c.NonceValidityDuration <= 0 {
		return fmt.Errorf("token and nonce lifetimes must be positive")
	}
	if c.MaxPayloadSize <= 0 || c.MaxFileSize <= 0 {
		return fmt.Errorf("payload limits must be positive")
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
