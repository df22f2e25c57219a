package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/safelog/internal/flagx"
	"github.com/dmitrijs2005/safelog/internal/timex"
)

// JsonConfig is the on-disk shape of the server configuration file.
// Durations accept both "90s" style strings and integer nanoseconds.
// Only keys present in the file override the defaults.
type JsonConfig struct {
	EndpointAddrHTTP            *string         `json:"endpoint_addr_http"`
	DatabaseDSN                 *string         `json:"database_dsn"`
	SecretKey                   *string         `json:"secret_key"`
	TokenMode                   *string         `json:"token_mode"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	NonceValidityDuration       *timex.Duration `json:"nonce_validity_duration"`
	OracleURL                   *string         `json:"oracle_url"`
	OracleSecret                *string         `json:"oracle_secret"`
	OracleTimeout               *timex.Duration `json:"oracle_timeout"`
	MaxPayloadSize              *int64          `json:"max_payload_size"`
	MaxFileSize                 *int64          `json:"max_file_size"`
	RedisAddr                   *string         `json:"redis_addr"`
	RateLimitPerMinute          *int            `json:"rate_limit_per_minute"`
	S3RootUser                  *string         `json:"s3_root_user"`
	S3RootPassword              *string         `json:"s3_root_password"`
	S3Bucket                    *string         `json:"s3_bucket"`
	S3Region                    *string         `json:"s3_region"`
	S3BaseEndpoint              *string         `json:"s3_base_endpoint"`
	AllowedOrigins              []string        `json:"allowed_origins"`
	LogLevel                    *string         `json:"log_level"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file is named by -c/-config (or SAFELOG_CONFIG); with
// neither set nothing is loaded. Unreadable or invalid files panic, matching
// flag parsing.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.TokenMode, c.TokenMode)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.NonceValidityDuration != nil {
		config.NonceValidityDuration = c.NonceValidityDuration.Duration
	}
	setString(&config.OracleURL, c.OracleURL)
	setString(&config.OracleSecret, c.OracleSecret)
	if c.OracleTimeout != nil {
		config.OracleTimeout = c.OracleTimeout.Duration
	}
	if c.MaxPayloadSize != nil {
		config.MaxPayloadSize = *c.MaxPayloadSize
	}
	if c.MaxFileSize != nil {
		config.MaxFileSize = *c.MaxFileSize
	}
	setString(&config.RedisAddr, c.RedisAddr)
	if c.RateLimitPerMinute != nil {
		config.RateLimitPerMinute = *c.RateLimitPerMinute
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
