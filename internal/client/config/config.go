package config

import "time"

// Config holds runtime settings for the safelog CLI.
//
// Fields:
//   - ServerURL: base URL of the safelog HTTP API.
//   - KeyFile: optional file holding the hex wallet private key. When empty
//     the key is read from the terminal at login.
//   - RequestTimeout: per-request deadline for API calls.
type Config struct {
	ServerURL      string
	KeyFile        string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8000"
	c.KeyFile = ""
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
