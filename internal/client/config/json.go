package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/safelog/internal/flagx"
	"github.com/dmitrijs2005/safelog/internal/timex"
)

// JsonConfig is the on-disk form of Config. RequestTimeout accepts "10s"
// style strings or integer nanoseconds.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	KeyFile        string         `json:"key_file"`
	RequestTimeout timex.Duration `json:"request_timeout"`
}

// parseJson overlays cfg with the JSON file named by flagx.JsonConfigFlags.
// Fields missing from the file keep their current values. Read and decode
// errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.KeyFile != "" {
		cfg.KeyFile = jc.KeyFile
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
	}
}
