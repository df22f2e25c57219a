// Package config loads runtime configuration for the safelog CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c, -config or SAFELOG_CONFIG.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the safelog API
//	-k string   path to a file with the hex wallet private key
//	-t int      request timeout (seconds)
//
// # JSON schema
//
//	{
//	  "server_url": "http://127.0.0.1:8000",
//	  "key_file": "/home/me/.safelog/key",
//	  "request_timeout": "10s"
//	}
package config
