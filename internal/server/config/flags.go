package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/safelog/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8000")
//	-d string   PostgreSQL DSN, empty for the in-memory store
//	-s string   HMAC secret key for session tokens
//	-m string   token mode: hmac or pqc
//	-t int      access token validity, minutes
//	-n int      nonce validity, minutes
//	-o string   PQC oracle base URL
//	-k string   PQC oracle shared secret
//	-w int      PQC oracle call timeout, seconds
//	-l int      max payload size, bytes
//	-f int      max file size, bytes
//	-r string   Redis address for rate limiting
//	-q int      auth requests per minute per client IP
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-x string   comma separated CORS origins
//	-v string   log level
//
// Duration flags are integers in the unit noted above.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-s", "-m", "-t", "-n", "-o", "-k", "-w", "-l",
		"-f", "-r", "-q", "-u", "-p", "-b", "-g", "-e", "-x", "-v",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.TokenMode, "m", config.TokenMode, "token mode (hmac|pqc)")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	nonceValidityDuration := fs.Int("n", int(config.NonceValidityDuration.Minutes()), "nonce_validity_duration (in minutes)")

	fs.StringVar(&config.OracleURL, "o", config.OracleURL, "PQC oracle URL")
	fs.StringVar(&config.OracleSecret, "k", config.OracleSecret, "PQC oracle shared secret")
	oracleTimeout := fs.Int("w", int(config.OracleTimeout.Seconds()), "PQC oracle timeout (in seconds)")

	fs.Int64Var(&config.MaxPayloadSize, "l", config.MaxPayloadSize, "max payload size in bytes")
	fs.Int64Var(&config.MaxFileSize, "f", config.MaxFileSize, "max file size in bytes")

	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.IntVar(&config.RateLimitPerMinute, "q", config.RateLimitPerMinute, "auth requests per minute")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	origins := fs.String("x", strings.Join(config.AllowedOrigins, ","), "allowed CORS origins")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.NonceValidityDuration = time.Duration(*nonceValidityDuration) * time.Minute
	config.OracleTimeout = time.Duration(*oracleTimeout) * time.Second
	config.AllowedOrigins = splitOrigins(*origins)
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
