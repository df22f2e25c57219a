package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/safelog/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
// Only -a, -k and -t are considered; other arguments are filtered out with
// flagx.FilterArgs so they do not interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-k", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the safelog API")
	fs.StringVar(&cfg.KeyFile, "k", cfg.KeyFile, "file with the hex wallet private key")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
