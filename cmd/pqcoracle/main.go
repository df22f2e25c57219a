package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dmitrijs2005/safelog/internal/logging"
	"github.com/dmitrijs2005/safelog/internal/pqcoracle"
)

var flags = []cli.Flag{
	&cli.StringFlag{
		Name:    "listen-addr",
		Value:   "127.0.0.1:3001",
		Usage:   "address to listen on",
		EnvVars: []string{"ORACLE_LISTEN_ADDR"},
	},
	&cli.StringFlag{
		Name:    "secret",
		Usage:   "shared secret expected in the X-Oracle-Secret header",
		EnvVars: []string{"ORACLE_SECRET"},
	},
	&cli.StringFlag{
		Name:    "seed-file",
		Value:   "",
		Usage:   "file holding the hex 32-byte key seed, created if missing; empty uses an ephemeral key",
		EnvVars: []string{"ORACLE_SEED_FILE"},
	},
	&cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		Usage:   "debug, info, warn or error",
		EnvVars: []string{"ORACLE_LOG_LEVEL"},
	},
}

func main() {
	app := &cli.App{
		Name:  "pqcoracle",
		Usage: "Sign and verify ML-DSA-44 signatures for the vault server",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			logger := logging.NewJSONLogger(os.Stdout, cCtx.String("log-level"))
			secret := cCtx.String("secret")
			if secret == "" {
				return errors.New("--secret is required")
			}

			seed, err := pqcoracle.LoadSeed(cCtx.String("seed-file"))
			if err != nil {
				return err
			}
			signer := pqcoracle.NewSigner(seed)

			srv := &http.Server{
				Addr:              cCtx.String("listen-addr"),
				Handler:           pqcoracle.NewHandler(signer, secret, logger).Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cCtx.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info(ctx, "Starting PQC oracle", "address", srv.Addr, "public_key_prefix", signer.PublicKeyHex()[:16])
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
