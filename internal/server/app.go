// Package server assembles the vault from its configuration: storage,
// token codec, signature verification, blob storage, rate limiting and
// the HTTP API, and runs it until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/safelog/internal/clock"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/logging"
	"github.com/dmitrijs2005/safelog/internal/server/access"
	"github.com/dmitrijs2005/safelog/internal/server/auth"
	"github.com/dmitrijs2005/safelog/internal/server/blobstore"
	"github.com/dmitrijs2005/safelog/internal/server/config"
	"github.com/dmitrijs2005/safelog/internal/server/httpapi"
	"github.com/dmitrijs2005/safelog/internal/server/notify"
	"github.com/dmitrijs2005/safelog/internal/server/pqc"
	"github.com/dmitrijs2005/safelog/internal/server/ratelimit"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/memory"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/safelog/internal/server/services"
	"github.com/dmitrijs2005/safelog/internal/server/sigverify"
)

// notifyQueueSize bounds the outbound websocket queue per connection.
const notifyQueueSize = 32

type App struct {
	config  *config.Config
	logger  *logging.SlogLogger
	server  *httpapi.Server
	closers []io.Closer
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	runner, repos, err := app.initStorage(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	clk := clock.Real()
	oracle := pqc.NewClient(c.OracleURL, c.OracleSecret, c.OracleTimeout)

	var codec *auth.Codec
	switch c.TokenMode {
	case config.TokenModePQC:
		codec = auth.NewPQCCodec(oracle, pqc.NewKeyCache(oracle), c.AccessTokenValidityDuration, clk, logger)
	default:
		codec = auth.NewHMACCodec([]byte(c.SecretKey), c.AccessTokenValidityDuration, clk, logger)
	}

	blobs, err := app.initBlobStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	limiter, err := app.initLimiter(clk)
	if err != nil {
		app.Close()
		return nil, err
	}

	hub := notify.NewHub(notifyQueueSize, httpapi.OriginChecker(c.AllowedOrigins), logger)
	deps := services.Deps{Runner: runner, Repos: repos, Clock: clk, Log: logger, Notifier: hub}
	limits := services.Limits{MaxPayload: int(c.MaxPayloadSize), MaxFile: c.MaxFileSize}
	engine := access.NewEngine(clk, logger)
	verifier := sigverify.NewDispatcher(sigverify.NewEthereum(logger), sigverify.NewOracle(oracle, logger), logger)

	svc := httpapi.Services{
		Auth:     services.NewAuthService(deps, verifier, codec, c.NonceValidityDuration),
		Users:    services.NewUserService(deps, limits),
		Secrets:  services.NewSecretService(deps, engine, blobs, limits),
		Chunks:   services.NewChunkService(deps, engine, blobs, limits),
		Multisig: services.NewMultisigService(deps, limits),
		Messages: services.NewMessageService(deps, limits),
	}

	app.server = httpapi.New(httpapi.Config{
		ListenAddr:         c.EndpointAddrHTTP,
		MaxPayloadSize:     c.MaxPayloadSize,
		RateLimitPerMinute: c.RateLimitPerMinute,
		AllowedOrigins:     c.AllowedOrigins,
		AccessLog:          logger.Slog(),
	}, svc, hub, limiter, logger)

	return app, nil
}

// initStorage selects Postgres when a DSN is configured and the in-memory
// store otherwise.
func (app *App) initStorage(ctx context.Context) (dbx.TxRunner, repomanager.RepositoryManager, error) {
	if app.config.DatabaseDSN == "" {
		app.logger.Warn(ctx, "no database DSN configured, data will not survive a restart")
		st := memory.NewStore()
		return st, st, nil
	}

	db, err := openDB(app.config.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}
	app.closers = append(app.closers, db)
	if err := db.PingContext(ctx); err != nil {
		return nil, nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, nil, fmt.Errorf("db migration error: %w", err)
	}
	return dbx.NewSerializableRunner(db), rm, nil
}

func (app *App) initBlobStore(ctx context.Context) (blobstore.Store, error) {
	c := app.config
	if c.S3Bucket == "" {
		return blobstore.NewMemory(), nil
	}
	s3, err := blobstore.NewS3(ctx, blobstore.S3Options{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 init error: %w", err)
	}
	return s3, nil
}

func (app *App) initLimiter(clk clock.Clock) (ratelimit.Limiter, error) {
	if app.config.RedisAddr == "" {
		return ratelimit.NewMemory(clk, 100_000), nil
	}
	client, err := ratelimit.NewRedisClient(app.config.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	app.closers = append(app.closers, client)
	return ratelimit.NewRedis(client, "safelog:rl:", clk), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Close releases the database and Redis connections.
func (app *App) Close() {
	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			app.logger.Error(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "token_mode", app.config.TokenMode)
	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()
	wg.Wait()

	app.Close()
	app.logger.Info(context.Background(), "App stopped")
}
