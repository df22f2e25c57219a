// Package httpapi is the HTTP boundary of the vault: it decodes requests,
// resolves the caller from the bearer token, invokes the services and maps
// their errors to status codes.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/dmitrijs2005/safelog/internal/logging"
	"github.com/dmitrijs2005/safelog/internal/server/notify"
	"github.com/dmitrijs2005/safelog/internal/server/ratelimit"
	"github.com/dmitrijs2005/safelog/internal/server/services"
)

// bodySlack covers JSON framing around the largest allowed ciphertext.
const bodySlack = 64 << 10

type Config struct {
	ListenAddr string
	// MaxPayloadSize is the largest ciphertext field a request may carry.
	MaxPayloadSize     int64
	RateLimitPerMinute int
	AllowedOrigins     []string
	// AccessLog receives one line per request; nil disables access logging.
	AccessLog *slog.Logger

	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
	GracefulShutdownDuration time.Duration
}

// Services are the operations exposed over HTTP.
type Services struct {
	Auth     *services.AuthService
	Users    *services.UserService
	Secrets  *services.SecretService
	Chunks   *services.ChunkService
	Multisig *services.MultisigService
	Messages *services.MessageService
}

type Server struct {
	cfg     Config
	svc     Services
	hub     *notify.Hub
	limiter ratelimit.Limiter
	log     logging.Logger
	isReady atomic.Bool
	srv     *http.Server
}

// New wires the router. limiter may be nil to disable rate limiting.
func New(cfg Config, svc Services, hub *notify.Hub, limiter ratelimit.Limiter, log logging.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		hub:     hub,
		limiter: limiter,
		log:     log.With("module", "http_server"),
	}
	s.isReady.Store(true)
	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the full route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.httpLogger)
	r.Use(s.cors)

	r.Get("/livez", s.handleLivenessCheck)
	r.Get("/readyz", s.handleReadinessCheck)
	r.Get("/ws", s.handleWebsocket)

	r.Route("/auth", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/nonce/{address}", s.handleNonce)
		r.With(s.limitBody).Post("/login", s.handleLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.limitBody)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleSearchUsers)
			r.Put("/me/public-key", s.handleUpdatePublicKey)
			r.Post("/resolve", s.handleResolveUser)
			r.Get("/{address}", s.handleGetUser)
			r.Put("/{address}", s.handleUpdateUser)
		})

		r.Route("/secrets", func(r chi.Router) {
			r.Post("/", s.handleCreateSecret)
			r.Get("/", s.handleListSecrets)
			r.Get("/shared-with-me", s.handleSharedWithMe)
			r.Post("/share", s.handleShare)
			r.Delete("/share/{grantID}", s.handleRevoke)
			r.Post("/chunks", s.handleUploadChunk)
			r.Get("/{id}", s.handleGetSecret)
			r.Put("/{id}", s.handleUpdateSecret)
			r.Delete("/{id}", s.handleDeleteSecret)
			r.Get("/{id}/access", s.handleListAccess)
			r.Get("/{id}/chunks", s.handleListChunks)
			r.Get("/{id}/chunks/{index}", s.handleGetChunk)
		})

		r.Route("/multisig", func(r chi.Router) {
			r.Post("/workflow", s.handleCreateWorkflow)
			r.Get("/workflows", s.handleListWorkflows)
			r.Get("/workflow/{id}", s.handleGetWorkflow)
			r.Post("/workflow/{id}/sign", s.handleSignWorkflow)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/", s.handleSendMessage)
			r.Get("/conversations", s.handleConversations)
			r.Get("/{partner}", s.handleHistory)
			r.Post("/{partner}/read", s.handleMarkRead)
		})
	})
	return r
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	if s.cfg.AccessLog == nil {
		return next
	}
	return httplogger.LoggingMiddlewareSlog(s.cfg.AccessLog, next)
}

func (s *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !s.isReady.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "Starting HTTP server", "address", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.isReady.Store(false)
	s.log.Info(ctx, "Stopping HTTP server...")

	timeout := s.cfg.GracefulShutdownDuration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
