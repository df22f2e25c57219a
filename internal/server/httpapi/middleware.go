package httpapi

import (
	"context"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/server/models"
)

type ctxKey string

const callerKey ctxKey = "caller"

func callerFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(callerKey).(*models.User)
	return u
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(common.AuthorizationHeaderName)
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// authenticate resolves the bearer token to a user and stores it in the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(r.Context(), w, common.ErrorUnauthorized)
			return
		}
		u, err := s.svc.Auth.Authenticate(r.Context(), token)
		if err != nil {
			s.writeError(r.Context(), w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, u)))
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	limit := s.cfg.MaxPayloadSize + bodySlack
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.MaxPayloadSize > 0 {
			if r.ContentLength > limit {
				s.writeError(r.Context(), w, common.ErrPayloadTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimit caps requests per client IP per minute. Limiter failures let
// the request through.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || s.cfg.RateLimitPerMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		d, err := s.limiter.Allow(ctx, "auth:"+clientIP(r), s.cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			s.log.Warn(ctx, "rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			if !d.ResetAt.IsZero() {
				secs := int(time.Until(d.ResetAt).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			}
			s.writeError(ctx, w, common.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(s.cfg.AllowedOrigins, origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// OriginChecker returns a websocket CheckOrigin func for the allow-list.
func OriginChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || originAllowed(allowed, origin)
	}
}
