package pqcoracle

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/logging"
	"github.com/dmitrijs2005/safelog/internal/server/pqc"
)

const maxBodySize = 64 << 10

type Handler struct {
	signer *Signer
	secret string
	log    logging.Logger
}

// NewHandler serves the oracle endpoints. Requests must carry secret in
// the X-Oracle-Secret header.
func NewHandler(signer *Signer, secret string, log logging.Logger) *Handler {
	return &Handler{signer: signer, secret: secret, log: log.With("module", "pqc_oracle")}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/livez", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
	r.Group(func(r chi.Router) {
		r.Use(h.requireSecret)
		r.Post("/verify", h.handleVerify)
		r.Post("/sign", h.handleSign)
		r.Get("/server-public-key", h.handlePublicKey)
	})
	return r
}

func (h *Handler) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(common.OracleSecretHeaderName)
		if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.log.Warn(r.Context(), "rejected oracle call without valid secret", "path", r.URL.Path)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return false
	}
	return true
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req pqc.VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Message == "" || req.Signature == "" || req.PublicKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "error": "missing fields"})
		return
	}
	ok, err := Verify([]byte(req.Message), req.Signature, req.PublicKey)
	if err != nil {
		h.log.Warn(r.Context(), "verification input rejected", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, pqc.VerifyResponse{Valid: ok})
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	var req pqc.SignRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing message"})
		return
	}
	sig, err := h.signer.Sign([]byte(req.Message))
	if err != nil {
		h.log.Error(r.Context(), "signing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "signing failed"})
		return
	}
	writeJSON(w, http.StatusOK, pqc.SignResponse{Signature: sig})
}

func (h *Handler) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pqc.PublicKeyResponse{PublicKey: h.signer.PublicKeyHex()})
}
