package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/server/services"
)

type nonceResponse struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	nonce, err := s.svc.Auth.IssueNonce(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonceResponse{Nonce: nonce, Message: common.LoginMessage(nonce)})
}

type loginRequest struct {
	Address             string `json:"address"`
	Nonce               string `json:"nonce"`
	Signature           string `json:"signature"`
	EncryptionPublicKey string `json:"encryption_public_key"`
	Username            string `json:"username"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   int64        `json:"expires_at"`
	User        userResponse `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	res, err := s.svc.Auth.Login(r.Context(), services.LoginRequest(req))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: res.Token,
		TokenType:   "bearer",
		ExpiresAt:   res.ExpiresAt.Unix(),
		User:        toUser(res.User),
	})
}

// handleWebsocket authenticates with the token query parameter since
// browsers cannot set headers on websocket upgrades.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		s.writeError(r.Context(), w, common.ErrorUnauthorized)
		return
	}
	u, err := s.svc.Auth.Authenticate(r.Context(), token)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.hub.Serve(w, r, u.Address)
}
