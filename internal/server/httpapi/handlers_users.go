package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/safelog/internal/server/services"
)

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", services.DefaultSearchLimit)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	users, err := s.svc.Users.Search(r.Context(), r.URL.Query().Get("search"), limit, offset)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUser(&users[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.Users.Get(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

type updateUserRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decode(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	caller := callerFrom(r.Context())
	u, err := s.svc.Users.UpdateUsername(r.Context(), caller.Address, chi.URLParam(r, "address"), req.Username)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

type publicKeyRequest struct {
	PublicKey string `json:"public_key"`
}

// handleUpdatePublicKey accepts the key as a JSON body or as the
// public_key query parameter.
func (s *Server) handleUpdatePublicKey(w http.ResponseWriter, r *http.Request) {
	req := publicKeyRequest{PublicKey: r.URL.Query().Get("public_key")}
	if req.PublicKey == "" {
		if err := decode(r, &req); err != nil {
			s.writeError(r.Context(), w, err)
			return
		}
	}
	caller := callerFrom(r.Context())
	if err := s.svc.Users.UpdatePublicKey(r.Context(), caller.Address, req.PublicKey); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type resolveRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleResolveUser(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	u, err := s.svc.Users.Resolve(r.Context(), req.Address)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}
