package httpapi

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/server/access"
	"github.com/dmitrijs2005/safelog/internal/server/services"
)

func (s *Server) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	var req secretRequest
	if err := decode(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	sec, err := s.svc.Secrets.Create(r.Context(), callerFrom(r.Context()).Address, req.input())
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSecretWithKey(sec))
}

func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Secrets.ListOwned(r.Context(), callerFrom(r.Context()).Address)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	out := make([]secretResponse, 0, len(list))
	for i := range list {
		out = append(out, toSecretWithKey(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSecret(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	sec, err := s.svc.Secrets.Get(r.Context(), callerFrom(r.Context()).Address, id)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSecretWithKey(sec))
}

func (s *Server) handleUpdateSecret(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	var req secretRequest
	if err := decode(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	sec, err := s.svc.Secrets.Update(r.Context(), callerFrom(r.Context()).Address, id, req.Name, req.EncryptedData)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSecret(sec))
}

func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if err := s.svc.Secrets.Delete(r.Context(), callerFrom(r.Context()).Address, id); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type shareRequest struct {
	SecretID       int64  `json:"secret_id"`
	GranteeAddress string `json:"grantee_address"`
	EncryptedKey   string `json:"encrypted_key"`
	// ExpiresIn is the grant lifetime in seconds; absent or zero never expires.
	ExpiresIn *int64 `json:"expires_in"`
}

// maxExpiresIn is the largest TTL in seconds a time.Duration can hold.
const maxExpiresIn = math.MaxInt64 / int64(time.Second)

func shareTTL(expiresIn *int64) (*time.Duration, error) {
	if expiresIn == nil {
		return nil, nil
	}
	if *expiresIn > maxExpiresIn {
		return nil, fmt.Errorf("%w: expires_in exceeds %d seconds", common.ErrValidation, maxExpiresIn)
	}
	ttl := time.Duration(*expiresIn) * time.Second
	return &ttl, nil
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := decode(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	ttl, err := shareTTL(req.ExpiresIn)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	sr := access.ShareRequest{SecretID: req.SecretID, Grantee: req.GranteeAddress, EncryptedKey: req.EncryptedKey, TTL: ttl}
	g, err := s.svc.Secrets.Share(r.Context(), callerFrom(r.Context()).Address, sr)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrant(g))
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "grantID")
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if err := s.svc.Secrets.Revoke(r.Context(), callerFrom(r.Context()).Address, id); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *Server) handleListAccess(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	list, err := s.svc.Secrets.ListAccess(r.Context(), callerFrom(r.Context()).Address, id)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	out := make([]grantResponse, 0, len(list))
	for i := range list {
		out = append(out, toGrant(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSharedWithMe(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Secrets.SharedWithMe(r.Context(), callerFrom(r.Context()).Address)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	out := make([]grantResponse, 0, len(list))
	for _, sg := range list {
		g := toGrant(&sg.AccessGrant)
		g.SecretName, g.SecretType, g.OwnerAddress = sg.SecretName, sg.SecretType, sg.OwnerAddress
		out = append(out, g)
	}
	writeJSON(w, http.StatusOK, out)
}

type chunkRequest struct {
	SecretID      int64  `json:"secret_id"`
	Index         int    `json:"chunk_index"`
	IV            string `json:"iv"`
	EncryptedData string `json:"encrypted_data"`
}

func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	var req chunkRequest
	if err := decode(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	c, err := s.svc.Chunks.Upload(r.Context(), callerFrom(r.Context()).Address, services.ChunkUpload(req))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChunk(c, ""))
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	list, err := s.svc.Chunks.List(r.Context(), callerFrom(r.Context()).Address, id)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	out := make([]chunkResponse, 0, len(list))
	for i := range list {
		out = append(out, toChunk(&list[i].Chunk, list[i].EncryptedData))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(r.Context(), w, fmt.Errorf("%w: bad index", common.ErrValidation))
		return
	}
	c, err := s.svc.Chunks.Get(r.Context(), callerFrom(r.Context()).Address, id, index)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChunk(&c.Chunk, c.EncryptedData))
}
