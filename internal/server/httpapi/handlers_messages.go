package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/safelog/internal/server/services"
)

type sendMessageRequest struct {
	RecipientAddress string `json:"recipient_address"`
	Content          string `json:"content"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decode(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	m, err := s.svc.Messages.Send(r.Context(), callerFrom(r.Context()).Address, req.RecipientAddress, req.Content)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessage(m))
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Messages.Conversations(r.Context(), callerFrom(r.Context()).Address)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	out := make([]conversationResponse, 0, len(list))
	for _, c := range list {
		out = append(out, conversationResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", services.DefaultHistoryLimit)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	list, err := s.svc.Messages.History(r.Context(), callerFrom(r.Context()).Address, chi.URLParam(r, "partner"), limit, offset)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	out := make([]messageResponse, 0, len(list))
	for i := range list {
		out = append(out, toMessage(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Messages.MarkRead(r.Context(), callerFrom(r.Context()).Address, chi.URLParam(r, "partner"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}
