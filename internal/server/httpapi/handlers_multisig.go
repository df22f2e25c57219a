package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/safelog/internal/server/services"
)

type workflowRequest struct {
	Name       string         `json:"name"`
	Secret     secretRequest  `json:"secret"`
	Signers    []partyRequest `json:"signers"`
	Recipients []partyRequest `json:"recipients"`
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if err := decode(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	in := services.WorkflowInput{Name: req.Name, Secret: req.Secret.input()}
	in.Signers, in.SignerKeys = partyKeys(req.Signers)
	in.Recipients, in.RecipientKeys = partyKeys(req.Recipients)

	wf, err := s.svc.Multisig.Create(r.Context(), callerFrom(r.Context()).Address, in)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflow(wf))
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Multisig.List(r.Context(), callerFrom(r.Context()).Address)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	out := make([]workflowResponse, 0, len(list))
	for i := range list {
		out = append(out, toWorkflow(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	wf, err := s.svc.Multisig.Get(r.Context(), callerFrom(r.Context()).Address, id)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflow(wf))
}

type signRequest struct {
	Signature     string            `json:"signature"`
	RecipientKeys map[string]string `json:"recipient_keys"`
}

func (s *Server) handleSignWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	var req signRequest
	if err := decode(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	wf, err := s.svc.Multisig.Sign(r.Context(), callerFrom(r.Context()).Address, id, req.Signature, req.RecipientKeys)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflow(wf))
}
