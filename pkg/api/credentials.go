package api

import (
	"net/http"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/vault"
)

type storeCredentialRequest struct {
	ProviderName string `json:"providerName"`
	Key          string `json:"key"`
	Secret       string `json:"secret,omitempty"`
}

func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}

	creds, err := s.deps.Vault.List(r.Context(), ws)
	if err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	if creds == nil {
		creds = []vault.MaskedCredential{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"credentials": creds})
}

func (s *Server) handleStoreCredential(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}

	var req storeCredentialRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteValidation(w, r, "request body must be valid JSON")
		return
	}

	cred, err := s.deps.Vault.Store(r.Context(), vault.StoreParams{
		WorkspaceID:  ws,
		ProviderName: req.ProviderName,
		Key:          req.Key,
		Secret:       req.Secret,
		CreatedBy:    userID(r),
	})
	if err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, cred)
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}
	credID, ok := s.pathID(w, r)
	if !ok {
		return
	}

	if err := s.deps.Vault.Delete(r.Context(), ws, credID); err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
