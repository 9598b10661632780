package api

import (
	"net/http"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/webhooks"
)

type createSubscriptionRequest struct {
	CallbackURL string   `json:"callbackUrl"`
	EventTypes  []string `json:"eventTypes"`
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}

	subs, err := s.deps.Webhooks.ListSubscriptions(r.Context(), ws)
	if err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	if subs == nil {
		subs = []webhooks.Subscription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": subs})
}

// handleCreateSubscription returns the signing secret in the response.
// This is the only time the secret is ever shown.
func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}

	var req createSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteValidation(w, r, "request body must be valid JSON")
		return
	}

	sub, err := s.deps.Webhooks.CreateSubscription(r.Context(), ws, userID(r), req.CallbackURL, req.EventTypes)
	if err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}
	subID, ok := s.pathID(w, r)
	if !ok {
		return
	}

	if err := s.deps.Webhooks.DeleteSubscription(r.Context(), ws, subID); err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
