package api

import (
	"net/http"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/credits"
)

type provisionBillingRequest struct {
	InitialCredits        int64  `json:"initialCredits"`
	CreditLimit           int64  `json:"creditLimit"`
	AutoRecharge          bool   `json:"autoRecharge"`
	AutoRechargeThreshold int64  `json:"autoRechargeThreshold"`
	AutoRechargeAmount    int64  `json:"autoRechargeAmount"`
	Plan                  string `json:"plan"`
}

type addCreditsRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (s *Server) handleGetBilling(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}

	billing, err := s.deps.Ledger.Billing(r.Context(), ws)
	if err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, billing)
}

func (s *Server) handleProvisionBilling(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}

	var req provisionBillingRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteValidation(w, r, "request body must be valid JSON")
		return
	}

	billing, err := s.deps.Ledger.CreateBilling(r.Context(), credits.CreateBillingParams{
		WorkspaceID:           ws,
		InitialCredits:        req.InitialCredits,
		CreditLimit:           req.CreditLimit,
		AutoRecharge:          req.AutoRecharge,
		AutoRechargeThreshold: req.AutoRechargeThreshold,
		AutoRechargeAmount:    req.AutoRechargeAmount,
		Plan:                  req.Plan,
	})
	if err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, billing)
}

func (s *Server) handleAddCredits(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}

	var req addCreditsRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteValidation(w, r, "request body must be valid JSON")
		return
	}
	if req.Description == "" {
		req.Description = "credit purchase"
	}

	txn, err := s.deps.Ledger.AddCredits(r.Context(), ws, req.Amount, req.Description)
	if err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	s.deps.Metrics.RecordCreditTransaction(r.Context(), "purchase")
	writeJSON(w, http.StatusCreated, txn)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}

	page, limit := pageParams(r)
	txns, err := s.deps.Ledger.Transactions(r.Context(), ws, page, limit)
	if err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	if txns == nil {
		txns = []credits.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}
