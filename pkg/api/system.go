package api

import (
	"context"
	"net/http"
	"time"
)

// providerInfo is the public catalog shape. Endpoints, auth headers, and
// schemas stay server-side.
type providerInfo struct {
	Slug            string   `json:"slug"`
	DisplayName     string   `json:"displayName"`
	SupportedFields []string `json:"supportedFields"`
	CreditCost      int      `json:"creditCost"`
	CredentialType  string   `json:"credentialType"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	defs := s.deps.Registry.All()
	out := make([]providerInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, providerInfo{
			Slug:            def.Slug,
			DisplayName:     def.DisplayName,
			SupportedFields: def.SupportedFields,
			CreditCost:      def.CreditCost,
			CredentialType:  def.CredentialType,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"breakers": s.deps.Breaker.Snapshot()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.PingContext(ctx); err != nil {
			s.logger.ErrorContext(r.Context(), "health check failed", "error", err)
			writeProblemDetail(w, &ProblemDetail{
				Type:      "https://morket.dev/problems/unavailable",
				Title:     "Service Unavailable",
				Status:    http.StatusServiceUnavailable,
				Detail:    "database unreachable",
				Instance:  r.URL.Path,
				RequestID: w.Header().Get("X-Request-ID"),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
