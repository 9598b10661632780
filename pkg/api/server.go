package api

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/breaker"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/credits"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/enrichment"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/observability"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/providers"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/vault"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/webhooks"
)

// Deps are the services the HTTP surface exposes. Idempotency and
// RateLimit are optional; nil disables the middleware.
type Deps struct {
	Enrichment  *enrichment.Service
	Ledger      *credits.Ledger
	Vault       *vault.Vault
	Webhooks    *webhooks.Service
	Registry    *providers.Registry
	Breaker     *breaker.Breaker
	DB          *sql.DB
	Metrics     *observability.Provider
	Idempotency IdempotencyStore
	RateLimit   *RateLimiter
	Logger      *slog.Logger
}

// Server routes API requests to the domain services.
type Server struct {
	deps   Deps
	logger *slog.Logger
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, logger: logger.With("component", "api")}
}

// Handler returns the route tree wrapped in the middleware chain:
// request ID, logging, metrics, then the optional rate limiter and
// idempotency cache closest to the mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/workspaces/{ws}/enrichment/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/v1/workspaces/{ws}/enrichment/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/v1/workspaces/{ws}/enrichment/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /api/v1/workspaces/{ws}/enrichment/jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("GET /api/v1/workspaces/{ws}/enrichment/jobs/{id}/records", s.handleListJobRecords)

	mux.HandleFunc("GET /api/v1/workspaces/{ws}/credentials", s.handleListCredentials)
	mux.HandleFunc("POST /api/v1/workspaces/{ws}/credentials", s.handleStoreCredential)
	mux.HandleFunc("DELETE /api/v1/workspaces/{ws}/credentials/{id}", s.handleDeleteCredential)

	mux.HandleFunc("GET /api/v1/workspaces/{ws}/billing", s.handleGetBilling)
	mux.HandleFunc("POST /api/v1/workspaces/{ws}/billing", s.handleProvisionBilling)
	mux.HandleFunc("GET /api/v1/workspaces/{ws}/billing/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/v1/workspaces/{ws}/billing/credits", s.handleAddCredits)

	mux.HandleFunc("GET /api/v1/workspaces/{ws}/webhooks", s.handleListSubscriptions)
	mux.HandleFunc("POST /api/v1/workspaces/{ws}/webhooks", s.handleCreateSubscription)
	mux.HandleFunc("DELETE /api/v1/workspaces/{ws}/webhooks/{id}", s.handleDeleteSubscription)

	mux.HandleFunc("GET /api/v1/providers", s.handleListProviders)
	mux.HandleFunc("GET /api/v1/ops/breakers", s.handleBreakers)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	var handler http.Handler = mux
	if s.deps.Idempotency != nil {
		handler = Idempotency(s.deps.Idempotency)(handler)
	}
	if s.deps.RateLimit != nil {
		handler = s.deps.RateLimit.Middleware(handler)
	}
	handler = Metrics(s.deps.Metrics)(handler)
	handler = RequestLogger(s.logger)(handler)
	return RequestID(handler)
}

// workspaceID parses the {ws} path segment. A malformed ID is reported
// and the handler must return.
func (s *Server) workspaceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("ws"))
	if err != nil {
		WriteValidation(w, r, "workspace id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses the {id} path segment.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteValidation(w, r, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// userID identifies the caller for createdBy fields. Authentication is
// terminated upstream; the gateway forwards the identity in a header.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "anonymous"
}

// pageParams reads ?page= and ?limit=. Zero values defer to the store
// defaults.
func pageParams(r *http.Request) (page, limit int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	return page, limit
}

// decodeJSON reads the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
