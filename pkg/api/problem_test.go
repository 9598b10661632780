package api_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/api"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/apperr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) api.ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p api.ProblemDetail
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	return p
}

func TestWriteProblemStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperr.Validation("records must not be empty"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", apperr.NotFound("job not found"), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", apperr.Conflict("job is already completed"), http.StatusConflict, "CONFLICT"},
		{"insufficient credits", apperr.InsufficientCredits("balance 0"), http.StatusPaymentRequired, "INSUFFICIENT_CREDITS"},
		{"rate limited", apperr.New(apperr.CodeRateLimited, "slow down"), http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{"untyped", errors.New("pq: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces/x/enrichment/jobs", nil)

			api.WriteProblem(w, r, discardLogger(), tc.err)

			assert.Equal(t, tc.status, w.Code)
			p := decodeProblem(t, w)
			assert.Equal(t, tc.status, p.Status)
			assert.Equal(t, tc.code, p.Code)
			assert.Equal(t, "/api/v1/workspaces/x/enrichment/jobs", p.Instance)
			assert.Contains(t, p.Type, "https://morket.dev/problems/")
		})
	}
}

func TestWriteProblemHidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)

	api.WriteProblem(w, r, discardLogger(), errors.New("pq: password authentication failed for user postgres"))

	p := decodeProblem(t, w)
	assert.Equal(t, http.StatusInternalServerError, p.Status)
	assert.NotContains(t, p.Detail, "postgres")
	assert.NotContains(t, p.Detail, "password")
}

func TestWriteProblemKeepsClientDetail(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/workspaces/x/billing/credits", nil)

	api.WriteProblem(w, r, discardLogger(), apperr.InsufficientCredits("insufficient credits: balance 3, estimated 10"))

	p := decodeProblem(t, w)
	assert.Contains(t, p.Detail, "balance 3")
	assert.Equal(t, "Insufficient Credits", p.Title)
}

func TestWriteValidation(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/workspaces/nope/enrichment/jobs", nil)

	api.WriteValidation(w, r, "workspace id must be a UUID")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, "workspace id must be a UUID", p.Detail)
	assert.Equal(t, "VALIDATION_ERROR", p.Code)
}

func TestWriteTooManyRequestsSetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)

	api.WriteTooManyRequests(w, r, 5)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
	p := decodeProblem(t, w)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", p.Code)
}

func TestWriteProblemEchoesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-123")
	r := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)

	api.WriteProblem(w, r, discardLogger(), apperr.NotFound("nothing here"))

	p := decodeProblem(t, w)
	assert.Equal(t, "req-123", p.RequestID)
}
