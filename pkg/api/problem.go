// Package api is the HTTP surface of the enrichment backend: a stdlib
// mux with method+path patterns, thin handlers over the domain services,
// and RFC 7807 problem responses mapped from the error taxonomy.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/apperr"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// All error responses use this format.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// Code is the taxonomy code, e.g. INSUFFICIENT_CREDITS.
	Code string `json:"code,omitempty"`
	// RequestID links the response to the server logs.
	RequestID string `json:"requestId,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func problemType(code apperr.Code) string {
	slug := strings.ReplaceAll(strings.ToLower(string(code)), "_", "-")
	return "https://morket.dev/problems/" + slug
}

// WriteProblem maps err through the taxonomy and writes the problem
// response. Internal causes are logged, never exposed.
func WriteProblem(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)

	detail := err.Error()
	if status == http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(r.Context(), "internal server error",
			"path", r.URL.Path, "error", err)
		detail = "An unexpected error occurred. Please try again later."
	}

	writeProblemDetail(w, &ProblemDetail{
		Type:      problemType(code),
		Title:     apperr.Title(code),
		Status:    status,
		Detail:    detail,
		Instance:  r.URL.Path,
		Code:      string(code),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// WriteValidation writes a 400 response for malformed requests that never
// reach a service.
func WriteValidation(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblemDetail(w, &ProblemDetail{
		Type:      problemType(apperr.CodeValidation),
		Title:     apperr.Title(apperr.CodeValidation),
		Status:    http.StatusBadRequest,
		Detail:    detail,
		Instance:  r.URL.Path,
		Code:      string(apperr.CodeValidation),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// WriteTooManyRequests writes a 429 response with a Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	writeProblemDetail(w, &ProblemDetail{
		Type:      problemType(apperr.CodeRateLimited),
		Title:     apperr.Title(apperr.CodeRateLimited),
		Status:    http.StatusTooManyRequests,
		Detail:    "Rate limit exceeded. Retry after the specified interval.",
		Instance:  r.URL.Path,
		Code:      string(apperr.CodeRateLimited),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

func writeProblemDetail(w http.ResponseWriter, p *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// writeJSON writes a success response.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
