package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const adapterTimeout = 30 * time.Second

// HTTPAdapter is the stock adapter for catalog providers: a JSON POST to
// the provider endpoint, credentials in headers, response parsed as the
// adapter result envelope.
//
// Error split: transport failures, 5xx, and 429 return an error (the
// caller may retry); other 4xx and malformed bodies return a failed
// Result (permanent for this input).
type HTTPAdapter struct {
	def    Definition
	client *http.Client
	pacer  Pacer
	logger *slog.Logger
}

// NewHTTPAdapter binds an adapter to a catalog definition. pacer may be
// nil for unpaced calls.
func NewHTTPAdapter(def Definition, pacer Pacer, logger *slog.Logger) *HTTPAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAdapter{
		def:    def,
		client: &http.Client{Timeout: adapterTimeout},
		pacer:  pacer,
		logger: logger.With("component", "adapter", "provider", def.Slug),
	}
}

// Enrich calls the provider with one record's input data.
func (a *HTTPAdapter) Enrich(ctx context.Context, creds Credentials, input map[string]any) (*Result, error) {
	if a.pacer != nil {
		if err := a.pacer.Wait(ctx, a.def.Slug); err != nil {
			return nil, fmt.Errorf("providers: pacing %s: %w", a.def.Slug, err)
		}
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("providers: marshal %s request: %w", a.def.Slug, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.def.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("providers: build %s request: %w", a.def.Slug, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.def.AuthHeader != "" && a.def.AuthHeader != "Authorization" {
		req.Header.Set(a.def.AuthHeader, creds.Key)
	} else {
		req.Header.Set("Authorization", "Bearer "+creds.Key)
	}
	if creds.Secret != "" {
		req.Header.Set("X-Api-Secret", creds.Secret)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("providers: call %s: %w", a.def.Slug, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("providers: read %s response: %w", a.def.Slug, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if a.pacer != nil {
			a.pacer.ReportThrottle(a.def.Slug)
		}
		return nil, fmt.Errorf("providers: %s throttled the call", a.def.Slug)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("providers: %s returned %d", a.def.Slug, resp.StatusCode)
	case resp.StatusCode >= 400:
		a.logger.Warn("provider rejected call", "status", resp.StatusCode)
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("provider returned %d", resp.StatusCode),
		}, nil
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		a.logger.Warn("provider response not parseable", "error", err)
		return &Result{Success: false, Error: "malformed provider response"}, nil
	}
	return &result, nil
}
