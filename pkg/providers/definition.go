// Package providers holds the enrichment provider catalog, the registry
// consulted at job intake, and the adapter contract for calling external
// data providers.
package providers

import (
	"context"
	"encoding/json"
	"time"
)

// Credentials is the decrypted API credential pair handed to an adapter.
type Credentials struct {
	Key    string
	Secret string
}

// Result is an adapter's normalized response. A result counts as complete
// only when Success and IsComplete are both set and the data passes the
// provider's output schema.
type Result struct {
	Success    bool           `json:"success"`
	Data       map[string]any `json:"data,omitempty"`
	IsComplete bool           `json:"isComplete"`
	Error      string         `json:"error,omitempty"`
}

// Adapter calls one external provider. Implementations enforce their own
// deadline of at most 30 seconds.
type Adapter interface {
	Enrich(ctx context.Context, creds Credentials, input map[string]any) (*Result, error)
}

// RateSpec is a provider's outbound pacing budget.
type RateSpec struct {
	Tokens   int
	Interval time.Duration
}

// Definition describes one provider. Immutable once the registry is built.
type Definition struct {
	Slug            string
	DisplayName     string
	SupportedFields []string
	CreditCost      int
	CredentialType  string
	Endpoint        string
	AuthHeader      string
	Rate            *RateSpec
	InputSchema     json.RawMessage
	OutputSchema    json.RawMessage
	Adapter         Adapter
}

// SupportsField reports whether the provider can enrich the given field.
func (d *Definition) SupportsField(field string) bool {
	for _, f := range d.SupportedFields {
		if f == field {
			return true
		}
	}
	return false
}

// Waterfall orders providers per field. The first provider returning a
// complete result wins; later entries are fallbacks.
type Waterfall map[string]FieldProviders

// FieldProviders is the ordered provider list for one field.
type FieldProviders struct {
	Providers []string `json:"providers"`
}

// Slugs returns every provider slug referenced by the waterfall.
func (w Waterfall) Slugs() []string {
	var slugs []string
	seen := make(map[string]bool)
	for _, fp := range w {
		for _, slug := range fp.Providers {
			if !seen[slug] {
				seen[slug] = true
				slugs = append(slugs, slug)
			}
		}
	}
	return slugs
}
