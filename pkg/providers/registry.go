package providers

import (
	"fmt"
	"strings"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/apperr"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/schema"
)

// Registry is the process-wide provider lookup. Read-only after
// construction; owned by the application root and passed by reference.
type Registry struct {
	defs   map[string]*Definition
	order  []string
	input  map[string]*schema.Validator
	output map[string]*schema.Validator
}

// NewRegistry builds a registry from definitions. Duplicate slugs,
// non-positive costs, and uncompilable schemas fail construction.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{
		defs:   make(map[string]*Definition, len(defs)),
		input:  make(map[string]*schema.Validator),
		output: make(map[string]*schema.Validator),
	}
	for i := range defs {
		def := defs[i]
		if def.Slug == "" {
			return nil, fmt.Errorf("providers: definition %d has no slug", i)
		}
		if _, dup := r.defs[def.Slug]; dup {
			return nil, fmt.Errorf("providers: duplicate slug %q", def.Slug)
		}
		if def.CreditCost <= 0 {
			return nil, fmt.Errorf("providers: %s has non-positive credit cost %d", def.Slug, def.CreditCost)
		}
		if len(def.InputSchema) > 0 {
			v, err := schema.Compile(def.Slug+"-input", def.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("providers: %s input schema: %w", def.Slug, err)
			}
			r.input[def.Slug] = v
		}
		if len(def.OutputSchema) > 0 {
			v, err := schema.Compile(def.Slug+"-output", def.OutputSchema)
			if err != nil {
				return nil, fmt.Errorf("providers: %s output schema: %w", def.Slug, err)
			}
			r.output[def.Slug] = v
		}
		r.defs[def.Slug] = &def
		r.order = append(r.order, def.Slug)
	}
	return r, nil
}

// Provider returns the definition for slug.
func (r *Registry) Provider(slug string) (*Definition, bool) {
	def, ok := r.defs[slug]
	return def, ok
}

// All returns every definition in catalog order.
func (r *Registry) All() []*Definition {
	out := make([]*Definition, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.defs[slug])
	}
	return out
}

// ForField returns the providers supporting a field, in catalog order.
func (r *Registry) ForField(field string) []*Definition {
	var out []*Definition
	for _, slug := range r.order {
		if def := r.defs[slug]; def.SupportsField(field) {
			out = append(out, def)
		}
	}
	return out
}

// ValidateSlugs checks that every slug is registered.
func (r *Registry) ValidateSlugs(slugs []string) error {
	var unknown []string
	for _, slug := range slugs {
		if _, ok := r.defs[slug]; !ok {
			unknown = append(unknown, slug)
		}
	}
	if len(unknown) > 0 {
		return apperr.Validationf("unknown providers: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// InputValidator returns the compiled input schema for slug, nil when the
// provider declares none.
func (r *Registry) InputValidator(slug string) *schema.Validator {
	return r.input[slug]
}

// OutputValidator returns the compiled output schema for slug, nil when
// the provider declares none.
func (r *Registry) OutputValidator(slug string) *schema.Validator {
	return r.output[slug]
}

// EstimateCredits prices a job before it runs. Per field: with a waterfall
// configured the head provider's cost applies (optimistic, fallbacks cost
// extra only when used); otherwise the cheapest supporting provider's. A
// field no provider supports contributes zero.
func (r *Registry) EstimateCredits(records int, fields []string, waterfall Waterfall) (int64, error) {
	if records <= 0 {
		return 0, nil
	}
	var total int64
	for _, field := range fields {
		cost, err := r.fieldCost(field, waterfall)
		if err != nil {
			return 0, err
		}
		total += int64(cost) * int64(records)
	}
	return total, nil
}

func (r *Registry) fieldCost(field string, waterfall Waterfall) (int, error) {
	if fp, ok := waterfall[field]; ok && len(fp.Providers) > 0 {
		for _, slug := range fp.Providers {
			if _, known := r.defs[slug]; !known {
				return 0, apperr.Validationf("unknown provider %q in waterfall for field %q", slug, field)
			}
		}
		return r.defs[fp.Providers[0]].CreditCost, nil
	}

	cheapest := 0
	for _, def := range r.ForField(field) {
		if cheapest == 0 || def.CreditCost < cheapest {
			cheapest = def.CreditCost
		}
	}
	return cheapest, nil
}
