package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	_ "embed"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// supportedSchemaRange is the catalog schemaVersion range this build reads.
const supportedSchemaRange = ">= 1.0.0, < 2.0.0"

var catalogConstraint = mustConstraint(supportedSchemaRange)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Catalog is the YAML provider catalog.
type Catalog struct {
	SchemaVersion string         `yaml:"schemaVersion"`
	Providers     []CatalogEntry `yaml:"providers"`
}

// CatalogEntry is one provider as authored in YAML. Schemas are YAML
// mappings converted to JSON before compilation.
type CatalogEntry struct {
	Slug            string         `yaml:"slug"`
	DisplayName     string         `yaml:"displayName"`
	CreditCost      int            `yaml:"creditCost"`
	CredentialType  string         `yaml:"credentialType"`
	SupportedFields []string       `yaml:"supportedFields"`
	Endpoint        string         `yaml:"endpoint"`
	AuthHeader      string         `yaml:"authHeader"`
	Rate            *CatalogRate   `yaml:"rate"`
	InputSchema     map[string]any `yaml:"inputSchema"`
	OutputSchema    map[string]any `yaml:"outputSchema"`
}

// CatalogRate is the YAML form of a pacing budget.
type CatalogRate struct {
	Tokens          int `yaml:"tokens"`
	IntervalSeconds int `yaml:"intervalSeconds"`
}

// ParseCatalog decodes and version-gates a YAML catalog.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("providers: parse catalog: %w", err)
	}
	if c.SchemaVersion == "" {
		return nil, errors.New("providers: catalog missing schemaVersion")
	}
	v, err := semver.NewVersion(c.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("providers: invalid catalog schemaVersion %q: %w", c.SchemaVersion, err)
	}
	if !catalogConstraint.Check(v) {
		return nil, fmt.Errorf("providers: catalog schemaVersion %s outside supported range %s",
			c.SchemaVersion, supportedSchemaRange)
	}
	return &c, nil
}

// LoadCatalog reads a catalog from disk. An empty path selects the
// compiled-in default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalogYAML)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("providers: read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// DefaultCatalog returns the compiled-in catalog. The embedded YAML is
// validated by tests, so a parse failure here is a build defect.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Definitions converts catalog entries into provider definitions with the
// schemas rendered as JSON. Adapters are bound separately by the caller.
func (c *Catalog) Definitions() ([]Definition, error) {
	defs := make([]Definition, 0, len(c.Providers))
	for _, e := range c.Providers {
		def := Definition{
			Slug:            e.Slug,
			DisplayName:     e.DisplayName,
			SupportedFields: e.SupportedFields,
			CreditCost:      e.CreditCost,
			CredentialType:  e.CredentialType,
			Endpoint:        e.Endpoint,
			AuthHeader:      e.AuthHeader,
		}
		if e.Rate != nil {
			def.Rate = &RateSpec{
				Tokens:   e.Rate.Tokens,
				Interval: time.Duration(e.Rate.IntervalSeconds) * time.Second,
			}
		}
		if e.InputSchema != nil {
			raw, err := json.Marshal(e.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("providers: render %s input schema: %w", e.Slug, err)
			}
			def.InputSchema = raw
		}
		if e.OutputSchema != nil {
			raw, err := json.Marshal(e.OutputSchema)
			if err != nil {
				return nil, fmt.Errorf("providers: render %s output schema: %w", e.Slug, err)
			}
			def.OutputSchema = raw
		}
		defs = append(defs, def)
	}
	return defs, nil
}
