package providers_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/providers"
)

func TestDefaultCatalog(t *testing.T) {
	c := providers.DefaultCatalog()
	require.Len(t, c.Providers, 3)

	bySlug := map[string]providers.CatalogEntry{}
	for _, e := range c.Providers {
		bySlug[e.Slug] = e
	}

	assert.Equal(t, 2, bySlug["apollo"].CreditCost)
	assert.ElementsMatch(t, []string{"email", "phone", "company_info", "job_title"},
		bySlug["apollo"].SupportedFields)
	assert.Equal(t, 3, bySlug["clearbit"].CreditCost)
	assert.Equal(t, 1, bySlug["hunter"].CreditCost)
	assert.ElementsMatch(t, []string{"email"}, bySlug["hunter"].SupportedFields)
}

func TestParseCatalogVersionGate(t *testing.T) {
	ok := []byte("schemaVersion: \"1.4.2\"\nproviders: []\n")
	_, err := providers.ParseCatalog(ok)
	assert.NoError(t, err)

	tooNew := []byte("schemaVersion: \"2.0.0\"\nproviders: []\n")
	_, err = providers.ParseCatalog(tooNew)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside supported range")

	missing := []byte("providers: []\n")
	_, err = providers.ParseCatalog(missing)
	require.Error(t, err)

	garbage := []byte("schemaVersion: \"not-semver\"\nproviders: []\n")
	_, err = providers.ParseCatalog(garbage)
	require.Error(t, err)
}

func TestCatalogDefinitionsRenderSchemas(t *testing.T) {
	defs, err := providers.DefaultCatalog().Definitions()
	require.NoError(t, err)
	require.Len(t, defs, 3)

	for _, def := range defs {
		assert.NotEmpty(t, def.InputSchema, "slug %s", def.Slug)
		assert.Contains(t, string(def.InputSchema), `"required":["email"]`)
		require.NotNil(t, def.Rate, "slug %s", def.Slug)
		assert.Greater(t, def.Rate.Tokens, 0)
		assert.Equal(t, time.Second, def.Rate.Interval)
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
schemaVersion: "1.0.0"
providers:
  - slug: acme
    displayName: Acme Data
    creditCost: 4
    supportedFields: [email]
    endpoint: https://api.acme.test/enrich
`), 0o600))

	c, err := providers.LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Providers, 1)
	assert.Equal(t, "acme", c.Providers[0].Slug)
	assert.Equal(t, 4, c.Providers[0].CreditCost)

	_, err = providers.LoadCatalog(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	// empty path selects the embedded catalog
	c, err = providers.LoadCatalog("")
	require.NoError(t, err)
	assert.Len(t, c.Providers, 3)
}
