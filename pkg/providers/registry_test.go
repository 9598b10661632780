package providers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/apperr"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/providers"
)

func stockDefinitions(t *testing.T) []providers.Definition {
	t.Helper()
	defs, err := providers.DefaultCatalog().Definitions()
	require.NoError(t, err)
	return defs
}

func stockRegistry(t *testing.T) *providers.Registry {
	t.Helper()
	r, err := providers.NewRegistry(stockDefinitions(t))
	require.NoError(t, err)
	return r
}

func TestNewRegistryRejectsDuplicateSlug(t *testing.T) {
	_, err := providers.NewRegistry([]providers.Definition{
		{Slug: "apollo", CreditCost: 2},
		{Slug: "apollo", CreditCost: 3},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate slug")
}

func TestNewRegistryRejectsNonPositiveCost(t *testing.T) {
	for _, cost := range []int{0, -1} {
		_, err := providers.NewRegistry([]providers.Definition{{Slug: "apollo", CreditCost: cost}})
		require.Error(t, err, "cost %d", cost)
		assert.Contains(t, err.Error(), "non-positive credit cost")
	}
}

func TestNewRegistryRejectsBadSchema(t *testing.T) {
	_, err := providers.NewRegistry([]providers.Definition{{
		Slug:        "apollo",
		CreditCost:  2,
		InputSchema: []byte(`{"type": 42}`),
	}})
	require.Error(t, err)
}

func TestRegistryLookups(t *testing.T) {
	r := stockRegistry(t)

	apollo, ok := r.Provider("apollo")
	require.True(t, ok)
	assert.Equal(t, 2, apollo.CreditCost)

	_, ok = r.Provider("nope")
	assert.False(t, ok)

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "apollo", all[0].Slug)
	assert.Equal(t, "clearbit", all[1].Slug)
	assert.Equal(t, "hunter", all[2].Slug)
}

func TestForField(t *testing.T) {
	r := stockRegistry(t)

	email := r.ForField("email")
	require.Len(t, email, 3)

	phone := r.ForField("phone")
	require.Len(t, phone, 1)
	assert.Equal(t, "apollo", phone[0].Slug)

	assert.Empty(t, r.ForField("shoe_size"))
}

func TestValidateSlugs(t *testing.T) {
	r := stockRegistry(t)

	assert.NoError(t, r.ValidateSlugs([]string{"apollo", "hunter"}))
	assert.NoError(t, r.ValidateSlugs(nil))

	err := r.ValidateSlugs([]string{"apollo", "ghost", "phantom"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), "ghost, phantom")
}

func TestEstimateCreditsCheapestProvider(t *testing.T) {
	r := stockRegistry(t)

	// email's cheapest supporting provider is hunter at 1
	total, err := r.EstimateCredits(1, []string{"email"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	total, err = r.EstimateCredits(10, []string{"email"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
}

func TestEstimateCreditsWaterfallHead(t *testing.T) {
	r := stockRegistry(t)

	wf := providers.Waterfall{"email": {Providers: []string{"apollo", "hunter"}}}
	total, err := r.EstimateCredits(1, []string{"email"}, wf)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total, "optimistic estimate prices the head only")
}

func TestEstimateCreditsMultipleFields(t *testing.T) {
	r := stockRegistry(t)

	// email → hunter 1, phone → apollo 2, social_profiles → clearbit 3
	total, err := r.EstimateCredits(5, []string{"email", "phone", "social_profiles"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5*(1+2+3)), total)
}

func TestEstimateCreditsUnsupportedFieldContributesZero(t *testing.T) {
	r := stockRegistry(t)

	total, err := r.EstimateCredits(100, []string{"shoe_size"}, nil)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestEstimateCreditsUnknownWaterfallSlug(t *testing.T) {
	r := stockRegistry(t)

	wf := providers.Waterfall{"email": {Providers: []string{"hunter", "ghost"}}}
	_, err := r.EstimateCredits(1, []string{"email"}, wf)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestEstimateCreditsNoRecords(t *testing.T) {
	r := stockRegistry(t)

	total, err := r.EstimateCredits(0, []string{"email"}, nil)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestWaterfallSlugs(t *testing.T) {
	wf := providers.Waterfall{
		"email": {Providers: []string{"apollo", "hunter"}},
		"phone": {Providers: []string{"apollo"}},
	}
	slugs := wf.Slugs()
	assert.ElementsMatch(t, []string{"apollo", "hunter"}, slugs)
}

func TestInputValidatorCompiled(t *testing.T) {
	r := stockRegistry(t)

	v := r.InputValidator("hunter")
	require.NotNil(t, v)

	issues := v.Validate(map[string]any{"email": "a@b.com"})
	assert.Empty(t, issues)

	issues = v.Validate(map[string]any{"name": "no email"})
	assert.NotEmpty(t, issues)

	assert.Nil(t, r.InputValidator("ghost"))
}
