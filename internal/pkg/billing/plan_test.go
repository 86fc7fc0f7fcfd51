package billing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspecto-app/inspecto/app/models"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(map[string][]string{
		models.TierStarter:      {"price_starter_m", "price_starter_y"},
		models.TierProfessional: {"price_pro_m"},
		models.TierEnterprise:   {"price_ent_m"},
	})
	require.NoError(t, err)
	return c
}

func TestCatalogTierForCheckout(t *testing.T) {
	c := testCatalog(t)

	tier, err := c.TierForCheckout("price_pro_m")
	require.NoError(t, err)
	assert.Equal(t, models.TierProfessional, tier)

	tier, err = c.TierForCheckout(" price_starter_y ")
	require.NoError(t, err)
	assert.Equal(t, models.TierStarter, tier)

	_, err = c.TierForCheckout("price_unknown")
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestCatalogTierForPriceFallsBackToStarter(t *testing.T) {
	c := testCatalog(t)

	tier, known := c.TierForPrice("price_ent_m")
	assert.True(t, known)
	assert.Equal(t, models.TierEnterprise, tier)

	tier, known = c.TierForPrice("price_from_another_account")
	assert.False(t, known)
	assert.Equal(t, models.TierStarter, tier)
}

func TestCatalogBestTier(t *testing.T) {
	c := testCatalog(t)

	tests := []struct {
		name      string
		prices    []string
		wantTier  string
		wantKnown bool
	}{
		{name: "empty", prices: nil, wantTier: models.TierStarter, wantKnown: false},
		{name: "single", prices: []string{"price_pro_m"}, wantTier: models.TierProfessional, wantKnown: true},
		{name: "highest wins", prices: []string{"price_starter_m", "price_ent_m", "price_pro_m"}, wantTier: models.TierEnterprise, wantKnown: true},
		{name: "unknown ignored", prices: []string{"price_x", "price_pro_m"}, wantTier: models.TierProfessional, wantKnown: true},
		{name: "all unknown", prices: []string{"price_x", ""}, wantTier: models.TierStarter, wantKnown: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, known := c.BestTier(tt.prices)
			assert.Equal(t, tt.wantTier, tier)
			assert.Equal(t, tt.wantKnown, known)
		})
	}
}

func TestCatalogPriceForTier(t *testing.T) {
	c := testCatalog(t)

	price, err := c.PriceForTier("STARTER")
	require.NoError(t, err)
	assert.Equal(t, "price_starter_m", price)

	_, err = c.PriceForTier("platinum")
	assert.True(t, errors.Is(err, ErrConfig))

	empty, err := NewCatalog(map[string][]string{models.TierStarter: {""}})
	require.NoError(t, err)
	_, err = empty.PriceForTier(models.TierStarter)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestNewCatalogRejectsConflicts(t *testing.T) {
	_, err := NewCatalog(map[string][]string{
		models.TierStarter:      {"price_a"},
		models.TierProfessional: {"price_a"},
	})
	assert.True(t, errors.Is(err, ErrConfig))

	_, err = NewCatalog(map[string][]string{"gold": {"price_a"}})
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "trialing", want: models.BillingStatusTrialing},
		{in: "ACTIVE", want: models.BillingStatusActive},
		{in: "past_due", want: models.BillingStatusPastDue},
		{in: "unpaid", want: models.BillingStatusPastDue},
		{in: "paused", want: models.BillingStatusPastDue},
		{in: "canceled", want: models.BillingStatusCanceled},
		{in: "incomplete_expired", want: models.BillingStatusCanceled},
		{in: "incomplete", want: models.BillingStatusIncomplete},
		{in: "something_new", want: models.BillingStatusIncomplete},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeStatus(tt.in), "normalizeStatus(%q)", tt.in)
	}
}

func TestTierRank(t *testing.T) {
	assert.Less(t, tierRank(models.TierStarter), tierRank(models.TierProfessional))
	assert.Less(t, tierRank(models.TierProfessional), tierRank(models.TierEnterprise))
}
