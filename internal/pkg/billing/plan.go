package billing

import (
	"fmt"
	"strings"

	"github.com/inspecto-app/inspecto/app/models"
	"github.com/inspecto-app/inspecto/internal/pkg/env"
)

// TrialPeriodDays is the length of the free trial offered at checkout.
const TrialPeriodDays = 14

// Catalog maps processor price ids to tiers. The same instance is used when
// opening checkouts and when resolving webhook events.
type Catalog struct {
	tierByPrice  map[string]string
	defaultPrice map[string]string
}

// NewCatalog builds a catalog from tier -> price ids. The first price listed for
// a tier is the one used when a checkout asks for the tier rather than a price.
func NewCatalog(pricesByTier map[string][]string) (*Catalog, error) {
	c := &Catalog{
		tierByPrice:  make(map[string]string),
		defaultPrice: make(map[string]string),
	}
	for tier, prices := range pricesByTier {
		t, ok := parseTier(tier)
		if !ok {
			return nil, fmt.Errorf("%w: unknown tier %q", ErrConfig, tier)
		}
		for _, raw := range prices {
			price := strings.TrimSpace(raw)
			if price == "" {
				continue
			}
			if prev, dup := c.tierByPrice[price]; dup && prev != t {
				return nil, fmt.Errorf("%w: price %q mapped to both %s and %s", ErrConfig, price, prev, t)
			}
			c.tierByPrice[price] = t
			if _, ok := c.defaultPrice[t]; !ok {
				c.defaultPrice[t] = price
			}
		}
	}
	return c, nil
}

// CatalogFromEnv reads STRIPE_PRICE_<TIER> as comma separated price id lists.
func CatalogFromEnv() (*Catalog, error) {
	return NewCatalog(map[string][]string{
		models.TierStarter:      strings.Split(env.GetEnv("STRIPE_PRICE_STARTER", ""), ","),
		models.TierProfessional: strings.Split(env.GetEnv("STRIPE_PRICE_PROFESSIONAL", ""), ","),
		models.TierEnterprise:   strings.Split(env.GetEnv("STRIPE_PRICE_ENTERPRISE", ""), ","),
	})
}

// TierForCheckout resolves a price id strictly; unknown prices are a config error.
func (c *Catalog) TierForCheckout(priceID string) (string, error) {
	tier, ok := c.lookup(priceID)
	if !ok {
		return "", fmt.Errorf("%w: unknown price %q", ErrConfig, priceID)
	}
	return tier, nil
}

// TierForPrice resolves a price id seen in a webhook event. Unknown prices fall
// back to the lowest tier so that billing events are never dropped; known is false
// in that case.
func (c *Catalog) TierForPrice(priceID string) (tier string, known bool) {
	if t, ok := c.lookup(priceID); ok {
		return t, true
	}
	return models.TierStarter, false
}

// PriceForTier returns the default price id configured for a tier.
func (c *Catalog) PriceForTier(tier string) (string, error) {
	t, ok := parseTier(tier)
	if !ok {
		return "", fmt.Errorf("%w: unknown tier %q", ErrConfig, tier)
	}
	price, ok := c.defaultPrice[t]
	if !ok {
		return "", fmt.Errorf("%w: no price configured for tier %s", ErrConfig, t)
	}
	return price, nil
}

func (c *Catalog) lookup(priceID string) (string, bool) {
	if c == nil {
		return "", false
	}
	t, ok := c.tierByPrice[strings.TrimSpace(priceID)]
	return t, ok
}

func parseTier(tier string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case models.TierStarter:
		return models.TierStarter, true
	case models.TierProfessional:
		return models.TierProfessional, true
	case models.TierEnterprise:
		return models.TierEnterprise, true
	default:
		return "", false
	}
}

func tierRank(tier string) int {
	switch tier {
	case models.TierEnterprise:
		return 2
	case models.TierProfessional:
		return 1
	default:
		return 0
	}
}

// normalizeStatus folds processor subscription statuses into the local status set.
// Unknown statuses fail closed to incomplete.
func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "trialing":
		return models.BillingStatusTrialing
	case "active":
		return models.BillingStatusActive
	case "past_due", "unpaid", "paused":
		return models.BillingStatusPastDue
	case "canceled", "cancelled", "incomplete_expired":
		return models.BillingStatusCanceled
	default:
		return models.BillingStatusIncomplete
	}
}

// BestTier resolves the price ids of a multi-item subscription or invoice to the
// highest mapped tier. With no mapped price it falls back like TierForPrice.
func (c *Catalog) BestTier(priceIDs []string) (tier string, known bool) {
	best := models.TierStarter
	seen := make(map[string]struct{}, len(priceIDs))
	for _, raw := range priceIDs {
		ref := strings.TrimSpace(raw)
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}

		t, ok := c.lookup(ref)
		if !ok {
			continue
		}
		if !known || tierRank(t) > tierRank(best) {
			best = t
			known = true
		}
	}
	return best, known
}
