package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/inspecto-app/inspecto/app/models"
)

// CheckoutModeSubscription is the only checkout mode the service opens.
const CheckoutModeSubscription = "subscription"

// StartCheckout makes sure the tenant has a processor customer and opens a hosted
// checkout for the requested price. It never changes the subscription status;
// that happens when the processor reports back through webhooks.
func (s *Service) StartCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.TenantID == 0 || req.AdminUserID == 0 {
		return nil, fmt.Errorf("%w: tenant and user are required", ErrAuth)
	}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode != "" && mode != CheckoutModeSubscription {
		return nil, fmt.Errorf("%w: unsupported checkout mode %q", ErrConfig, req.Mode)
	}
	priceID := strings.TrimSpace(req.PriceID)
	tier, err := s.catalog.TierForCheckout(priceID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.SuccessURL) == "" || strings.TrimSpace(req.CancelURL) == "" {
		return nil, fmt.Errorf("%w: success and cancel urls are required", ErrConfig)
	}

	t, err := s.repo.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	customerRef, err := s.ensureCustomer(ctx, t, req.AdminEmail)
	if err != nil {
		return nil, err
	}

	trialDays := int64(TrialPeriodDays)
	if req.SkipTrial {
		trialDays = 0
	}

	session, err := s.processor.CreateCheckoutSession(ctx, CheckoutInput{
		CustomerRef: customerRef,
		PriceID:     priceID,
		TrialDays:   trialDays,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
		Metadata: map[string]string{
			metaTenantID:  strconv.FormatUint(uint64(t.ID), 10),
			metaAdminID:   strconv.FormatUint(uint64(req.AdminUserID), 10),
			metaTier:      tier,
			metaPriceID:   priceID,
			metaTrialDays: strconv.FormatInt(trialDays, 10),
		},
	})
	if err != nil {
		return nil, err
	}

	fiberlog.Infof("[Billing] checkout %s opened for tenant %d (tier=%s trial_days=%d)", session.ID, t.ID, tier, trialDays)
	return session, nil
}

func customerIdempotencyKey(tenantID uint) string {
	return "tenant-customer-" + strconv.FormatUint(uint64(tenantID), 10)
}

// ensureCustomer returns the tenant's processor customer, creating and linking
// one when absent. Concurrent callers for the same tenant share one creation in
// process, and the processor idempotency key covers callers on other instances.
func (s *Service) ensureCustomer(ctx context.Context, t *models.Tenant, email string) (string, error) {
	if t.HasCustomer() {
		return s.verifyCustomer(ctx, t)
	}

	key := customerIdempotencyKey(t.ID)
	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		fresh, err := s.repo.GetTenant(ctx, t.ID)
		if err != nil {
			return "", err
		}
		if fresh.HasCustomer() {
			return fresh.CustomerID(), nil
		}

		ref, err := s.processor.CreateCustomer(ctx, CustomerInput{
			TenantID:       t.ID,
			TenantUUID:     t.UUID,
			Name:           t.Name,
			Email:          strings.TrimSpace(email),
			IdempotencyKey: key,
		})
		if err != nil {
			return "", err
		}

		stored, err := s.repo.LinkCustomer(ctx, t.ID, ref, strings.TrimSpace(email))
		if err != nil {
			return "", err
		}
		if stored != ref {
			fiberlog.Warnf("[Billing] tenant %d already linked to customer %s, created %s unused", t.ID, stored, ref)
		}
		s.cache.Invalidate(ctx, t.ID)
		return stored, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Service) verifyCustomer(ctx context.Context, t *models.Tenant) (string, error) {
	ref := t.CustomerID()
	ok, err := s.processor.CustomerExists(ctx, ref)
	if err != nil {
		return "", err
	}
	if !ok {
		fiberlog.Errorf("[Billing] tenant %d customer %s no longer exists at the processor", t.ID, ref)
		return "", fmt.Errorf("%w: customer %s for tenant %d", ErrStaleCustomer, ref, t.ID)
	}
	return ref, nil
}
