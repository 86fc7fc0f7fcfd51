package billing

import (
	"context"
	"fmt"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/inspecto-app/inspecto/app/models"
)

// HandleWebhook verifies, records and applies one processor event. Replays of an
// event that was already applied successfully are no-ops; events that failed
// before are applied again. A returned error means the processor should retry.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	event, err := VerifyWebhook(payload, signatureHeader, s.webhookSecret)
	if err != nil {
		return nil, err
	}

	result := &WebhookResult{EventID: event.ID, EventType: string(event.Type)}
	record := &models.BillingWebhookEvent{
		EventID:     event.ID,
		EventType:   string(event.Type),
		PayloadJSON: string(payload),
	}
	if event.Created > 0 {
		created := time.Unix(event.Created, 0).UTC()
		record.EventCreatedAt = &created
	}

	_, stored, err := s.repo.CreateWebhookEventIfNotExists(ctx, record)
	if err != nil {
		return nil, err
	}
	if stored.ProcessedOK() {
		result.Duplicate = true
		return result, nil
	}

	var tenantID uint
	decoded, err := DecodeEvent(event)
	if err == nil {
		tenantID, result.Ignored, err = s.dispatch(ctx, decoded)
	}

	processingError := ""
	if err != nil {
		processingError = err.Error()
		fiberlog.Errorf("[Billing] webhook %s (%s) failed: %v", event.ID, event.Type, err)
	}
	if markErr := s.repo.MarkWebhookProcessed(ctx, stored.ID, processingError); markErr != nil {
		fiberlog.Errorf("[Billing] marking webhook %s processed: %v", event.ID, markErr)
		if err == nil {
			err = markErr
		}
	}
	if tenantID != 0 {
		s.tenantChanged(ctx, tenantID)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// dispatch applies a decoded event and returns the tenant it touched.
func (s *Service) dispatch(ctx context.Context, ev Event) (uint, bool, error) {
	switch e := ev.(type) {
	case CheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, e)
	case SubscriptionChanged:
		return s.applySubscriptionChanged(ctx, e)
	case InvoiceSettled:
		return s.applyInvoiceSettled(ctx, e)
	default:
		env := ev.envelope()
		fiberlog.Infof("[Billing] ignoring webhook %s of type %s", env.ID, env.Type)
		return 0, true, nil
	}
}

// eventTime is the processor timestamp of an event. Events without one are
// stamped on receipt.
func (s *Service) eventTime(env Envelope) time.Time {
	if env.OccurredAt.IsZero() {
		return s.now().UTC().Truncate(time.Second)
	}
	return env.OccurredAt
}

func (s *Service) resolveTier(prices []string, source string) string {
	tier, known := s.catalog.BestTier(prices)
	if !known {
		fiberlog.Warnf("[Billing] no mapped price among %v on %s, falling back to %s", prices, source, tier)
	}
	return tier
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, e CheckoutCompleted) (uint, bool, error) {
	t, err := s.repo.GetTenantByCustomerRef(ctx, e.CustomerRef)
	if err != nil {
		return 0, false, err
	}
	if hint := e.TenantHint(); hint != 0 && hint != t.ID {
		return 0, false, fmt.Errorf("%w: session %s names tenant %d but customer %s belongs to tenant %d",
			ErrAttribution, e.SessionID, hint, e.CustomerRef, t.ID)
	}

	at := s.eventTime(e.Envelope)
	tier := ""
	if price := e.Metadata[metaPriceID]; price != "" {
		tier = s.resolveTier([]string{price}, e.Type)
	} else if mt, ok := parseTier(e.Metadata[metaTier]); ok {
		tier = mt
	}

	if days := e.TrialDays(); days > 0 {
		end := at.AddDate(0, 0, days)
		started, err := s.repo.StartTrial(ctx, t.ID, tier, e.SubscriptionRef, at, end)
		if err != nil {
			return 0, false, err
		}
		if started {
			fiberlog.Infof("[Billing] tenant %d trial started, ends %s", t.ID, end.Format(time.RFC3339))
			s.sendNotice(ctx, t.ID, trialStartedNotice(end))
		}
	} else if e.SubscriptionRef != "" && e.PaymentStatus == "paid" {
		ref := e.SubscriptionRef
		if _, err := s.repo.ApplyBillingUpdate(ctx, t.ID, BillingUpdate{
			Status:                models.BillingStatusActive,
			Tier:                  tier,
			ActiveSubscriptionRef: &ref,
			OccurredAt:            at,
		}); err != nil {
			return 0, false, err
		}
	}

	// The order is written last so that its presence means the tenant update
	// above has landed.
	created, err := s.repo.UpsertOrder(ctx, &models.BillingOrder{
		TenantID:          t.ID,
		CheckoutSessionID: e.SessionID,
		PaymentIntentRef:  e.PaymentIntentRef,
		CustomerRef:       e.CustomerRef,
		SubscriptionRef:   e.SubscriptionRef,
		AmountTotal:       e.AmountTotal,
		Currency:          e.Currency,
		PaymentStatus:     e.PaymentStatus,
	})
	if err != nil {
		return 0, false, err
	}
	if !created {
		fiberlog.Infof("[Billing] order for session %s already recorded", e.SessionID)
	}
	return t.ID, false, nil
}

func (s *Service) applySubscriptionChanged(ctx context.Context, e SubscriptionChanged) (uint, bool, error) {
	t, err := s.repo.GetTenantByCustomerRef(ctx, e.CustomerRef)
	if err != nil {
		return 0, false, err
	}

	ref := e.SubscriptionRef
	u := BillingUpdate{
		Status:                e.Status,
		ActiveSubscriptionRef: &ref,
		CurrentPeriodEnd:      e.CurrentPeriodEnd,
		OccurredAt:            s.eventTime(e.Envelope),
	}
	if len(e.PriceRefs) > 0 {
		u.Tier = s.resolveTier(e.PriceRefs, e.Type)
	}

	if cur := t.SubscriptionID(); cur != "" && cur != ref && !replacesSubscription(t.SubscriptionStatus, e.Status) {
		fiberlog.Infof("[Billing] tenant %d: ignoring %s (%s) for %s, current subscription is %s (%s)",
			t.ID, e.Type, e.Status, ref, cur, t.SubscriptionStatus)
		return 0, true, nil
	}
	if models.IsTerminalBillingStatus(e.Status) {
		u.ClearSubscriptionRef = true
	}

	if e.Status == models.BillingStatusTrialing {
		u.TrialStartedAt, u.TrialEndsAt = trialWindow(t, e, u.OccurredAt)
	}

	applied, err := s.repo.ApplyBillingUpdate(ctx, t.ID, u)
	if err != nil {
		return 0, false, err
	}
	if !applied {
		fiberlog.Infof("[Billing] tenant %d: %s %s not applied, newer state or another subscription already stored", t.ID, e.Type, e.ID)
	} else if e.Status == models.BillingStatusCanceled && t.SubscriptionStatus != models.BillingStatusCanceled {
		s.sendNotice(ctx, t.ID, canceledNotice())
	}

	s.refreshPaymentMethod(ctx, t.ID, e.PaymentMethod)
	return t.ID, false, nil
}

// replacesSubscription reports whether an event for a subscription other than
// the tenant's current one may take its place. Only a live subscription can
// replace one that is no longer live.
func replacesSubscription(currentStatus, incomingStatus string) bool {
	return models.IsLiveBillingStatus(incomingStatus) && !models.IsLiveBillingStatus(currentStatus)
}

// trialWindow picks trial bounds for a trialing subscription: the payload's, else
// the tenant's existing ones, else a fresh window starting at the event time.
func trialWindow(t *models.Tenant, e SubscriptionChanged, at time.Time) (*time.Time, *time.Time) {
	start, end := e.TrialStart, e.TrialEnd
	if start == nil {
		start = t.TrialStartedAt
	}
	if end == nil {
		end = t.TrialEndsAt
	}
	if start == nil {
		st := at
		start = &st
	}
	if end == nil || !end.After(*start) {
		en := start.AddDate(0, 0, TrialPeriodDays)
		end = &en
	}
	return start, end
}

func (s *Service) applyInvoiceSettled(ctx context.Context, e InvoiceSettled) (uint, bool, error) {
	t, err := s.repo.GetTenantByCustomerRef(ctx, e.CustomerRef)
	if err != nil {
		return 0, false, err
	}
	if e.SubscriptionRef == "" {
		fiberlog.Infof("[Billing] invoice %s is not a subscription invoice, ignoring", e.InvoiceRef)
		return 0, true, nil
	}
	if cur := t.SubscriptionID(); cur != "" && cur != e.SubscriptionRef {
		fiberlog.Infof("[Billing] tenant %d: ignoring invoice %s for %s, current subscription is %s", t.ID, e.InvoiceRef, e.SubscriptionRef, cur)
		return 0, true, nil
	}

	if e.ZeroAmount() {
		// Trial-opening and fully discounted invoices say nothing about payment;
		// the subscription and checkout events carry the status.
		fiberlog.Infof("[Billing] tenant %d: zero-amount invoice %s (%s) leaves status %s", t.ID, e.InvoiceRef, e.BillingReason, t.SubscriptionStatus)
		s.refreshPaymentMethod(ctx, t.ID, e.PaymentMethod)
		return t.ID, false, nil
	}

	ref := e.SubscriptionRef
	u := BillingUpdate{
		Status:                models.BillingStatusPastDue,
		ActiveSubscriptionRef: &ref,
		OccurredAt:            s.eventTime(e.Envelope),
	}
	if e.Paid {
		u.Status = models.BillingStatusActive
		u.CurrentPeriodEnd = e.PeriodEnd
		if len(e.PriceRefs) > 0 {
			u.Tier = s.resolveTier(e.PriceRefs, e.Type)
		}
	}

	applied, err := s.repo.ApplyBillingUpdate(ctx, t.ID, u)
	if err != nil {
		return 0, false, err
	}
	if !applied {
		fiberlog.Infof("[Billing] tenant %d: %s %s not applied, newer state or another subscription already stored", t.ID, e.Type, e.ID)
	} else if !e.Paid && t.SubscriptionStatus != models.BillingStatusPastDue {
		s.sendNotice(ctx, t.ID, paymentFailedNotice())
	}

	if e.Paid {
		s.refreshPaymentMethod(ctx, t.ID, e.PaymentMethod)
	}
	return t.ID, false, nil
}

// refreshPaymentMethod updates the card snapshot. Failures are logged only; the
// snapshot never affects access.
func (s *Service) refreshPaymentMethod(ctx context.Context, tenantID uint, ref paymentMethodRef) {
	pm := ref.Card
	if pm == nil {
		if ref.ID == "" {
			return
		}
		fetched, err := s.processor.PaymentMethod(ctx, ref.ID)
		if err != nil {
			fiberlog.Warnf("[Billing] tenant %d: fetching payment method %s: %v", tenantID, ref.ID, err)
			return
		}
		pm = fetched
	}
	if pm == nil || pm.IsZero() {
		return
	}
	if err := s.repo.RefreshPaymentMethod(ctx, tenantID, *pm); err != nil {
		fiberlog.Warnf("[Billing] tenant %d: storing payment method: %v", tenantID, err)
	}
}
