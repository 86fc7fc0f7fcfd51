package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspecto-app/inspecto/app/models"
)

type sentMail struct{ to, subject string }

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject})
	return m.err
}

func (m *recordingMailer) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.subject)
	}
	return out
}

func TestNoticesFollowAppliedTransitions(t *testing.T) {
	mailer := &recordingMailer{}
	h := newHarness(t, WithMailer(mailer))
	h.linkCustomer(t, "cus_1")

	obj := checkoutObject("cs_1", "cus_1", h.tenant.ID, 14)
	_, err := h.deliver(t, "evt_1", EventCheckoutCompleted, t0, obj)
	require.NoError(t, err)
	// A second event for the same session must not start the trial again.
	_, err = h.deliver(t, "evt_2", EventCheckoutCompleted, t0, obj)
	require.NoError(t, err)

	failed := map[string]interface{}{"id": "in_2", "customer": "cus_1", "subscription": "sub_1"}
	_, err = h.deliver(t, "evt_3", EventInvoicePaymentFailed, t0.AddDate(0, 0, 14), failed)
	require.NoError(t, err)
	_, err = h.deliver(t, "evt_4", EventInvoicePaymentFailed, t0.AddDate(0, 0, 15), failed)
	require.NoError(t, err)

	_, err = h.deliver(t, "evt_5", EventSubscriptionDeleted, t0.AddDate(0, 0, 20), subscriptionObject("sub_1", "cus_1", "canceled", "price_pro_m"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		trialStartedNotice(t0.AddDate(0, 0, 14)).subject,
		paymentFailedNotice().subject,
		canceledNotice().subject,
	}, mailer.subjects())
	assert.Equal(t, "owner@acme.test", mailer.sent[0].to)
}

func TestNoticeFailureDoesNotFailWebhook(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("relay down")}
	h := newHarness(t, WithMailer(mailer))
	h.linkCustomer(t, "cus_1")

	res, err := h.deliver(t, "evt_1", EventCheckoutCompleted, t0, checkoutObject("cs_1", "cus_1", h.tenant.ID, 14))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, models.BillingStatusTrialing, h.reload(t).SubscriptionStatus)
	assert.Len(t, mailer.subjects(), 1)
}

func TestStaleEventSendsNoNotice(t *testing.T) {
	mailer := &recordingMailer{}
	h := newHarness(t, WithMailer(mailer))
	h.linkCustomer(t, "cus_1")

	_, err := h.deliver(t, "evt_new", EventSubscriptionUpdated, t0.Add(time.Hour), subscriptionObject("sub_1", "cus_1", "active", "price_pro_m"))
	require.NoError(t, err)
	_, err = h.deliver(t, "evt_old", EventSubscriptionDeleted, t0, subscriptionObject("sub_1", "cus_1", "canceled", "price_pro_m"))
	require.NoError(t, err)

	assert.Empty(t, mailer.subjects())
}
