package entitlements

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/inspecto-app/inspecto/app/models"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func tenantWith(status string, trialEnd *time.Time) *models.Tenant {
	ref := "cus_1"
	start := now.AddDate(0, 0, -3)
	return &models.Tenant{
		ID:                 1,
		CustomerRef:        &ref,
		SubscriptionStatus: status,
		Tier:               models.TierStarter,
		TrialStartedAt:     &start,
		TrialEndsAt:        trialEnd,
		PaymentMethod:      models.PaymentMethod{Brand: "visa", Last4: "4242"},
	}
}

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestTrialActiveAndExpiredPartitionTrialing(t *testing.T) {
	statuses := []string{
		models.BillingStatusNone, models.BillingStatusTrialing, models.BillingStatusActive,
		models.BillingStatusPastDue, models.BillingStatusCanceled, models.BillingStatusIncomplete,
	}
	ends := []*time.Time{nil, at(-time.Hour), at(0), at(time.Second), at(30 * 24 * time.Hour)}

	for _, status := range statuses {
		for _, end := range ends {
			a := Evaluate(tenantWith(status, end), now)
			assert.False(t, a.IsTrialActive && a.IsTrialExpired, "status=%s end=%v", status, end)
			assert.Equal(t, status == models.BillingStatusTrialing, a.IsTrialActive || a.IsTrialExpired, "status=%s end=%v", status, end)
		}
	}
}

func TestExpiredTrialRequiresPaymentRegardlessOfTier(t *testing.T) {
	for _, tier := range []string{models.TierStarter, models.TierProfessional, models.TierEnterprise} {
		tenant := tenantWith(models.BillingStatusTrialing, at(-time.Second))
		tenant.Tier = tier
		a := Evaluate(tenant, now)
		assert.True(t, a.IsTrialExpired, tier)
		assert.True(t, a.RequiresPayment, tier)
	}
}

func TestActiveSubscription(t *testing.T) {
	tenant := tenantWith(models.BillingStatusActive, nil)
	tenant.CurrentPeriodEnd = at(10 * 24 * time.Hour)

	a := Evaluate(tenant, now)
	assert.True(t, a.HasActiveSubscription)
	assert.False(t, a.RequiresPayment)
	assert.False(t, a.NeedsPaymentSetup)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		tenant *models.Tenant
		want   Access
	}{
		{
			name:   "none",
			tenant: tenantWith(models.BillingStatusNone, nil),
			want:   Access{},
		},
		{
			name:   "trial running",
			tenant: tenantWith(models.BillingStatusTrialing, at(48*time.Hour)),
			want:   Access{IsTrialActive: true, HasActiveSubscription: true},
		},
		{
			name:   "trial without end",
			tenant: tenantWith(models.BillingStatusTrialing, nil),
			want:   Access{IsTrialExpired: true, HasActiveSubscription: true, RequiresPayment: true},
		},
		{
			name:   "past due",
			tenant: tenantWith(models.BillingStatusPastDue, nil),
			want:   Access{RequiresPayment: true},
		},
		{
			name:   "canceled",
			tenant: tenantWith(models.BillingStatusCanceled, nil),
			want:   Access{RequiresPayment: true},
		},
		{
			name:   "incomplete",
			tenant: tenantWith(models.BillingStatusIncomplete, nil),
			want:   Access{RequiresPayment: true},
		},
		{
			name:   "nil tenant",
			tenant: nil,
			want:   Access{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.tenant, now))
		})
	}
}

func TestNeedsPaymentSetup(t *testing.T) {
	tenant := tenantWith(models.BillingStatusTrialing, at(48*time.Hour))
	tenant.PaymentMethod = models.PaymentMethod{}
	assert.True(t, Evaluate(tenant, now).NeedsPaymentSetup)

	tenant.CustomerRef = nil
	assert.False(t, Evaluate(tenant, now).NeedsPaymentSetup)

	active := tenantWith(models.BillingStatusActive, nil)
	active.PaymentMethod = models.PaymentMethod{}
	assert.False(t, Evaluate(active, now).NeedsPaymentSetup)
}

func TestTrialScenarioExpiresAfterFourteenDays(t *testing.T) {
	t0 := now
	end := t0.AddDate(0, 0, 14)
	tenant := tenantWith(models.BillingStatusTrialing, &end)

	assert.False(t, Evaluate(tenant, t0.AddDate(0, 0, 13)).RequiresPayment)
	assert.True(t, Evaluate(tenant, t0.AddDate(0, 0, 15)).RequiresPayment)
}

func TestLimitsFor(t *testing.T) {
	starter := LimitsFor(models.TierStarter)
	pro := LimitsFor("Professional")
	ent := LimitsFor(models.TierEnterprise)

	assert.Less(t, starter.Properties, pro.Properties)
	assert.Equal(t, -1, ent.Properties)
	assert.Equal(t, starter, LimitsFor("unknown"))
	assert.True(t, Allows(ent.InspectorSeats, 10_000))
	assert.False(t, Allows(starter.InspectorSeats, starter.InspectorSeats))
	assert.True(t, Allows(starter.InspectorSeats, starter.InspectorSeats-1))
}
