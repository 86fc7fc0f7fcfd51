package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inspecto-app/inspecto/app/models"
	"github.com/inspecto-app/inspecto/internal/pkg/constants"
)

func TestGate(t *testing.T) {
	active := Access{HasActiveSubscription: true}
	setup := Access{IsTrialActive: true, HasActiveSubscription: true, NeedsPaymentSetup: true}
	owed := Access{RequiresPayment: true}

	tests := []struct {
		name     string
		nav      Navigation
		want     string
		redirect bool
	}{
		{
			name:     "anonymous goes to login",
			nav:      Navigation{Path: "/dashboard"},
			want:     constants.LoginRoute,
			redirect: true,
		},
		{
			name: "anonymous on login stays",
			nav:  Navigation{Path: "/login"},
			want: constants.LoginRoute,
		},
		{
			name: "active passes through",
			nav:  Navigation{Path: "/properties/12", Authenticated: true, Role: models.ROLE_MEMBER, Status: models.BillingStatusActive, Access: active},
			want: "/properties/12",
		},
		{
			name:     "payment setup",
			nav:      Navigation{Path: "/dashboard", Authenticated: true, Role: models.ROLE_ADMIN, Status: models.BillingStatusTrialing, Access: setup},
			want:     constants.PaymentSetupRoute,
			redirect: true,
		},
		{
			name: "payment setup already there",
			nav:  Navigation{Path: "/billing/payment-setup/", Authenticated: true, Role: models.ROLE_ADMIN, Status: models.BillingStatusTrialing, Access: setup},
			want: constants.PaymentSetupRoute,
		},
		{
			name:     "admin must pay",
			nav:      Navigation{Path: "/reports", Authenticated: true, Role: models.ROLE_ADMIN, Status: models.BillingStatusPastDue, Access: owed},
			want:     constants.SubscriptionRequiredRoute,
			redirect: true,
		},
		{
			name:     "member is restricted",
			nav:      Navigation{Path: "/reports", Authenticated: true, Role: models.ROLE_MEMBER, Status: models.BillingStatusCanceled, Access: owed},
			want:     constants.AccessRestrictedRoute,
			redirect: true,
		},
		{
			name:     "member cannot open admin billing screen",
			nav:      Navigation{Path: constants.SubscriptionRequiredRoute, Authenticated: true, Role: models.ROLE_MEMBER, Status: models.BillingStatusCanceled, Access: owed},
			want:     constants.AccessRestrictedRoute,
			redirect: true,
		},
		{
			name:     "new tenant admin starts trial",
			nav:      Navigation{Path: "/dashboard", Authenticated: true, Role: models.ROLE_ADMIN, Status: models.BillingStatusNone},
			want:     constants.StartTrialRoute,
			redirect: true,
		},
		{
			name:     "new tenant member restricted",
			nav:      Navigation{Path: "/dashboard", Authenticated: true, Role: models.ROLE_MEMBER, Status: models.BillingStatusNone},
			want:     constants.AccessRestrictedRoute,
			redirect: true,
		},
		{
			name:     "billing screen not needed",
			nav:      Navigation{Path: constants.SubscriptionRequiredRoute, Authenticated: true, Role: models.ROLE_ADMIN, Status: models.BillingStatusActive, Access: active},
			want:     constants.DashboardRoute,
			redirect: true,
		},
		{
			name: "checkout return page is always reachable",
			nav:  Navigation{Path: constants.CheckoutSuccessRoute + "?session_id=cs_1", Authenticated: true, Role: models.ROLE_ADMIN, Status: models.BillingStatusNone},
			want: constants.CheckoutSuccessRoute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, redirect := Gate(tt.nav)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.redirect, redirect)
		})
	}
}

func TestGateIsIdempotent(t *testing.T) {
	paths := []string{"/", "/login", "/dashboard", "/reports", constants.StartTrialRoute, constants.PaymentSetupRoute,
		constants.SubscriptionRequiredRoute, constants.AccessRestrictedRoute}
	roles := []string{models.ROLE_ADMIN, models.ROLE_MEMBER}
	states := []struct {
		status string
		access Access
	}{
		{models.BillingStatusNone, Access{}},
		{models.BillingStatusTrialing, Access{IsTrialActive: true, HasActiveSubscription: true}},
		{models.BillingStatusTrialing, Access{IsTrialActive: true, HasActiveSubscription: true, NeedsPaymentSetup: true}},
		{models.BillingStatusTrialing, Access{IsTrialExpired: true, HasActiveSubscription: true, RequiresPayment: true}},
		{models.BillingStatusActive, Access{HasActiveSubscription: true}},
		{models.BillingStatusPastDue, Access{RequiresPayment: true}},
	}

	for _, authenticated := range []bool{false, true} {
		for _, role := range roles {
			for _, st := range states {
				for _, p := range paths {
					nav := Navigation{Path: p, Authenticated: authenticated, Role: role, Status: st.status, Access: st.access}
					first, _ := Gate(nav)
					nav.Path = first
					second, redirect := Gate(nav)
					assert.Equal(t, first, second)
					assert.False(t, redirect, "gate not stable at %s (role=%s status=%s)", first, role, st.status)
				}
			}
		}
	}
}

func TestIsBillingScreen(t *testing.T) {
	assert.True(t, IsBillingScreen("/billing/start-trial"))
	assert.True(t, IsBillingScreen("/billing/access-restricted?x=1"))
	assert.False(t, IsBillingScreen("/billing/success"))
	assert.False(t, IsBillingScreen("/dashboard"))
}
