package entitlements

import (
	"slices"
	"strings"

	"github.com/inspecto-app/inspecto/app/models"
	"github.com/inspecto-app/inspecto/internal/pkg/constants"
)

// Navigation is one navigation attempt as seen by the gate.
type Navigation struct {
	Path          string
	Authenticated bool
	Role          string
	Status        string
	Access        Access
}

// Gate returns where the navigation should end up. redirect is false when the
// requested path is already the right place; evaluating the gate again on the
// returned path never redirects.
func Gate(n Navigation) (target string, redirect bool) {
	path := cleanPath(n.Path)
	to := func(dest string) (string, bool) {
		return dest, dest != path
	}

	if !n.Authenticated {
		return to(constants.LoginRoute)
	}

	// The checkout return page waits for the webhook itself.
	if path == constants.CheckoutSuccessRoute {
		return path, false
	}

	admin := n.Role == models.ROLE_ADMIN
	switch {
	case n.Access.NeedsPaymentSetup:
		return to(constants.PaymentSetupRoute)
	case n.Access.RequiresPayment:
		if admin {
			return to(constants.SubscriptionRequiredRoute)
		}
		return to(constants.AccessRestrictedRoute)
	case n.Status == models.BillingStatusNone || n.Status == "":
		if admin {
			return to(constants.StartTrialRoute)
		}
		return to(constants.AccessRestrictedRoute)
	}

	if path == constants.LoginRoute || IsBillingScreen(path) {
		return to(constants.DashboardRoute)
	}
	return path, false
}

// IsBillingScreen reports whether path is one of the billing resolution screens.
func IsBillingScreen(path string) bool {
	return slices.Contains(constants.BillingScreens, cleanPath(path))
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}
