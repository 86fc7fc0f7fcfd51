package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/inspecto-app/inspecto/app/models"
	"github.com/inspecto-app/inspecto/internal/pkg/entitlements"
	"github.com/inspecto-app/inspecto/internal/pkg/metrics"
	"github.com/inspecto-app/inspecto/internal/pkg/usercontext"
)

// SnapshotSource returns the current billing record of a tenant.
type SnapshotSource interface {
	TenantSnapshot(ctx context.Context, tenantID uint) (*models.Tenant, error)
}

// BillingGate runs the route gate on every web navigation. The billing record is
// fetched per request; a failed fetch is treated as signed out.
func BillingGate(snapshots SnapshotSource, now func() time.Time) fiber.Handler {
	if now == nil {
		now = time.Now
	}
	return func(c *fiber.Ctx) error {
		uc := usercontext.GetUserContext(c)
		nav := entitlements.Navigation{
			Path:          c.Path(),
			Authenticated: uc.IsLoggedIn,
			Role:          uc.Role,
		}

		if uc.IsLoggedIn {
			tenant, err := snapshots.TenantSnapshot(c.UserContext(), uc.TenantID)
			if err != nil {
				fiberlog.Warnf("[Gate] billing snapshot for tenant %d: %v", uc.TenantID, err)
				nav.Authenticated = false
			} else {
				nav.Status = tenant.SubscriptionStatus
				nav.Access = entitlements.Evaluate(tenant, now())
				c.Locals(usercontext.AccessKey, nav.Access)
			}
		}

		target, redirect := entitlements.Gate(nav)
		if redirect {
			metrics.GateRedirectsTotal.WithLabelValues(target).Inc()
			return c.Redirect(target, fiber.StatusSeeOther)
		}
		return c.Next()
	}
}
