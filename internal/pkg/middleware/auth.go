package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/inspecto-app/inspecto/internal/pkg/constants"
	icuser "github.com/inspecto-app/inspecto/internal/pkg/usercontext"
)

func loggedIn(c *fiber.Ctx) bool {
	b, ok := c.Locals(icuser.KeyFromProtected).(bool)
	return ok && b
}

// RequireAuth ensures a signed-in user on web routes; redirects to /login if missing.
func RequireAuth(c *fiber.Ctx) error {
	if !loggedIn(c) {
		return c.Redirect(constants.LoginRoute, fiber.StatusSeeOther)
	}
	return c.Next()
}

// RequireAdmin ensures the tenant admin on web routes; members go to the dashboard.
func RequireAdmin(c *fiber.Ctx) error {
	if !loggedIn(c) {
		return c.Redirect(constants.LoginRoute, fiber.StatusSeeOther)
	}
	if isAdmin, ok := c.Locals(icuser.KeyIsAdmin).(bool); !ok || !isAdmin {
		return c.Redirect(constants.DashboardRoute, fiber.StatusSeeOther)
	}
	return c.Next()
}

// RequireAPIAuth ensures a signed-in user for API routes and returns JSON 401
// instead of a redirect. Clients react to it with a sign-out.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !loggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "sign in again",
		})
	}
	return c.Next()
}

// RequireAPIAdmin ensures the tenant admin for API routes.
func RequireAPIAdmin(c *fiber.Ctx) error {
	if !loggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "sign in again",
		})
	}
	if isAdmin, ok := c.Locals(icuser.KeyIsAdmin).(bool); !ok || !isAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "only the account admin can manage billing",
		})
	}
	return c.Next()
}
