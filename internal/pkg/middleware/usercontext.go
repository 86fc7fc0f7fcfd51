package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/inspecto-app/inspecto/app/models"
	"github.com/inspecto-app/inspecto/internal/pkg/auth"
	"github.com/inspecto-app/inspecto/internal/pkg/usercontext"
)

// UserLookup resolves the user named by a verified token.
type UserLookup interface {
	GetByID(id uint) (*models.User, error)
}

// UserContextMiddleware sets up the user context for every request from a
// bearer token or the access_token cookie. Requests without a usable token are
// anonymous; rejecting them is left to RequireAuth and RequireAPIAuth.
func UserContextMiddleware(secret []byte, users UserLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		usercontext.Set(c, usercontext.UserContext{})

		token := extractToken(c)
		if token == "" {
			return c.Next()
		}
		claims, err := auth.ParseToken(secret, token)
		if err != nil {
			return c.Next()
		}

		user, err := users.GetByID(claims.UserID)
		if err != nil {
			fiberlog.Warnf("[Auth] token for unknown user %d: %v", claims.UserID, err)
			return c.Next()
		}
		// The stored row wins over token claims for tenant and role.
		if !user.IsActive() || user.TenantID != claims.TenantID {
			return c.Next()
		}

		usercontext.Set(c, usercontext.FromUser(user))
		return c.Next()
	}
}

func extractToken(c *fiber.Ctx) string {
	authz := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return strings.TrimSpace(c.Cookies(usercontext.TokenCookie))
}
