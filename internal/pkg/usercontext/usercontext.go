package usercontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/inspecto-app/inspecto/app/models"
)

// UserContext represents the complete user context for a request
type UserContext struct {
	UserID     uint   `json:"user_id"`
	TenantID   uint   `json:"tenant_id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
}

// FromUser builds the context of a signed-in user.
func FromUser(u *models.User) UserContext {
	return UserContext{
		UserID:     u.ID,
		TenantID:   u.TenantID,
		Username:   u.Name,
		Email:      u.Email,
		Role:       u.Role,
		IsLoggedIn: true,
		IsAdmin:    u.IsAdmin(),
	}
}

// Set stores the user context and the legacy per-field locals.
func Set(c *fiber.Ctx, uc UserContext) {
	c.Locals(ContextKey, uc)
	c.Locals(KeyFromProtected, uc.IsLoggedIn)
	c.Locals(KeyIsAdmin, uc.IsAdmin)
	if uc.IsLoggedIn {
		c.Locals(KeyUserID, uc.UserID)
		c.Locals(KeyTenantID, uc.TenantID)
		c.Locals(KeyRole, uc.Role)
	}
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(ContextKey).(UserContext); ok {
		return ctx
	}
	return UserContext{IsLoggedIn: false, IsAdmin: false}
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin checks if the current user is the tenant admin
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}

// GetTenantID returns the current user's tenant, or 0 if not logged in
func GetTenantID(c *fiber.Ctx) uint {
	return GetUserContext(c).TenantID
}
