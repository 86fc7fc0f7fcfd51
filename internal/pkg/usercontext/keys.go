package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	ContextKey       = "USER_CONTEXT"
	AccessKey        = "BILLING_ACCESS"
	KeyUserID        = "user_id"
	KeyTenantID      = "tenant_id"
	KeyRole          = "role"
	KeyIsAdmin       = "isAdmin"
	KeyFromProtected = "from_protected"
	TokenCookie      = "access_token"
)
