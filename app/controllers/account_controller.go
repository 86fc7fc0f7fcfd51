package controllers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/inspecto-app/inspecto/app/models"
	"github.com/inspecto-app/inspecto/app/repository"
	"github.com/inspecto-app/inspecto/internal/pkg/auth"
	"github.com/inspecto-app/inspecto/internal/pkg/entitlements"
	"github.com/inspecto-app/inspecto/internal/pkg/usercontext"
)

// AccountController serves tenant signup and member management.
type AccountController struct {
	users    repository.UserRepository
	tenants  repository.TenantRepository
	secret   []byte
	tokenTTL time.Duration
	validate *validator.Validate
}

// NewAccountController creates the controller from the repository bundle.
func NewAccountController(repos *repository.Repositories, secret []byte, tokenTTL time.Duration) *AccountController {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AccountController{
		users:    repos.User,
		tenants:  repos.Tenant,
		secret:   secret,
		tokenTTL: tokenTTL,
		validate: validator.New(),
	}
}

type signupRequest struct {
	Company string `json:"company" validate:"required,min=2,max=200"`
	Name    string `json:"name" validate:"required,min=2,max=150"`
	Email   string `json:"email" validate:"required,email,max=200"`
}

type memberRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=150"`
	Email string `json:"email" validate:"required,email,max=200"`
	Role  string `json:"role" validate:"omitempty,oneof=member admin"`
}

// HandleSignup provisions a tenant in billing status none with the caller as
// its admin and returns an access token.
// POST /api/v1/signup
func (ac *AccountController) HandleSignup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	if err := ac.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if _, err := ac.users.GetByEmail(req.Email); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "email already registered"})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	owner := &models.User{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
	}
	tenant, err := ac.tenants.Provision(req.Company, owner)
	if err != nil {
		fiberlog.Errorf("[Account] provisioning tenant %q: %v", req.Company, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create account"})
	}

	token, err := auth.IssueToken(ac.secret, owner.ID, tenant.ID, owner.Role, ac.tokenTTL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to issue token"})
	}
	fiberlog.Infof("[Account] tenant %d provisioned for user %d", tenant.ID, owner.ID)

	c.Cookie(&fiber.Cookie{
		Name:     usercontext.TokenCookie,
		Value:    token,
		Expires:  time.Now().Add(ac.tokenTTL),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"tenant_id":    tenant.ID,
		"tenant_uuid":  tenant.UUID,
		"user_id":      owner.ID,
		"access_token": token,
	})
}

// HandleGetAccount returns the caller, the tenant and seat usage.
// GET /api/v1/account
func (ac *AccountController) HandleGetAccount(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	account, err := ac.users.GetByID(uc.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}
	tenant, err := ac.tenants.GetByID(uc.TenantID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load account"})
	}
	seats, err := ac.users.CountByTenant(uc.TenantID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count members"})
	}
	limits := entitlements.LimitsFor(tenant.Tier)

	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"id":         account.ID,
			"name":       account.Name,
			"email":      account.Email,
			"role":       account.Role,
			"is_admin":   account.IsAdmin(),
			"created_at": account.CreatedAt.UTC().Format(time.RFC3339),
		},
		"tenant": fiber.Map{
			"id":   tenant.ID,
			"uuid": tenant.UUID,
			"name": tenant.Name,
			"tier": tenant.Tier,
		},
		"seats": fiber.Map{
			"used":  seats,
			"limit": limits.InspectorSeats,
		},
	})
}

type accountUpdateRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=2,max=150"`
	Company *string `json:"company" validate:"omitempty,min=2,max=200"`
}

// HandleUpdateAccount changes the caller's display name and, for admins, the
// company name.
// PATCH /api/v1/account
func (ac *AccountController) HandleUpdateAccount(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	var req accountUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	if err := ac.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if req.Company != nil && !uc.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "only the account admin can rename the company"})
	}

	if req.Name != nil {
		account, err := ac.users.GetByID(uc.UserID)
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		account.Name = strings.TrimSpace(*req.Name)
		if err := ac.users.Update(account); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
		}
	}
	if req.Company != nil {
		if err := ac.tenants.Rename(uc.TenantID, *req.Company); err != nil {
			fiberlog.Errorf("[Account] renaming tenant %d: %v", uc.TenantID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to rename company"})
		}
	}
	return ac.HandleGetAccount(c)
}

// HandleListMembers lists the users of the caller's tenant.
// GET /api/v1/account/members
func (ac *AccountController) HandleListMembers(c *fiber.Ctx) error {
	members, err := ac.users.ListByTenant(usercontext.GetTenantID(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load members"})
	}
	if members == nil {
		members = []models.User{}
	}
	return c.JSON(fiber.Map{"members": members})
}

// HandleAddMember adds an inspector to the tenant while the tier has seats left.
// POST /api/v1/account/members
func (ac *AccountController) HandleAddMember(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	var req memberRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	if err := ac.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	if _, err := ac.users.GetByEmail(req.Email); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "email already registered"})
	}

	member, err := models.NewUser(uc.TenantID, req.Name, req.Email, req.Role)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := ac.tenants.AddMember(uc.TenantID, member); err != nil {
		if errors.Is(err, repository.ErrSeatLimitReached) {
			tier := models.TierStarter
			if tenant, terr := ac.tenants.GetByID(uc.TenantID); terr == nil {
				tier = tenant.Tier
			}
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":   "seat_limit_reached",
				"message": "all inspector seats of the " + tier + " plan are in use",
				"limit":   entitlements.LimitsFor(tier).InspectorSeats,
			})
		}
		fiberlog.Errorf("[Account] adding member to tenant %d: %v", uc.TenantID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to add member"})
	}
	return c.Status(fiber.StatusCreated).JSON(member)
}

// HandleRemoveMember removes a user from the caller's tenant. Admins cannot
// remove themselves.
// DELETE /api/v1/account/members/:id
func (ac *AccountController) HandleRemoveMember(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid member id"})
	}
	if uint(id) == uc.UserID {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "you cannot remove yourself"})
	}

	member, err := ac.users.GetByID(uint(id))
	if err != nil || member.TenantID != uc.TenantID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "member not found"})
	}
	if err := ac.users.Delete(member.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to remove member"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
