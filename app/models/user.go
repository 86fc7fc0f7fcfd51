package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ROLE_MEMBER     = "member"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_DISABLED = "disabled"
)

// User belongs to exactly one tenant. Credentials live with the hosted identity
// provider; this row only carries what billing and access decisions need.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	TenantID  uint           `gorm:"not null;index" json:"tenant_id" validate:"required"`
	Name      string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=2,max=150"`
	Email     string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Role      string         `gorm:"type:varchar(50);default:'member'" json:"role" validate:"oneof=member admin"`
	Status    string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active disabled"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// NewUser builds a validated user for a tenant.
func NewUser(tenantID uint, name, email, role string) (*User, error) {
	u := &User{
		TenantID: tenantID,
		Name:     strings.TrimSpace(name),
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Role:     role,
		Status:   STATUS_ACTIVE,
	}
	if u.Role == "" {
		u.Role = ROLE_MEMBER
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

// IsAdmin reports whether the user administers billing for the tenant.
func (u *User) IsAdmin() bool {
	return u.Role == ROLE_ADMIN
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}
