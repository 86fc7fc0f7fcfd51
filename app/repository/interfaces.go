package repository

import (
	"github.com/inspecto-app/inspecto/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	ListByTenant(tenantID uint) ([]models.User, error)
	CountByTenant(tenantID uint) (int64, error)
	Update(user *models.User) error
	Delete(id uint) error
}

// TenantRepository covers tenant provisioning. Billing columns are written by
// the billing package only.
type TenantRepository interface {
	Provision(name string, owner *models.User) (*models.Tenant, error)
	GetByID(id uint) (*models.Tenant, error)
	Rename(id uint, name string) error
	AddMember(tenantID uint, member *models.User) error
}
