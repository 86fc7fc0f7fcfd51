package repository

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inspecto-app/inspecto/app/models"
	"github.com/inspecto-app/inspecto/internal/pkg/entitlements"
)

// ErrSeatLimitReached is returned by AddMember when the tier has no seat left.
var ErrSeatLimitReached = errors.New("seat limit reached")

type tenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

// Provision creates a tenant in billing status none together with its owner,
// who becomes the tenant admin.
func (r *tenantRepository) Provision(name string, owner *models.User) (*models.Tenant, error) {
	tenant := &models.Tenant{Name: strings.TrimSpace(name)}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tenant).Error; err != nil {
			return err
		}
		owner.TenantID = tenant.ID
		owner.Role = models.ROLE_ADMIN
		if owner.Status == "" {
			owner.Status = models.STATUS_ACTIVE
		}
		if err := owner.Validate(); err != nil {
			return err
		}
		if err := tx.Create(owner).Error; err != nil {
			return err
		}
		tenant.OwnerUserID = owner.ID
		return tx.Model(tenant).Update("owner_user_id", owner.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

func (r *tenantRepository) GetByID(id uint) (*models.Tenant, error) {
	var t models.Tenant
	if err := r.db.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tenantRepository) Rename(id uint, name string) error {
	return r.db.Model(&models.Tenant{}).Where("id = ?", id).Update("name", strings.TrimSpace(name)).Error
}

// AddMember inserts member into the tenant while its tier has an inspector seat
// left. The tenant row is locked for the count and the insert, so concurrent
// adds cannot overrun the limit.
func (r *tenantRepository) AddMember(tenantID uint, member *models.User) error {
	member.TenantID = tenantID
	if err := member.Validate(); err != nil {
		return err
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		var t models.Tenant
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&t, tenantID).Error; err != nil {
			return err
		}
		var used int64
		err := tx.Model(&models.User{}).
			Where("tenant_id = ? AND status = ?", tenantID, models.STATUS_ACTIVE).
			Count(&used).Error
		if err != nil {
			return err
		}
		limit := entitlements.LimitsFor(t.Tier).InspectorSeats
		if !entitlements.Allows(limit, int(used)) {
			return fmt.Errorf("%w: %s allows %d", ErrSeatLimitReached, t.Tier, limit)
		}
		return tx.Create(member).Error
	})
}
