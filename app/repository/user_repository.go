package repository

import (
	"strings"

	"gorm.io/gorm"

	"github.com/inspecto-app/inspecto/app/models"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListByTenant(tenantID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&users).Error
	return users, err
}

// CountByTenant counts active users, which is what inspector seat limits apply to.
func (r *userRepository) CountByTenant(tenantID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.User{}).
		Where("tenant_id = ? AND status = ?", tenantID, models.STATUS_ACTIVE).
		Count(&n).Error
	return n, err
}

func (r *userRepository) Update(user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	return r.db.Save(user).Error
}

// Delete soft-deletes a user
func (r *userRepository) Delete(id uint) error {
	return r.db.Delete(&models.User{}, id).Error
}
