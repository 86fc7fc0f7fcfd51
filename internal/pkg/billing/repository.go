package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inspecto-app/inspecto/app/models"
)

// Repository provides the DB operations used by the billing service. Every
// write is keyed on a natural identifier so that repeated calls converge.
type Repository interface {
	GetTenant(ctx context.Context, tenantID uint) (*models.Tenant, error)
	GetTenantByCustomerRef(ctx context.Context, customerRef string) (*models.Tenant, error)
	LinkCustomer(ctx context.Context, tenantID uint, customerRef, email string) (string, error)
	BillingContact(ctx context.Context, tenantID uint) (string, error)
	ApplyBillingUpdate(ctx context.Context, tenantID uint, u BillingUpdate) (bool, error)
	StartTrial(ctx context.Context, tenantID uint, tier, subscriptionRef string, start, end time.Time) (bool, error)
	RefreshPaymentMethod(ctx context.Context, tenantID uint, pm models.PaymentMethod) error
	UpsertOrder(ctx context.Context, order *models.BillingOrder) (bool, error)
	FindOrderBySession(ctx context.Context, tenantID uint, sessionID string) (*models.BillingOrder, error)
	ListOrders(ctx context.Context, tenantID uint, limit int) ([]models.BillingOrder, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetTenant(ctx context.Context, tenantID uint) (*models.Tenant, error) {
	var t models.Tenant
	if err := r.db.WithContext(ctx).First(&t, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrTenantNotFound, tenantID)
		}
		return nil, err
	}
	return &t, nil
}

// GetTenantByCustomerRef attributes a processor customer to a tenant through the
// local mirror table.
func (r *gormRepository) GetTenantByCustomerRef(ctx context.Context, customerRef string) (*models.Tenant, error) {
	var mirror models.BillingCustomer
	err := r.db.WithContext(ctx).Where("customer_ref = ?", customerRef).First(&mirror).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no mirror for customer %s", ErrAttribution, customerRef)
		}
		return nil, err
	}

	t, err := r.GetTenant(ctx, mirror.TenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, fmt.Errorf("%w: customer %s points at missing tenant %d", ErrAttribution, customerRef, mirror.TenantID)
		}
		return nil, err
	}
	return t, nil
}

// BillingContact returns the email stored with the tenant's customer mirror, or
// "" when the tenant has none.
func (r *gormRepository) BillingContact(ctx context.Context, tenantID uint) (string, error) {
	var mirror models.BillingCustomer
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&mirror).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return mirror.Email, nil
}

// LinkCustomer records customerRef for the tenant unless one is already linked,
// and returns the ref that is stored afterwards. The mirror row and the tenant
// column are written in one transaction; the unique tenant_id key makes a losing
// concurrent caller keep the winner's ref.
func (r *gormRepository) LinkCustomer(ctx context.Context, tenantID uint, customerRef, email string) (string, error) {
	var stored models.BillingCustomer
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		mirror := &models.BillingCustomer{
			TenantID:    tenantID,
			CustomerRef: customerRef,
			Email:       email,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(mirror).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", tenantID).First(&stored).Error; err != nil {
			return err
		}
		return tx.Model(&models.Tenant{}).
			Where("id = ? AND (customer_ref IS NULL OR customer_ref = '')", tenantID).
			Update("customer_ref", stored.CustomerRef).Error
	})
	if err != nil {
		return "", err
	}
	return stored.CustomerRef, nil
}

// ApplyBillingUpdate writes a status-bearing update unless the tenant already
// holds state from a newer event. An update naming a subscription other than
// the tenant's current one applies only when it is live (active or trialing) and
// the current one is not. It reports whether the row was written.
func (r *gormRepository) ApplyBillingUpdate(ctx context.Context, tenantID uint, u BillingUpdate) (bool, error) {
	occurred := u.OccurredAt.UTC()
	updates := map[string]interface{}{
		"subscription_status": u.Status,
		"status_event_at":     occurred,
	}
	if u.Tier != "" {
		updates["tier"] = u.Tier
	}
	if u.ClearSubscriptionRef {
		updates["active_subscription_ref"] = nil
	} else if u.ActiveSubscriptionRef != nil {
		updates["active_subscription_ref"] = *u.ActiveSubscriptionRef
	}
	if u.CurrentPeriodEnd != nil {
		updates["current_period_end"] = u.CurrentPeriodEnd.UTC()
	}
	if u.TrialStartedAt != nil {
		updates["trial_started_at"] = u.TrialStartedAt.UTC()
	}
	if u.TrialEndsAt != nil {
		updates["trial_ends_at"] = u.TrialEndsAt.UTC()
	}

	q := r.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Where("status_event_at IS NULL OR status_event_at <= ?", occurred)
	if u.ActiveSubscriptionRef != nil {
		ref := *u.ActiveSubscriptionRef
		if models.IsLiveBillingStatus(u.Status) {
			q = q.Where("active_subscription_ref IS NULL OR active_subscription_ref = ? OR subscription_status NOT IN ?",
				ref, []string{models.BillingStatusActive, models.BillingStatusTrialing})
		} else {
			q = q.Where("active_subscription_ref IS NULL OR active_subscription_ref = ?", ref)
		}
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// StartTrial moves a tenant from none to trialing. Any other current status
// leaves the row untouched.
func (r *gormRepository) StartTrial(ctx context.Context, tenantID uint, tier, subscriptionRef string, start, end time.Time) (bool, error) {
	updates := map[string]interface{}{
		"subscription_status": models.BillingStatusTrialing,
		"trial_started_at":    start.UTC(),
		"trial_ends_at":       end.UTC(),
		"status_event_at":     start.UTC(),
	}
	if tier != "" {
		updates["tier"] = tier
	}
	if subscriptionRef != "" {
		updates["active_subscription_ref"] = subscriptionRef
	}

	res := r.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND subscription_status = ?", tenantID, models.BillingStatusNone).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) RefreshPaymentMethod(ctx context.Context, tenantID uint, pm models.PaymentMethod) error {
	return r.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]interface{}{
			"payment_method_brand": pm.Brand,
			"payment_method_last4": pm.Last4,
		}).Error
}

// UpsertOrder inserts the order for a checkout session once. A re-delivered
// session keeps the stored row; created reports whether this call inserted it.
func (r *gormRepository) UpsertOrder(ctx context.Context, order *models.BillingOrder) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "checkout_session_id"}},
		DoNothing: true,
	}).Create(order)
	if tx.Error != nil {
		return false, tx.Error
	}
	created := tx.RowsAffected > 0

	if err := r.db.WithContext(ctx).Where("checkout_session_id = ?", order.CheckoutSessionID).
		First(order).Error; err != nil {
		return false, err
	}
	return created, nil
}

func (r *gormRepository) FindOrderBySession(ctx context.Context, tenantID uint, sessionID string) (*models.BillingOrder, error) {
	var o models.BillingOrder
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND checkout_session_id = ?", tenantID, sessionID).
		First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *gormRepository) ListOrders(ctx context.Context, tenantID uint, limit int) ([]models.BillingOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	var orders []models.BillingOrder
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.WithContext(ctx).Where("event_id = ?", event.EventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
