package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/inspecto-app/inspecto/app/models"
)

const (
	defaultCheckoutWait = 20 * time.Second
	historyOrderLimit   = 50
	historyInvoiceLimit = 20
)

// Service reconciles tenant billing state with the payment processor. It is
// safe for concurrent use; all coordination between requests goes through the
// repository's keyed writes.
type Service struct {
	repo          Repository
	processor     Processor
	catalog       *Catalog
	webhookSecret string
	cache         SnapshotCache
	notifier      Notifier
	mailer        Mailer
	checkoutWait  time.Duration
	now           func() time.Time

	flight singleflight.Group
}

// Option customises a Service.
type Option func(*Service)

// WithSnapshotCache sets the cache used by TenantSnapshot.
func WithSnapshotCache(c SnapshotCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithNotifier sets where billing change signals are published.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithCheckoutWait bounds WaitForCheckout.
func WithCheckoutWait(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.checkoutWait = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a billing service from an injected repository and processor.
func NewService(repo Repository, processor Processor, catalog *Catalog, webhookSecret string, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		processor:     processor,
		catalog:       catalog,
		webhookSecret: strings.TrimSpace(webhookSecret),
		cache:         nopSnapshotCache{},
		notifier:      NewLocalNotifier(),
		checkoutWait:  defaultCheckoutWait,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, processor Processor, catalog *Catalog, webhookSecret string, opts ...Option) *Service {
	return NewService(NewRepository(db), processor, catalog, webhookSecret, opts...)
}

// Catalog returns the price catalog shared by checkout and webhook handling.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// TenantSnapshot returns the tenant's billing record, served from the snapshot
// cache when possible.
func (s *Service) TenantSnapshot(ctx context.Context, tenantID uint) (*models.Tenant, error) {
	if tenantID == 0 {
		return nil, fmt.Errorf("%w: missing tenant", ErrAuth)
	}
	if t, ok := s.cache.Get(ctx, tenantID); ok {
		return t, nil
	}
	t, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, t)
	return t, nil
}

// OpenPortal opens a processor customer portal session for the tenant.
func (s *Service) OpenPortal(ctx context.Context, tenantID uint, returnURL string) (string, error) {
	t, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if !t.HasCustomer() {
		return "", fmt.Errorf("%w: tenant %d has no billing customer yet", ErrConfig, tenantID)
	}
	if strings.TrimSpace(returnURL) == "" {
		return "", fmt.Errorf("%w: return url is required", ErrConfig)
	}
	return s.processor.CreatePortalSession(ctx, t.CustomerID(), returnURL)
}

// History returns local orders, newest first, and the processor's invoices.
// A processor failure yields the local orders with Partial set.
func (s *Service) History(ctx context.Context, tenantID uint) (*History, error) {
	t, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	orders, err := s.repo.ListOrders(ctx, tenantID, historyOrderLimit)
	if err != nil {
		return nil, err
	}

	h := &History{Orders: orders, Invoices: []Invoice{}}
	if h.Orders == nil {
		h.Orders = []models.BillingOrder{}
	}
	if !t.HasCustomer() {
		return h, nil
	}

	invoices, err := s.processor.ListInvoices(ctx, t.CustomerID(), historyInvoiceLimit)
	if err != nil {
		fiberlog.Warnf("[Billing] listing invoices for tenant %d: %v", tenantID, err)
		h.Partial = true
		return h, nil
	}
	if invoices != nil {
		h.Invoices = invoices
	}
	return h, nil
}

// tenantChanged drops the cached snapshot and tells waiters to re-read.
func (s *Service) tenantChanged(ctx context.Context, tenantID uint) {
	s.cache.Invalidate(ctx, tenantID)
	if err := s.notifier.Publish(ctx, tenantID); err != nil {
		fiberlog.Warnf("[Billing] publishing change for tenant %d: %v", tenantID, err)
	}
}
