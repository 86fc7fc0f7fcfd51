package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// WaitForCheckout blocks until the webhook for the given checkout session has
// been applied to the tenant, or until timeout (the service default when <= 0)
// elapses. It reports whether the checkout settled; running out of time is not
// an error.
func (s *Service) WaitForCheckout(ctx context.Context, tenantID uint, sessionID string, timeout time.Duration) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, nil
	}
	if timeout <= 0 {
		timeout = s.checkoutWait
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Subscribe before the first check so a change landing in between is seen.
	changes, unsubscribe, err := s.notifier.Subscribe(waitCtx, tenantID)
	if err != nil {
		return false, err
	}
	defer unsubscribe()

	for {
		settled, err := s.checkoutSettled(waitCtx, tenantID, sessionID)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return false, nil
			}
			return false, err
		}
		if settled {
			return true, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil
		case <-changes:
		}
	}
}

func (s *Service) checkoutSettled(ctx context.Context, tenantID uint, sessionID string) (bool, error) {
	if _, err := s.repo.FindOrderBySession(ctx, tenantID, sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
