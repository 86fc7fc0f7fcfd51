package billing

import (
	"context"
	"fmt"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Mailer delivers billing notices to a tenant's billing contact.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// WithMailer enables billing notices. Without one no mail is sent.
func WithMailer(m Mailer) Option {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

type notice struct {
	subject string
	body    string
}

func trialStartedNotice(end time.Time) notice {
	return notice{
		subject: "Your Inspecto trial has started",
		body: fmt.Sprintf("Your free trial runs until %s.\n\nAdd a payment method before then to keep access for your inspectors.",
			end.UTC().Format("2 January 2006")),
	}
}

func paymentFailedNotice() notice {
	return notice{
		subject: "Payment failed for your Inspecto subscription",
		body:    "We could not collect the latest payment for your subscription.\n\nPlease update your payment method in the billing portal to avoid losing access.",
	}
}

func canceledNotice() notice {
	return notice{
		subject: "Your Inspecto subscription was canceled",
		body:    "Your subscription has ended. Inspection features stay locked until an admin subscribes again.",
	}
}

// sendNotice mails the tenant's billing contact. It never fails the caller;
// webhook processing must not depend on the mail relay.
func (s *Service) sendNotice(ctx context.Context, tenantID uint, n notice) {
	if s.mailer == nil {
		return
	}
	to, err := s.repo.BillingContact(ctx, tenantID)
	if err != nil {
		fiberlog.Warnf("[Billing] tenant %d: looking up billing contact: %v", tenantID, err)
		return
	}
	if to == "" {
		return
	}
	if err := s.mailer.Send(ctx, to, n.subject, n.body); err != nil {
		fiberlog.Warnf("[Billing] tenant %d: sending %q: %v", tenantID, n.subject, err)
	}
}
