package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/inspecto-app/inspecto/app/models"
)

// Metadata keys written on checkout sessions and read back from webhook events.
const (
	metaTenantID  = "tenant_id"
	metaAdminID   = "admin_id"
	metaTier      = "tier"
	metaPriceID   = "price_id"
	metaTrialDays = "trial_days"
)

// Processor event types the service acts on.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventSubscriptionCreated   = "customer.subscription.created"
	EventSubscriptionUpdated   = "customer.subscription.updated"
	EventSubscriptionDeleted   = "customer.subscription.deleted"
	EventInvoicePaid           = "invoice.paid"
	EventInvoicePaymentSucceed = "invoice.payment_succeeded"
	EventInvoicePaymentFailed  = "invoice.payment_failed"
)

// Envelope carries the fields every event kind shares.
type Envelope struct {
	ID         string
	Type       string
	OccurredAt time.Time
}

// Event is one of CheckoutCompleted, SubscriptionChanged, InvoiceSettled or
// Unhandled.
type Event interface {
	envelope() Envelope
}

func (e Envelope) envelope() Envelope { return e }

// CheckoutCompleted is a finished hosted checkout.
type CheckoutCompleted struct {
	Envelope
	SessionID        string
	CustomerRef      string
	SubscriptionRef  string
	PaymentIntentRef string
	AmountTotal      int64
	Currency         string
	PaymentStatus    string
	Metadata         map[string]string
}

// TenantHint returns the tenant id written into the session metadata, or 0.
func (e CheckoutCompleted) TenantHint() uint {
	id, err := strconv.ParseUint(strings.TrimSpace(e.Metadata[metaTenantID]), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// TrialDays returns the trial length requested when the checkout was opened.
func (e CheckoutCompleted) TrialDays() int {
	n, err := strconv.Atoi(strings.TrimSpace(e.Metadata[metaTrialDays]))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SubscriptionChanged covers subscription created, updated and deleted events.
type SubscriptionChanged struct {
	Envelope
	SubscriptionRef  string
	CustomerRef      string
	Status           string
	PriceRefs        []string
	CurrentPeriodEnd *time.Time
	TrialStart       *time.Time
	TrialEnd         *time.Time
	PaymentMethod    paymentMethodRef
}

// InvoiceSettled covers invoice payment success and failure.
type InvoiceSettled struct {
	Envelope
	Paid            bool
	InvoiceRef      string
	CustomerRef     string
	SubscriptionRef string
	PriceRefs       []string
	PeriodEnd       *time.Time
	PaymentMethod   paymentMethodRef
	// AmountPaid is nil when the payload omits amount_paid.
	AmountPaid      *int64
	BillingReason   string
}

// ZeroAmount reports a paid invoice that collected nothing, such as the
// subscription_create invoice that opens a trial.
func (e InvoiceSettled) ZeroAmount() bool {
	return e.Paid && e.AmountPaid != nil && *e.AmountPaid == 0
}

// Unhandled is any event kind the service does not act on.
type Unhandled struct {
	Envelope
}

// DecodeEvent turns a verified processor event into its typed variant and
// checks the fields that variant requires.
func DecodeEvent(ev stripe.Event) (Event, error) {
	env := Envelope{
		ID:         strings.TrimSpace(ev.ID),
		Type:       string(ev.Type),
		OccurredAt: time.Unix(ev.Created, 0).UTC(),
	}
	if ev.Created == 0 {
		env.OccurredAt = time.Time{}
	}

	var raw json.RawMessage
	if ev.Data != nil {
		raw = ev.Data.Raw
	}

	switch env.Type {
	case EventCheckoutCompleted:
		return decodeCheckout(env, raw)
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return decodeSubscription(env, raw)
	case EventInvoicePaid, EventInvoicePaymentSucceed, EventInvoicePaymentFailed:
		return decodeInvoice(env, raw)
	default:
		return Unhandled{Envelope: env}, nil
	}
}

type rawCheckoutSession struct {
	ID            string            `json:"id"`
	Mode          string            `json:"mode"`
	Customer      expandableID      `json:"customer"`
	Subscription  expandableID      `json:"subscription"`
	PaymentIntent expandableID      `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

func decodeCheckout(env Envelope, raw json.RawMessage) (Event, error) {
	var s rawCheckoutSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, env.Type, err)
	}
	out := CheckoutCompleted{
		Envelope:         env,
		SessionID:        strings.TrimSpace(s.ID),
		CustomerRef:      s.Customer.ID,
		SubscriptionRef:  s.Subscription.ID,
		PaymentIntentRef: s.PaymentIntent.ID,
		AmountTotal:      s.AmountTotal,
		Currency:         strings.ToLower(strings.TrimSpace(s.Currency)),
		PaymentStatus:    strings.TrimSpace(s.PaymentStatus),
		Metadata:         s.Metadata,
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	if out.SessionID == "" {
		return nil, fmt.Errorf("%w: %s: missing session id", ErrDecode, env.Type)
	}
	if out.CustomerRef == "" {
		return nil, fmt.Errorf("%w: %s: missing customer", ErrDecode, env.Type)
	}
	return out, nil
}

type rawSubscription struct {
	ID                   string           `json:"id"`
	Customer             expandableID     `json:"customer"`
	Status               string           `json:"status"`
	CurrentPeriodEnd     int64            `json:"current_period_end"`
	TrialStart           int64            `json:"trial_start"`
	TrialEnd             int64            `json:"trial_end"`
	DefaultPaymentMethod paymentMethodRef `json:"default_payment_method"`
	Items                struct {
		Data []struct {
			Price            expandableID `json:"price"`
			CurrentPeriodEnd int64        `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func decodeSubscription(env Envelope, raw json.RawMessage) (Event, error) {
	var s rawSubscription
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, env.Type, err)
	}
	out := SubscriptionChanged{
		Envelope:        env,
		SubscriptionRef: strings.TrimSpace(s.ID),
		CustomerRef:     s.Customer.ID,
		Status:          normalizeStatus(s.Status),
		TrialStart:      unixPtr(s.TrialStart),
		TrialEnd:        unixPtr(s.TrialEnd),
		PaymentMethod:   s.DefaultPaymentMethod,
	}
	if env.Type == EventSubscriptionDeleted {
		out.Status = models.BillingStatusCanceled
	}

	periodEnd := s.CurrentPeriodEnd
	for _, item := range s.Items.Data {
		if item.Price.ID != "" {
			out.PriceRefs = append(out.PriceRefs, item.Price.ID)
		}
		// Newer API versions carry the period on the items.
		if item.CurrentPeriodEnd > periodEnd {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	out.CurrentPeriodEnd = unixPtr(periodEnd)

	if out.SubscriptionRef == "" {
		return nil, fmt.Errorf("%w: %s: missing subscription id", ErrDecode, env.Type)
	}
	if out.CustomerRef == "" {
		return nil, fmt.Errorf("%w: %s: missing customer", ErrDecode, env.Type)
	}
	if strings.TrimSpace(s.Status) == "" && env.Type != EventSubscriptionDeleted {
		return nil, fmt.Errorf("%w: %s: missing status", ErrDecode, env.Type)
	}
	return out, nil
}

type rawInvoice struct {
	ID                   string           `json:"id"`
	Customer             expandableID     `json:"customer"`
	Subscription         expandableID     `json:"subscription"`
	DefaultPaymentMethod paymentMethodRef `json:"default_payment_method"`
	AmountPaid           *int64           `json:"amount_paid"`
	BillingReason        string           `json:"billing_reason"`
	Parent               struct {
		SubscriptionDetails struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Price   expandableID `json:"price"`
			Pricing struct {
				PriceDetails struct {
					Price expandableID `json:"price"`
				} `json:"price_details"`
			} `json:"pricing"`
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func decodeInvoice(env Envelope, raw json.RawMessage) (Event, error) {
	var inv rawInvoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, env.Type, err)
	}
	out := InvoiceSettled{
		Envelope:        env,
		Paid:            env.Type != EventInvoicePaymentFailed,
		InvoiceRef:      strings.TrimSpace(inv.ID),
		CustomerRef:     inv.Customer.ID,
		SubscriptionRef: inv.Subscription.ID,
		PaymentMethod:   inv.DefaultPaymentMethod,
		AmountPaid:      inv.AmountPaid,
		BillingReason:   strings.TrimSpace(inv.BillingReason),
	}
	if out.SubscriptionRef == "" {
		out.SubscriptionRef = inv.Parent.SubscriptionDetails.Subscription.ID
	}

	var periodEnd int64
	for _, line := range inv.Lines.Data {
		price := line.Price.ID
		if price == "" {
			price = line.Pricing.PriceDetails.Price.ID
		}
		if price != "" {
			out.PriceRefs = append(out.PriceRefs, price)
		}
		if line.Period.End > periodEnd {
			periodEnd = line.Period.End
		}
	}
	out.PeriodEnd = unixPtr(periodEnd)

	if out.InvoiceRef == "" {
		return nil, fmt.Errorf("%w: %s: missing invoice id", ErrDecode, env.Type)
	}
	if out.CustomerRef == "" {
		return nil, fmt.Errorf("%w: %s: missing customer", ErrDecode, env.Type)
	}
	return out, nil
}

// expandableID decodes a processor reference that is either an id string or an
// expanded object with an "id" field.
type expandableID struct {
	ID string
}

func (e *expandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		e.ID = strings.TrimSpace(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	e.ID = strings.TrimSpace(obj.ID)
	return nil
}

// paymentMethodRef is a payment method id, optionally with card details when the
// payload carries the expanded object.
type paymentMethodRef struct {
	ID   string
	Card *models.PaymentMethod
}

func (p *paymentMethodRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		p.ID = strings.TrimSpace(s)
		return nil
	}
	var obj struct {
		ID   string `json:"id"`
		Card *struct {
			Brand string `json:"brand"`
			Last4 string `json:"last4"`
		} `json:"card"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	p.ID = strings.TrimSpace(obj.ID)
	if obj.Card != nil && (obj.Card.Brand != "" || obj.Card.Last4 != "") {
		p.Card = &models.PaymentMethod{Brand: obj.Card.Brand, Last4: obj.Card.Last4}
	}
	return nil
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
