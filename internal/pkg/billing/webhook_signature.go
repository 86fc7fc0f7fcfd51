package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// SignatureTolerance bounds how old a signed payload may be.
const SignatureTolerance = 5 * time.Minute

// VerifyWebhook checks the Stripe-Signature header against the shared secret
// (HMAC-SHA256, constant-time compare) and decodes the event envelope. A bad
// signature yields ErrInvalidSignature; a signed but unreadable body ErrDecode.
func VerifyWebhook(payload []byte, signatureHeader, webhookSecret string) (stripe.Event, error) {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return stripe.Event{}, fmt.Errorf("%w: STRIPE_WEBHOOK_SECRET is not configured", ErrConfig)
	}
	if sig == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	if err := webhook.ValidatePayloadWithTolerance(payload, sig, secret, SignatureTolerance); err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if strings.TrimSpace(event.ID) == "" || event.Type == "" {
		return stripe.Event{}, fmt.Errorf("%w: event id and type are required", ErrDecode)
	}
	return event, nil
}
