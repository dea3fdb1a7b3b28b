// Package stripe authenticates billing webhook deliveries from Stripe.
package stripe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/fueltax-backend/pkg/config"
)

const secretPrefix = "whsec_"

var errSecretRequired = errors.New("stripe webhook secret is required")

// Verifier checks the Stripe-Signature header of a delivery against the
// endpoint signing secret. It holds no API key; quota changes only ever
// arrive through webhooks.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier builds a verifier from the endpoint secret. A zero tolerance
// falls back to Stripe's default replay window.
func NewVerifier(cfg config.StripeConfig) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errSecretRequired
	}
	if !strings.HasPrefix(secret, secretPrefix) {
		return nil, fmt.Errorf("stripe webhook secret must start with %q", secretPrefix)
	}
	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}, nil
}

// ConstructEvent verifies the signature and decodes the event. Deliveries
// signed outside the tolerance window are rejected.
func (v *Verifier) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithTolerance(payload, signature, v.secret, v.tolerance)
}
