package payments

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"storefront-service/internal/apperr"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// Stripe uses PaymentIntents. The browser reports the intent id, the charge (or intent) id and
// the intent's client secret; verification retrieves the intent and checks all three.
type Stripe struct {
	configured bool
	sc         *client.API
}

func NewStripe(secretKey string, backends *stripe.Backends) *Stripe {
	if secretKey == "" {
		return &Stripe{}
	}
	return &Stripe{configured: true, sc: client.New(secretKey, backends)}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) Configured() error {
	if !s.configured {
		return apperr.Configuration("stripe secret key is not configured")
	}
	return nil
}

func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if err := s.Configured(); err != nil {
		return Intent{}, err
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	params.AddMetadata("receipt", req.Receipt)
	params.SetIdempotencyKey(req.Receipt)

	pi, err := s.sc.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, apperr.Upstream(fmt.Errorf("stripe create payment intent: %w", err), "payment gateway request failed")
	}
	return Intent{
		ID:           pi.ID,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Receipt:      req.Receipt,
		Provider:     s.Name(),
		ClientSecret: pi.ClientSecret,
	}, nil
}

func (s *Stripe) Verify(ctx context.Context, req VerificationRequest) (Verification, error) {
	if err := s.Configured(); err != nil {
		return Verification{}, err
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.sc.PaymentIntents.Get(req.GatewayOrderID, params)
	if err != nil {
		return Verification{}, apperr.Upstream(fmt.Errorf("stripe retrieve payment intent: %w", err), "payment gateway request failed")
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return Verification{}, nil
	}
	paymentMatches := req.GatewayPaymentID == pi.ID ||
		(pi.LatestCharge != nil && req.GatewayPaymentID == pi.LatestCharge.ID)
	secretMatches := subtle.ConstantTimeCompare([]byte(req.Signature), []byte(pi.ClientSecret)) == 1
	if !paymentMatches || !secretMatches {
		return Verification{}, nil
	}
	return Verification{Valid: true, Amount: pi.Amount, Currency: strings.ToUpper(string(pi.Currency))}, nil
}
