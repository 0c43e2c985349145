// Package payments opens payment intents with the configured gateway and verifies the payment
// results reported back by the browser.
package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storefront-service/internal/apperr"
	"storefront-service/internal/metrics"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// Intent is a gateway side checkout attempt. Amount is in minor units.
type Intent struct {
	ID       string `json:"intentId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Provider string `json:"provider"`
	// ClientSecret is only set by gateways whose browser SDK needs it.
	ClientSecret string `json:"clientSecret,omitempty"`
}

// Verification is the gateway's answer for a reported payment. Amount and Currency describe
// the intent the payment was made against, in minor units, and are only set when Valid.
type Verification struct {
	Valid    bool
	Amount   int64
	Currency string
}

type IntentRequest struct {
	Amount   int64
	Currency string
	Receipt  string
}

// Gateway is a payment provider.
type Gateway interface {
	Name() string
	// Configured returns a configuration error when credentials are missing.
	Configured() error
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	Verify(ctx context.Context, req VerificationRequest) (Verification, error)
}

// Service creates intents and verifies payments through one gateway.
type Service struct {
	gateway Gateway
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewService(g Gateway) *Service {
	name := g.Name()
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			state := float64(0)
			switch to {
			case gobreaker.StateOpen:
				state = 1
			case gobreaker.StateHalfOpen:
				state = 2
			}
			metrics.GatewayBreakerState.WithLabelValues(name).Set(state)
			slog.Warn("gateway circuit breaker state changed", slog.String("Gateway", cbName),
				slog.String("From", from.String()), slog.String("To", to.String()))
		},
	})
	metrics.GatewayBreakerState.WithLabelValues(name).Set(0)
	return &Service{gateway: g, breaker: cb, now: time.Now}
}

func (s *Service) Provider() string {
	return s.gateway.Name()
}

// NewReceipt returns a token that tells repeated submissions apart in the gateway dashboard.
func NewReceipt(now time.Time) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("rcpt_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}

// CreateIntent validates the amount, converts it to minor units and opens an intent with the
// gateway. Nothing is persisted.
func (s *Service) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (Intent, error) {
	traceId := ctxmanage.GetTraceId(ctx)

	cur, err := NormalizeCurrency(currency)
	if err != nil {
		return Intent{}, err
	}
	minor, err := MinorUnits(amount, cur)
	if err != nil {
		return Intent{}, err
	}
	if err := s.gateway.Configured(); err != nil {
		slog.Error("payment gateway not configured", slog.String(logkey.TraceID, traceId),
			slog.String("Gateway", s.gateway.Name()), slog.String(logkey.ERROR, err.Error()))
		return Intent{}, err
	}

	req := IntentRequest{Amount: minor, Currency: cur, Receipt: NewReceipt(s.now())}
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.gateway.CreateIntent(ctx, req)
	})
	if err != nil {
		metrics.PaymentIntentsTotal.WithLabelValues(s.gateway.Name(), "error").Inc()
		slog.Error("creating payment intent failed", slog.String(logkey.TraceID, traceId),
			slog.String("Gateway", s.gateway.Name()), slog.String("Receipt", req.Receipt), slog.String(logkey.ERROR, err.Error()))
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Intent{}, apperr.Upstream(err, "payment gateway is temporarily unavailable")
		}
		if apperr.KindOf(err) == apperr.KindInternal {
			return Intent{}, apperr.Upstream(err, "payment gateway request failed")
		}
		return Intent{}, err
	}

	intent := out.(Intent)
	metrics.PaymentIntentsTotal.WithLabelValues(s.gateway.Name(), "created").Inc()
	slog.Info("payment intent created", slog.String(logkey.TraceID, traceId), slog.String("Gateway", s.gateway.Name()),
		slog.String("Intent ID", intent.ID), slog.Int64("Amount", intent.Amount), slog.String("Receipt", intent.Receipt))
	return intent, nil
}

// Verify checks a payment result reported by the browser. An invalid result is final for this
// attempt; the caller must not fulfil the order, and must not fulfil one whose total differs
// from the verified amount either.
func (s *Service) Verify(ctx context.Context, req VerificationRequest) (Verification, error) {
	if err := req.Validate(); err != nil {
		return Verification{}, err
	}
	v, err := s.gateway.Verify(ctx, req)
	switch {
	case err != nil:
		metrics.PaymentVerificationsTotal.WithLabelValues("error").Inc()
	case v.Valid:
		metrics.PaymentVerificationsTotal.WithLabelValues("valid").Inc()
	default:
		metrics.PaymentVerificationsTotal.WithLabelValues("invalid").Inc()
	}
	if err != nil {
		return Verification{}, err
	}
	slog.Info("payment verification", slog.String(logkey.TraceID, ctxmanage.GetTraceId(ctx)),
		slog.String("Intent ID", req.GatewayOrderID), slog.String("Payment ID", req.GatewayPaymentID),
		slog.Bool("Valid", v.Valid), slog.Int64("Amount", v.Amount), slog.String("Currency", v.Currency))
	return v, nil
}
