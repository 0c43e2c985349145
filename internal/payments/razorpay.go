package payments

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront-service/internal/apperr"

	"github.com/go-resty/resty/v2"
)

type Razorpay struct {
	keyID     string
	keySecret string
	client    *resty.Client
}

func NewRazorpay(keyID, keySecret, baseURL string) *Razorpay {
	return &Razorpay{
		keyID:     keyID,
		keySecret: keySecret,
		client: resty.New().
			SetBaseURL(baseURL).
			SetBasicAuth(keyID, keySecret).
			SetTimeout(15 * time.Second).
			SetRetryCount(0),
	}
}

func (r *Razorpay) Name() string { return "razorpay" }

func (r *Razorpay) Configured() error {
	if r.keyID == "" || r.keySecret == "" {
		return apperr.Configuration("razorpay credentials are not configured")
	}
	return nil
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateIntent opens a Razorpay order; Razorpay calls its intents "orders".
func (r *Razorpay) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if err := r.Configured(); err != nil {
		return Intent{}, err
	}
	var out razorpayOrder
	var failure razorpayError
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"amount":   req.Amount,
			"currency": req.Currency,
			"receipt":  req.Receipt,
		}).
		SetResult(&out).
		SetError(&failure).
		Post("/orders")
	if err != nil {
		return Intent{}, fmt.Errorf("razorpay create order: %w", err)
	}
	if resp.IsError() {
		cause := fmt.Errorf("razorpay returned %d: %s %s", resp.StatusCode(), failure.Error.Code, failure.Error.Description)
		if resp.StatusCode() == http.StatusUnauthorized {
			return Intent{}, apperr.Upstream(cause, "payment gateway rejected the configured credentials")
		}
		return Intent{}, apperr.Upstream(cause, "payment gateway request failed")
	}
	if out.ID == "" {
		return Intent{}, apperr.Upstream(fmt.Errorf("razorpay response without order id"), "payment gateway request failed")
	}
	return Intent{
		ID:       out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Receipt:  out.Receipt,
		Provider: r.Name(),
	}, nil
}

// Verify checks the checkout signature locally and, when it holds, reads the order back to
// learn the amount it was opened for.
func (r *Razorpay) Verify(ctx context.Context, req VerificationRequest) (Verification, error) {
	ok, err := VerifySignature(r.keySecret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil || !ok {
		return Verification{}, err
	}

	var out razorpayOrder
	var failure razorpayError
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("id", req.GatewayOrderID).
		SetResult(&out).
		SetError(&failure).
		Get("/orders/{id}")
	if err != nil {
		return Verification{}, apperr.Upstream(fmt.Errorf("razorpay fetch order: %w", err), "payment gateway request failed")
	}
	if resp.IsError() {
		cause := fmt.Errorf("razorpay returned %d: %s %s", resp.StatusCode(), failure.Error.Code, failure.Error.Description)
		return Verification{}, apperr.Upstream(cause, "payment gateway request failed")
	}
	return Verification{Valid: true, Amount: out.Amount, Currency: strings.ToUpper(out.Currency)}, nil
}
