package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"storefront-service/internal/apperr"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
)

func TestSignatureRoundTrip(t *testing.T) {
	sig := Sign("secret", "order_1", "pay_1")

	ok, err := VerifySignature("secret", "order_1", "pay_1", sig)
	require.NoError(t, err)
	assert.True(t, ok)

	// Any single changed input must fail verification.
	mutated := []byte(sig)
	if mutated[0] == 'a' {
		mutated[0] = 'b'
	} else {
		mutated[0] = 'a'
	}
	ok, err = VerifySignature("secret", "order_1", "pay_1", string(mutated))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = VerifySignature("secret", "order_2", "pay_1", sig)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = VerifySignature("secret", "order_1", "pay_2", sig)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = VerifySignature("other", "order_1", "pay_1", sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySignatureMissingInput(t *testing.T) {
	tt := []struct {
		name   string
		secret string
		order  string
		pay    string
		sig    string
		kind   apperr.Kind
	}{
		{name: "missing order id", secret: "s", pay: "p", sig: "x", kind: apperr.KindValidation},
		{name: "missing payment id", secret: "s", order: "o", sig: "x", kind: apperr.KindValidation},
		{name: "missing signature", secret: "s", order: "o", pay: "p", kind: apperr.KindValidation},
		{name: "missing secret", order: "o", pay: "p", sig: "x", kind: apperr.KindConfiguration},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := VerifySignature(tc.secret, tc.order, tc.pay, tc.sig)
			assert.False(t, ok)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
}

func TestMinorUnits(t *testing.T) {
	tt := []struct {
		amount   string
		currency string
		want     int64
		wantErr  bool
	}{
		{amount: "499.00", currency: "INR", want: 49900},
		{amount: "0.5", currency: "USD", want: 50},
		{amount: "1500", currency: "JPY", want: 1500},
		{amount: "1.234", currency: "KWD", want: 1234},
		{amount: "1.5", currency: "JPY", wantErr: true},
		{amount: "10.001", currency: "INR", wantErr: true},
		{amount: "0", currency: "INR", wantErr: true},
		{amount: "-3", currency: "INR", wantErr: true},
	}
	for _, tc := range tt {
		t.Run(tc.amount+tc.currency, func(t *testing.T) {
			got, err := MinorUnits(decimal.RequireFromString(tc.amount), tc.currency)
			if tc.wantErr {
				assert.True(t, apperr.Is(err, apperr.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.True(t, decimal.RequireFromString(tc.amount).Equal(FromMinorUnits(got, tc.currency)))
		})
	}
}

func TestNormalizeCurrency(t *testing.T) {
	c, err := NormalizeCurrency(" inr ")
	require.NoError(t, err)
	assert.Equal(t, "INR", c)

	_, err = NormalizeCurrency("RUPEES")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func razorpayServer(t *testing.T, hits *int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateIntentRazorpay(t *testing.T) {
	var hits int32
	var got map[string]any
	srv := razorpayServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_Abc123","amount":49900,"currency":"INR","receipt":"` +
			got["receipt"].(string) + `","status":"created"}`))
	})

	svc := NewService(NewRazorpay("rzp_key", "rzp_secret", srv.URL))
	intent, err := svc.CreateIntent(context.Background(), decimal.RequireFromString("499.00"), "inr")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, float64(49900), got["amount"])
	assert.Equal(t, "INR", got["currency"])
	assert.True(t, strings.HasPrefix(got["receipt"].(string), "rcpt_"))

	assert.Equal(t, "order_Abc123", intent.ID)
	assert.Equal(t, int64(49900), intent.Amount)
	assert.Equal(t, "INR", intent.Currency)
	assert.Equal(t, "razorpay", intent.Provider)
}

func TestCreateIntentRejectsAmountBeforeCallingGateway(t *testing.T) {
	var hits int32
	srv := razorpayServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	svc := NewService(NewRazorpay("rzp_key", "rzp_secret", srv.URL))

	for _, amount := range []string{"0", "-10", "1.001"} {
		_, err := svc.CreateIntent(context.Background(), decimal.RequireFromString(amount), "INR")
		assert.True(t, apperr.Is(err, apperr.KindValidation), amount)
	}
	_, err := svc.CreateIntent(context.Background(), decimal.NewFromInt(10), "rupees")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestCreateIntentMissingCredentials(t *testing.T) {
	var hits int32
	srv := razorpayServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {})

	svc := NewService(NewRazorpay("", "", srv.URL))
	_, err := svc.CreateIntent(context.Background(), decimal.NewFromInt(10), "INR")
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))

	_, err = NewService(NewStripe("", nil)).CreateIntent(context.Background(), decimal.NewFromInt(10), "USD")
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestCreateIntentGatewayError(t *testing.T) {
	var hits int32
	srv := razorpayServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
	})

	svc := NewService(NewRazorpay("rzp_key", "wrong", srv.URL))
	_, err := svc.CreateIntent(context.Background(), decimal.NewFromInt(10), "INR")
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Contains(t, err.Error(), "Authentication failed")
}

type failingGateway struct {
	calls int
}

func (f *failingGateway) Name() string      { return "failing" }
func (f *failingGateway) Configured() error { return nil }
func (f *failingGateway) CreateIntent(context.Context, IntentRequest) (Intent, error) {
	f.calls++
	return Intent{}, errors.New("connection reset")
}
func (f *failingGateway) Verify(context.Context, VerificationRequest) (Verification, error) {
	return Verification{}, nil
}

func TestCreateIntentBreakerOpens(t *testing.T) {
	g := &failingGateway{}
	svc := NewService(g)

	for i := 0; i < 5; i++ {
		_, err := svc.CreateIntent(context.Background(), decimal.NewFromInt(1), "INR")
		assert.True(t, apperr.Is(err, apperr.KindUpstream))
	}
	_, err := svc.CreateIntent(context.Background(), decimal.NewFromInt(1), "INR")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Equal(t, 5, g.calls)
}

func TestServiceVerifyRazorpay(t *testing.T) {
	var hits int32
	srv := razorpayServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/orders/order_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_1","amount":49900,"currency":"INR","receipt":"rcpt_1","status":"paid"}`))
	})
	svc := NewService(NewRazorpay("rzp_key", "rzp_secret", srv.URL))

	v, err := svc.Verify(context.Background(), VerificationRequest{
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        Sign("rzp_secret", "order_1", "pay_1"),
	})
	require.NoError(t, err)
	assert.Equal(t, Verification{Valid: true, Amount: 49900, Currency: "INR"}, v)
	assert.True(t, FromMinorUnits(v.Amount, v.Currency).Equal(decimal.RequireFromString("499.00")))

	v, err = svc.Verify(context.Background(), VerificationRequest{
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        Sign("other", "order_1", "pay_1"),
	})
	require.NoError(t, err)
	assert.False(t, v.Valid)
	// a bad signature is settled without asking the gateway
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	_, err = svc.Verify(context.Background(), VerificationRequest{GatewayOrderID: "order_1"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRazorpayVerifyGatewayError(t *testing.T) {
	var hits int32
	srv := razorpayServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`))
	})
	g := NewRazorpay("rzp_key", "rzp_secret", srv.URL)

	_, err := g.Verify(context.Background(), VerificationRequest{
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        Sign("rzp_secret", "order_1", "pay_1"),
	})
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
}

func stripeBackends(t *testing.T, handler http.HandlerFunc) *stripe.Backends {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	return &stripe.Backends{API: b, Connect: b, Uploads: b}
}

func TestStripeCreateIntent(t *testing.T) {
	backends := stripeBackends(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "1999", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.NotEmpty(t, r.PostForm.Get("metadata[receipt]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","amount":1999,"currency":"usd","status":"requires_payment_method","client_secret":"pi_1_secret_x"}`))
	})

	svc := NewService(NewStripe("sk_test_123", backends))
	intent, err := svc.CreateIntent(context.Background(), decimal.RequireFromString("19.99"), "USD")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, int64(1999), intent.Amount)
	assert.Equal(t, "USD", intent.Currency)
	assert.Equal(t, "pi_1_secret_x", intent.ClientSecret)
	assert.Equal(t, "stripe", intent.Provider)
}

func TestStripeVerify(t *testing.T) {
	var status atomic.Value
	status.Store("succeeded")
	backends := stripeBackends(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","amount":1999,"currency":"usd","status":"` +
			status.Load().(string) + `","client_secret":"pi_1_secret_x","latest_charge":"ch_1"}`))
	})
	g := NewStripe("sk_test_123", backends)

	v, err := g.Verify(context.Background(), VerificationRequest{GatewayOrderID: "pi_1", GatewayPaymentID: "ch_1", Signature: "pi_1_secret_x"})
	require.NoError(t, err)
	assert.Equal(t, Verification{Valid: true, Amount: 1999, Currency: "USD"}, v)

	v, err = g.Verify(context.Background(), VerificationRequest{GatewayOrderID: "pi_1", GatewayPaymentID: "ch_1", Signature: "pi_1_secret_y"})
	require.NoError(t, err)
	assert.False(t, v.Valid)

	v, err = g.Verify(context.Background(), VerificationRequest{GatewayOrderID: "pi_1", GatewayPaymentID: "ch_2", Signature: "pi_1_secret_x"})
	require.NoError(t, err)
	assert.False(t, v.Valid)

	status.Store("requires_payment_method")
	v, err = g.Verify(context.Background(), VerificationRequest{GatewayOrderID: "pi_1", GatewayPaymentID: "ch_1", Signature: "pi_1_secret_x"})
	require.NoError(t, err)
	assert.False(t, v.Valid)
}
