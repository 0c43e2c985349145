package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"storefront-service/internal/apperr"
)

// VerificationRequest is what the browser reports after the hosted checkout completes.
type VerificationRequest struct {
	GatewayOrderID   string `json:"intentId"`
	GatewayPaymentID string `json:"paymentId"`
	Signature        string `json:"signature"`
}

func (r VerificationRequest) Validate() error {
	if r.GatewayOrderID == "" || r.GatewayPaymentID == "" || r.Signature == "" {
		return apperr.Validation("intentId, paymentId and signature are required")
	}
	return nil
}

// Sign returns hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature was produced by the gateway for this order and
// payment. The comparison is constant time.
func VerifySignature(secret, orderID, paymentID, signature string) (bool, error) {
	req := VerificationRequest{GatewayOrderID: orderID, GatewayPaymentID: paymentID, Signature: signature}
	if err := req.Validate(); err != nil {
		return false, err
	}
	if secret == "" {
		return false, apperr.Configuration("payment gateway secret is not configured")
	}
	expected := Sign(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}
