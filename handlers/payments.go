package handlers

import (
	"log/slog"
	"net/http"

	"storefront-service/internal/payments"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type intentRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// CreatePaymentIntent opens a gateway intent for the amount shown at checkout. Nothing is
// stored; the order is only written once the payment verifies.
func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	var req intentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.Currency == "" {
		req.Currency = h.currency
	}

	intent, err := h.p.CreateIntent(c.Request.Context(), req.Amount, req.Currency)
	if err != nil {
		h.respondError(c, err)
		return
	}
	slog.Info("payment intent issued", slog.String(logkey.TraceID, traceId), slog.String("Intent ID", intent.ID),
		slog.String("Provider", intent.Provider))
	c.JSON(http.StatusOK, intent)
}

// VerifyPayment lets the browser confirm a gateway result before it submits the order.
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req payments.VerificationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	v, err := h.p.Verify(c.Request.Context(), req)
	if err != nil {
		status, msg := h.errorMessage(err)
		if status >= http.StatusInternalServerError {
			h.respondError(c, err)
			return
		}
		c.JSON(status, gin.H{"success": false, "error": msg})
		return
	}
	if !v.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "payment verification failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
