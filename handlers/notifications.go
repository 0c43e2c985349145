package handlers

import (
	"log/slog"
	"net/http"

	"storefront-service/internal/notify"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

type statusEmailRequest struct {
	CustomerEmail     string `json:"customerEmail" binding:"required,email"`
	CustomerName      string `json:"customerName"`
	OrderNumber       string `json:"orderNumber"`
	Status            string `json:"status"`
	TrackingNumber    string `json:"trackingNumber"`
	EstimatedDelivery string `json:"estimatedDelivery"`
}

// SendStatusEmail sends an order status email without touching the order, for resends from
// the admin panel.
func (h *Handler) SendStatusEmail(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	var req statusEmailRequest
	if !h.bindJSON(c, &req) {
		return
	}
	err := h.n.SendOrderStatus(c.Request.Context(), notify.OrderStatus{
		To:                req.CustomerEmail,
		CustomerName:      req.CustomerName,
		OrderNumber:       req.OrderNumber,
		Status:            req.Status,
		TrackingNumber:    req.TrackingNumber,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	slog.Info("status email resent", slog.String(logkey.TraceID, traceId), slog.String("Order Number", req.OrderNumber),
		slog.String("Status", req.Status))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
