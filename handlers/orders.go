package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"storefront-service/internal/apperr"
	"storefront-service/internal/auth"
	"storefront-service/internal/events"
	"storefront-service/internal/notify"
	"storefront-service/internal/orders"
	"storefront-service/internal/payments"
	"storefront-service/internal/stores/kafka"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

type checkoutRequest struct {
	Customer      orders.Address                `json:"customer"`
	Items         []orders.NewItem              `json:"items" binding:"required,min=1,max=50,dive"`
	PaymentMethod orders.PaymentMethod          `json:"paymentMethod" binding:"required,oneof=cod online"`
	Payment       *payments.VerificationRequest `json:"payment"`
}

// Checkout places an order. Online orders must carry a verified payment; cash on delivery
// orders start pending.
func (h *Handler) Checkout(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	ctx := c.Request.Context()

	var req checkoutRequest
	if !h.bindJSON(c, &req) {
		return
	}

	n := orders.NewOrder{
		ShippingAddress: req.Customer,
		Items:           req.Items,
		Currency:        h.currency,
		PaymentMethod:   req.PaymentMethod,
		Status:          orders.StatusPending,
		PaymentStatus:   orders.PaymentPending,
	}
	n.ShippingAddress.Email = strings.ToLower(strings.TrimSpace(n.ShippingAddress.Email))
	if claims, ok := claimsOf(c); ok {
		sub := claims.Subject
		n.UserID = &sub
	}

	if req.PaymentMethod == orders.PaymentMethodOnline {
		if req.Payment == nil {
			h.respondError(c, apperr.Validation("payment details are required for online orders"))
			return
		}
		v, err := h.p.Verify(ctx, *req.Payment)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if !v.Valid {
			slog.Warn("checkout rejected, payment verification failed", slog.String(logkey.TraceID, traceId),
				slog.String("Intent ID", req.Payment.GatewayOrderID), slog.String("Payment ID", req.Payment.GatewayPaymentID))
			h.respondError(c, apperr.Validation("payment verification failed"))
			return
		}
		if !strings.EqualFold(v.Currency, h.currency) {
			slog.Warn("checkout rejected, payment currency differs", slog.String(logkey.TraceID, traceId),
				slog.String("Intent ID", req.Payment.GatewayOrderID), slog.String("Currency", v.Currency))
			h.respondError(c, apperr.Validation("payment currency %s does not match store currency %s", v.Currency, h.currency))
			return
		}
		// PlaceOrder compares this with the total it computes from catalog prices.
		paid := payments.FromMinorUnits(v.Amount, strings.ToUpper(v.Currency))
		n.PaidAmount = &paid
		n.Status = orders.StatusProcessing
		n.PaymentStatus = orders.PaymentCompleted
		n.GatewayOrderID = req.Payment.GatewayOrderID
		n.GatewayPaymentID = req.Payment.GatewayPaymentID
	}

	o, err := h.o.PlaceOrder(ctx, n)
	if err != nil {
		if n.PaidAmount != nil {
			slog.Warn("online order not placed", slog.String(logkey.TraceID, traceId),
				slog.String("Payment ID", n.GatewayPaymentID), slog.String("Paid", n.PaidAmount.StringFixed(2)),
				slog.String(logkey.ERROR, err.Error()))
		}
		h.respondError(c, err)
		return
	}
	slog.Info("order placed", slog.String(logkey.TraceID, traceId), slog.String(logkey.OrderID, o.ID),
		slog.String("Order Number", o.OrderNumber), slog.String("Total", o.Total.StringFixed(2)),
		slog.String("Payment Method", string(o.PaymentMethod)))

	// The order is committed; nothing below may fail the request.
	err = h.n.SendOrderStatus(ctx, notify.OrderStatus{
		To:           o.ShippingAddress.Email,
		CustomerName: o.ShippingAddress.Name,
		OrderNumber:  o.OrderNumber,
		Status:       notify.StatusConfirmed,
	})
	result := h.notificationResult(err)
	if err != nil {
		slog.Error("order confirmation email failed", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, o.ID), slog.String(logkey.ERROR, err.Error()))
	}

	subject := fmt.Sprintf("New order %s", o.OrderNumber)
	body := fmt.Sprintf("Order %s was placed by %s <%s>.\nTotal: %s %s\nPayment: %s (%s)\n",
		o.OrderNumber, o.ShippingAddress.Name, o.ShippingAddress.Email, o.Total.StringFixed(2), o.Currency,
		o.PaymentMethod, o.PaymentStatus)
	if err := h.n.NotifyAdmin(ctx, subject, body); err != nil {
		slog.Error("admin order email failed", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, o.ID), slog.String(logkey.ERROR, err.Error()))
	}

	summary := orderSummary(o)
	h.broadcast(ctx, events.TypeNewOrder, summary)
	if o.PaymentMethod == orders.PaymentMethodOnline {
		h.broadcast(ctx, events.TypePaymentUpdate, summary)
	}
	h.broadcast(ctx, events.TypeCustomerUpdate, gin.H{"email": o.ShippingAddress.Email, "name": o.ShippingAddress.Name})

	created := kafka.OrderCreated{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Email:         o.ShippingAddress.Email,
		Total:         o.Total,
		Currency:      o.Currency,
		PaymentMethod: string(o.PaymentMethod),
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
	}
	if o.UserID != nil {
		created.UserID = *o.UserID
	}
	h.publish(ctx, kafka.EventOrderCreated, o.ID, created)

	c.JSON(http.StatusCreated, gin.H{"order": o, "notification": result})
}

func orderSummary(o orders.Order) gin.H {
	return gin.H{
		"orderId":        o.ID,
		"orderNumber":    o.OrderNumber,
		"customerName":   o.ShippingAddress.Name,
		"customerEmail":  o.ShippingAddress.Email,
		"total":          o.Total,
		"currency":       o.Currency,
		"status":         o.Status,
		"paymentStatus":  o.PaymentStatus,
		"paymentMethod":  o.PaymentMethod,
		"trackingNumber": o.TrackingNumber,
	}
}

type statusUpdateRequest struct {
	Status            *orders.Status        `json:"status"`
	PaymentStatus     *orders.PaymentStatus `json:"paymentStatus"`
	TrackingNumber    *string               `json:"trackingNumber" binding:"omitempty,max=100"`
	EstimatedDelivery string                `json:"estimatedDelivery" binding:"max=100"`
	SendStatusEmail   bool                  `json:"sendStatusEmail"`
}

func (r statusUpdateRequest) patch() orders.Patch {
	return orders.Patch{Status: r.Status, PaymentStatus: r.PaymentStatus, TrackingNumber: r.TrackingNumber}
}

func (r statusUpdateRequest) validate() error {
	if r.patch().Empty() {
		return apperr.Validation("one of status, paymentStatus or trackingNumber is required")
	}
	if r.Status != nil && !r.Status.Valid() {
		return apperr.Validation("status %q is not a valid order status", *r.Status)
	}
	if r.PaymentStatus != nil && !r.PaymentStatus.Valid() {
		return apperr.Validation("paymentStatus %q is not a valid payment status", *r.PaymentStatus)
	}
	return nil
}

// authorizeStatusChange lets admins apply any change and owners cancel their own order.
func authorizeStatusChange(claims auth.Claims, o orders.Order, r statusUpdateRequest) error {
	if claims.IsAdmin() {
		return nil
	}
	if o.UserID == nil || *o.UserID != claims.Subject {
		return apperr.Forbidden("not allowed to update order %s", o.ID)
	}
	if r.Status == nil || *r.Status != orders.StatusCancelled || r.PaymentStatus != nil || r.TrackingNumber != nil {
		return apperr.Forbidden("customers may only cancel their orders")
	}
	return nil
}

func checkTransitions(o orders.Order, r statusUpdateRequest) error {
	if r.Status != nil && !orders.CanTransition(o.Status, *r.Status) {
		return apperr.InvalidTransition("order cannot move from %s to %s", o.Status, *r.Status)
	}
	if r.PaymentStatus != nil && !orders.CanTransitionPayment(o.PaymentStatus, *r.PaymentStatus) {
		return apperr.InvalidTransition("payment cannot move from %s to %s", o.PaymentStatus, *r.PaymentStatus)
	}
	return nil
}

// UpdateOrderStatus applies a partial status update and then, independently of each other,
// sends the optional status email, notifies admin sessions and publishes the change. Failures
// of those side effects are logged and reported but never undo the update.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	ctx := c.Request.Context()

	claims, ok := claimsOf(c)
	if !ok {
		h.respondError(c, apperr.Unauthenticated("authentication required"))
		return
	}
	id, err := pathID(c, "order")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req statusUpdateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.respondError(c, err)
		return
	}

	current, err := h.o.GetOrder(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := authorizeStatusChange(claims, current, req); err != nil {
		slog.Warn("order status change refused", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, id), slog.String(logkey.UserID, claims.Subject))
		h.respondError(c, err)
		return
	}
	if err := checkTransitions(current, req); err != nil {
		h.respondError(c, err)
		return
	}

	p := req.patch()
	p.ExpectedStatus = current.Status
	p.ExpectedPayment = current.PaymentStatus
	updated, err := h.o.UpdateStatus(ctx, id, p)
	if err != nil {
		if apperr.Is(err, apperr.KindInvalidTransition) {
			slog.Warn("order changed during status update", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.OrderID, id), slog.String(logkey.ERROR, err.Error()))
		}
		h.respondError(c, err)
		return
	}
	slog.Info("order status updated", slog.String(logkey.TraceID, traceId), slog.String(logkey.OrderID, id),
		slog.String("From", string(current.Status)), slog.String("To", string(updated.Status)),
		slog.String("Payment Status", string(updated.PaymentStatus)), slog.String(logkey.UserID, claims.Subject))

	result := notification{}
	if req.SendStatusEmail {
		result = h.sendOrderStatusEmail(ctx, updated, req.EstimatedDelivery)
	}

	summary := orderSummary(updated)
	summary["previousStatus"] = current.Status
	delivered := h.broadcast(ctx, events.TypeOrderUpdate, summary)
	if updated.PaymentStatus != current.PaymentStatus {
		h.broadcast(ctx, events.TypePaymentUpdate, summary)
	}

	h.publish(ctx, kafka.EventOrderStatusChanged, updated.ID, kafka.OrderStatusChanged{
		OrderID:           updated.ID,
		OrderNumber:       updated.OrderNumber,
		PreviousStatus:    string(current.Status),
		Status:            string(updated.Status),
		PreviousPayment:   string(current.PaymentStatus),
		PaymentStatus:     string(updated.PaymentStatus),
		TrackingNumber:    updated.TrackingNumber,
		EmailRequested:    result.Requested,
		EmailSent:         result.Sent,
		BroadcastDelivery: delivered,
		ChangedBy:         claims.Subject,
	})

	c.JSON(http.StatusOK, gin.H{"order": updated, "notification": result})
}

func (h *Handler) sendOrderStatusEmail(ctx context.Context, o orders.Order, estimatedDelivery string) notification {
	traceId := ctxmanage.GetTraceId(ctx)
	if !notify.HasTemplate(notify.KindOrder, string(o.Status)) {
		slog.Info("status email skipped, no template", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, o.ID), slog.String("Status", string(o.Status)))
		return notification{Requested: true, Error: fmt.Sprintf("no email template for status %s", o.Status)}
	}
	err := h.n.SendOrderStatus(ctx, notify.OrderStatus{
		To:                o.ShippingAddress.Email,
		CustomerName:      o.ShippingAddress.Name,
		OrderNumber:       o.OrderNumber,
		Status:            string(o.Status),
		TrackingNumber:    o.TrackingNumber,
		EstimatedDelivery: estimatedDelivery,
	})
	if err != nil {
		slog.Error("status email failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.OrderID, o.ID),
			slog.String(logkey.ERROR, err.Error()))
	} else {
		slog.Info("status email sent", slog.String(logkey.TraceID, traceId), slog.String(logkey.OrderID, o.ID),
			slog.String("Status", string(o.Status)))
	}
	return h.notificationResult(err)
}

// GetOrder returns an order with its items to its owner or an admin.
func (h *Handler) GetOrder(c *gin.Context) {
	claims, ok := claimsOf(c)
	if !ok {
		h.respondError(c, apperr.Unauthenticated("authentication required"))
		return
	}
	id, err := pathID(c, "order")
	if err != nil {
		h.respondError(c, err)
		return
	}
	o, err := h.o.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !claims.IsAdmin() && (o.UserID == nil || *o.UserID != claims.Subject) {
		// Same answer as a missing order so ids cannot be probed.
		h.respondError(c, apperr.NotFound("order %s not found", id))
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) ListMyOrders(c *gin.Context) {
	claims, _ := claimsOf(c)
	limit, offset, err := paging(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	list, err := h.o.ListOrders(c.Request.Context(), orders.Filter{UserID: claims.Subject, Limit: limit, Offset: offset})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// TrackOrder is the public lookup by order number and the email used at checkout.
func (h *Handler) TrackOrder(c *gin.Context) {
	number := strings.TrimSpace(c.Query("orderNumber"))
	email := strings.TrimSpace(c.Query("email"))
	if number == "" || email == "" {
		h.respondError(c, apperr.Validation("orderNumber and email are required"))
		return
	}
	o, err := h.o.GetOrderByNumber(c.Request.Context(), number, email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) AdminListOrders(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	f := orders.Filter{
		Status:        orders.Status(c.Query("status")),
		PaymentStatus: orders.PaymentStatus(c.Query("paymentStatus")),
		Limit:         limit,
		Offset:        offset,
	}
	if f.Status != "" && !f.Status.Valid() {
		h.respondError(c, apperr.Validation("status %q is not a valid order status", f.Status))
		return
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		h.respondError(c, apperr.Validation("paymentStatus %q is not a valid payment status", f.PaymentStatus))
		return
	}
	list, err := h.o.ListOrders(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// AdminDeleteOrder removes an order and, by cascade, its items.
func (h *Handler) AdminDeleteOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	id, err := pathID(c, "order")
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.o.DeleteOrder(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	slog.Info("order deleted", slog.String(logkey.TraceID, traceId), slog.String(logkey.OrderID, id))
	h.broadcast(c.Request.Context(), events.TypeOrderUpdate, gin.H{"orderId": id, "deleted": true})
	c.Status(http.StatusNoContent)
}

func (h *Handler) AdminListCustomers(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	list, err := h.o.ListCustomers(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) AdminListPayments(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	status := orders.PaymentStatus(c.Query("paymentStatus"))
	if status != "" && !status.Valid() {
		h.respondError(c, apperr.Validation("paymentStatus %q is not a valid payment status", status))
		return
	}
	list, err := h.o.ListPayments(c.Request.Context(), status, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
