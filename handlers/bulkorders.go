package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"storefront-service/internal/apperr"
	"storefront-service/internal/bulkorders"
	"storefront-service/internal/events"
	"storefront-service/internal/notify"
	"storefront-service/internal/stores/kafka"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateBulkOrder stores a bulk order enquiry and acknowledges it to the requester and admin.
func (h *Handler) CreateBulkOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	ctx := c.Request.Context()

	if !limitBody(c, 16*1024) {
		return
	}

	var req bulkorders.NewRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	r, err := h.b.Create(ctx, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	slog.Info("bulk order request created", slog.String(logkey.TraceID, traceId), slog.String("Request ID", r.ID),
		slog.String("Company", r.CompanyName), slog.Int("Quantity", r.Quantity))

	result := h.sendBulkStatusEmail(ctx, r)
	subject := fmt.Sprintf("New bulk order request from %s", r.CompanyName)
	body := fmt.Sprintf("%s <%s>, %s\nProduct: %s\nQuantity: %d\n\n%s\n",
		r.ContactName, r.Email, r.Phone, r.ProductType, r.Quantity, r.Description)
	if err := h.n.NotifyAdmin(ctx, subject, body); err != nil {
		slog.Error("admin bulk order email failed", slog.String(logkey.TraceID, traceId),
			slog.String("Request ID", r.ID), slog.String(logkey.ERROR, err.Error()))
	}

	h.broadcast(ctx, events.TypeBulkOrderUpdate, bulkSummary(r, true))
	h.publish(ctx, kafka.EventBulkOrderUpdated, r.ID, kafka.BulkOrderUpdated{
		RequestID:   r.ID,
		CompanyName: r.CompanyName,
		Status:      string(r.Status),
		Priority:    string(r.Priority),
		Created:     true,
	})

	c.JSON(http.StatusCreated, gin.H{"request": r, "notification": result})
}

func bulkSummary(r bulkorders.Request, created bool) gin.H {
	return gin.H{
		"requestId":   r.ID,
		"companyName": r.CompanyName,
		"contactName": r.ContactName,
		"quantity":    r.Quantity,
		"status":      r.Status,
		"priority":    r.Priority,
		"created":     created,
	}
}

func (h *Handler) sendBulkStatusEmail(ctx context.Context, r bulkorders.Request) notification {
	e := notify.BulkStatus{
		To:          r.Email,
		ContactName: r.ContactName,
		CompanyName: r.CompanyName,
		RequestID:   r.ID,
		Status:      string(r.Status),
	}
	if r.EstimatedPrice != nil {
		e.EstimatedPrice = r.EstimatedPrice.StringFixed(2)
	}
	err := h.n.SendBulkStatus(ctx, e)
	if err != nil {
		slog.Error("bulk order email failed", slog.String(logkey.TraceID, ctxmanage.GetTraceId(ctx)),
			slog.String("Request ID", r.ID), slog.String(logkey.ERROR, err.Error()))
	}
	return h.notificationResult(err)
}

func (h *Handler) AdminListBulkOrders(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	f := bulkorders.Filter{
		Status:   bulkorders.Status(c.Query("status")),
		Priority: bulkorders.Priority(c.Query("priority")),
		Limit:    limit,
		Offset:   offset,
	}
	if f.Status != "" && !f.Status.Valid() {
		h.respondError(c, apperr.Validation("status %q is not a valid bulk order status", f.Status))
		return
	}
	if f.Priority != "" && !f.Priority.Valid() {
		h.respondError(c, apperr.Validation("priority %q is not a valid priority", f.Priority))
		return
	}
	list, err := h.b.List(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) AdminGetBulkOrder(c *gin.Context) {
	id, err := pathID(c, "bulk order request")
	if err != nil {
		h.respondError(c, err)
		return
	}
	r, err := h.b.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type bulkUpdateRequest struct {
	Status          *bulkorders.Status   `json:"status"`
	Priority        *bulkorders.Priority `json:"priority"`
	AdminNotes      *string              `json:"adminNotes" binding:"omitempty,max=5000"`
	EstimatedPrice  *decimal.Decimal     `json:"estimatedPrice"`
	SendStatusEmail bool                 `json:"sendStatusEmail"`
}

func (r bulkUpdateRequest) patch() bulkorders.Patch {
	return bulkorders.Patch{Status: r.Status, Priority: r.Priority, AdminNotes: r.AdminNotes, EstimatedPrice: r.EstimatedPrice}
}

func (r bulkUpdateRequest) validate() error {
	if r.patch().Empty() {
		return apperr.Validation("nothing to update")
	}
	if r.Status != nil && !r.Status.Valid() {
		return apperr.Validation("status %q is not a valid bulk order status", *r.Status)
	}
	if r.Priority != nil && !r.Priority.Valid() {
		return apperr.Validation("priority %q is not a valid priority", *r.Priority)
	}
	if r.EstimatedPrice != nil && r.EstimatedPrice.IsNegative() {
		return apperr.Validation("estimatedPrice cannot be negative")
	}
	return nil
}

// AdminUpdateBulkOrder moves a request along its pipeline and records admin notes and pricing.
func (h *Handler) AdminUpdateBulkOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	ctx := c.Request.Context()

	id, err := pathID(c, "bulk order request")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req bulkUpdateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.respondError(c, err)
		return
	}

	current, err := h.b.Get(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if req.Status != nil && !bulkorders.CanTransition(current.Status, *req.Status) {
		h.respondError(c, apperr.InvalidTransition("bulk order request cannot move from %s to %s", current.Status, *req.Status))
		return
	}

	p := req.patch()
	p.ExpectedStatus = current.Status
	updated, err := h.b.Update(ctx, id, p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	slog.Info("bulk order request updated", slog.String(logkey.TraceID, traceId), slog.String("Request ID", id),
		slog.String("From", string(current.Status)), slog.String("To", string(updated.Status)))

	result := notification{}
	if req.SendStatusEmail && updated.Status != current.Status {
		result = h.sendBulkStatusEmail(ctx, updated)
	}

	h.broadcast(ctx, events.TypeBulkOrderUpdate, bulkSummary(updated, false))
	h.publish(ctx, kafka.EventBulkOrderUpdated, updated.ID, kafka.BulkOrderUpdated{
		RequestID:   updated.ID,
		CompanyName: updated.CompanyName,
		Status:      string(updated.Status),
		Priority:    string(updated.Priority),
	})

	c.JSON(http.StatusOK, gin.H{"request": updated, "notification": result})
}

func (h *Handler) AdminDeleteBulkOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	id, err := pathID(c, "bulk order request")
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.b.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	slog.Info("bulk order request deleted", slog.String(logkey.TraceID, traceId), slog.String("Request ID", id))
	c.Status(http.StatusNoContent)
}
