package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/apperr"
	"storefront-service/internal/auth"
	"storefront-service/internal/bulkorders"
	"storefront-service/internal/catalog"
	"storefront-service/internal/events"
	"storefront-service/internal/notify"
	"storefront-service/internal/orders"
	"storefront-service/internal/payments"
	"storefront-service/internal/stores/kafka"
	"storefront-service/middleware"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

type OrderStore interface {
	PlaceOrder(ctx context.Context, n orders.NewOrder) (orders.Order, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber, email string) (orders.Order, error)
	ListOrders(ctx context.Context, f orders.Filter) ([]orders.Order, error)
	UpdateStatus(ctx context.Context, id string, p orders.Patch) (orders.Order, error)
	DeleteOrder(ctx context.Context, id string) error
	ListCustomers(ctx context.Context, limit, offset int) ([]orders.Customer, error)
	ListPayments(ctx context.Context, status orders.PaymentStatus, limit, offset int) ([]orders.Payment, error)
}

type BulkOrderStore interface {
	Create(ctx context.Context, n bulkorders.NewRequest) (bulkorders.Request, error)
	Get(ctx context.Context, id string) (bulkorders.Request, error)
	List(ctx context.Context, f bulkorders.Filter) ([]bulkorders.Request, error)
	Update(ctx context.Context, id string, p bulkorders.Patch) (bulkorders.Request, error)
	Delete(ctx context.Context, id string) error
}

type CatalogStore interface {
	InsertProduct(ctx context.Context, np catalog.NewProduct) (catalog.Product, error)
	GetProductByID(ctx context.Context, id string) (catalog.Product, error)
	UpdateProduct(ctx context.Context, id string, np catalog.NewProduct) (catalog.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListProducts(ctx context.Context, f catalog.ProductFilter) ([]catalog.Product, error)
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	InsertCategory(ctx context.Context, nc catalog.NewCategory) (catalog.Category, error)
	UpdateCategory(ctx context.Context, id string, nc catalog.NewCategory) (catalog.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

type PaymentService interface {
	Provider() string
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (payments.Intent, error)
	Verify(ctx context.Context, req payments.VerificationRequest) (payments.Verification, error)
}

type Notifier interface {
	SendOrderStatus(ctx context.Context, e notify.OrderStatus) error
	SendBulkStatus(ctx context.Context, e notify.BulkStatus) error
	NotifyAdmin(ctx context.Context, subject, body string) error
}

type Broadcaster interface {
	AddConnection(sink events.Sink, topics ...events.Topic) string
	RemoveConnection(id string)
	Encode(eventType string, data any) ([]byte, error)
	Broadcast(eventType string, data any) int
}

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Keys        *auth.Keys
	Orders      OrderStore
	BulkOrders  BulkOrderStore
	Catalog     CatalogStore
	Payments    PaymentService
	Notifier    Notifier
	Events      Broadcaster
	Publisher   kafka.Publisher
	RateLimiter *middleware.RateLimiter

	GinMode         string
	Production      bool
	Currency        string
	SSEPingInterval time.Duration
}

type Handler struct {
	o          OrderStore
	b          BulkOrderStore
	cat        CatalogStore
	p          PaymentService
	n          Notifier
	ev         Broadcaster
	k          kafka.Publisher
	production bool
	currency   string
	ping       time.Duration
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		o:          d.Orders,
		b:          d.BulkOrders,
		cat:        d.Catalog,
		p:          d.Payments,
		n:          d.Notifier,
		ev:         d.Events,
		k:          d.Publisher,
		production: d.Production,
		currency:   d.Currency,
		ping:       d.SSEPingInterval,
	}
	if h.k == nil {
		h.k = kafka.Noop{}
	}
	if h.currency == "" {
		h.currency = "INR"
	}
	if h.ping <= 0 {
		h.ping = 30 * time.Second
	}
	return h
}

func API(endpointPrefix string, d Deps) (*gin.Engine, error) {
	switch d.GinMode {
	case gin.ReleaseMode, gin.TestMode:
		gin.SetMode(d.GinMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	m, err := middleware.NewMid(d.Keys)
	if err != nil {
		return nil, err
	}
	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if d.RateLimiter != nil {
		limit = d.RateLimiter.Handler()
	}

	h := NewHandler(d)
	r := gin.New()
	r.Use(middleware.Logger(), gin.Recovery())
	r.GET("/ping", HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group(endpointPrefix)
	v1.Use(middleware.Metrics())
	{
		v1.GET("/products", h.ListProducts)
		v1.GET("/products/:id", h.GetProduct)
		v1.GET("/categories", h.ListCategories)

		v1.POST("/payments/intent", limit, m.OptionalAuthentication(), h.CreatePaymentIntent)
		v1.POST("/payments/verify", limit, h.VerifyPayment)

		v1.POST("/orders", limit, m.OptionalAuthentication(), h.Checkout)
		v1.GET("/orders/track", limit, h.TrackOrder)
		v1.GET("/orders", m.Authentication(), m.Authorize(h.ListMyOrders, auth.RoleUser, auth.RoleAdmin))
		v1.GET("/orders/:id", m.Authentication(), h.GetOrder)
		v1.PATCH("/orders/:id/status", m.Authentication(), h.UpdateOrderStatus)

		v1.POST("/bulk-orders", limit, h.CreateBulkOrder)
	}

	admin := v1.Group("/admin")
	admin.Use(m.Authentication())
	{
		admin.GET("/events", m.Authorize(h.AdminEvents, auth.RoleAdmin))

		admin.GET("/orders", m.Authorize(h.AdminListOrders, auth.RoleAdmin))
		admin.GET("/orders/:id", m.Authorize(h.GetOrder, auth.RoleAdmin))
		admin.PATCH("/orders/:id/status", m.Authorize(h.UpdateOrderStatus, auth.RoleAdmin))
		admin.DELETE("/orders/:id", m.Authorize(h.AdminDeleteOrder, auth.RoleAdmin))
		admin.GET("/customers", m.Authorize(h.AdminListCustomers, auth.RoleAdmin))
		admin.GET("/payments", m.Authorize(h.AdminListPayments, auth.RoleAdmin))

		admin.POST("/notifications/status-email", m.Authorize(h.SendStatusEmail, auth.RoleAdmin))

		admin.GET("/bulk-orders", m.Authorize(h.AdminListBulkOrders, auth.RoleAdmin))
		admin.GET("/bulk-orders/:id", m.Authorize(h.AdminGetBulkOrder, auth.RoleAdmin))
		admin.PATCH("/bulk-orders/:id", m.Authorize(h.AdminUpdateBulkOrder, auth.RoleAdmin))
		admin.DELETE("/bulk-orders/:id", m.Authorize(h.AdminDeleteBulkOrder, auth.RoleAdmin))

		admin.POST("/products", m.Authorize(h.CreateProduct, auth.RoleAdmin))
		admin.PUT("/products/:id", m.Authorize(h.UpdateProduct, auth.RoleAdmin))
		admin.DELETE("/products/:id", m.Authorize(h.DeleteProduct, auth.RoleAdmin))
		admin.POST("/categories", m.Authorize(h.CreateCategory, auth.RoleAdmin))
		admin.PUT("/categories/:id", m.Authorize(h.UpdateCategory, auth.RoleAdmin))
		admin.DELETE("/categories/:id", m.Authorize(h.DeleteCategory, auth.RoleAdmin))
	}
	return r, nil
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// errorMessage returns the status and client message for err. Details of configuration,
// upstream and internal failures are hidden in production.
func (h *Handler) errorMessage(err error) (int, string) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if kind.Sensitive() && h.production {
		return status, http.StatusText(status)
	}
	if kind == apperr.KindInternal {
		return status, err.Error()
	}
	return status, apperr.Message(err)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	status, msg := h.errorMessage(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
	} else {
		slog.Info("request rejected", slog.String(logkey.TraceID, traceId), slog.Int("Status Code", status),
			slog.String(logkey.ERROR, err.Error()))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (h *Handler) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		slog.Error("json validation error", slog.String(logkey.TraceID, ctxmanage.GetTraceIdOfRequest(c)),
			slog.String(logkey.ERROR, err.Error()))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Request body too large."})
			return false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// limitBody refuses bodies that announce more than max bytes and caps the read of the rest,
// chunked bodies included, at max.
func limitBody(c *gin.Context, max int64) bool {
	if c.Request.ContentLength > max {
		slog.Error("request body limit breached", slog.String(logkey.TraceID, ctxmanage.GetTraceIdOfRequest(c)),
			slog.Int64("Size Received", c.Request.ContentLength))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Request body too large."})
		return false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
	return true
}

func claimsOf(c *gin.Context) (auth.Claims, bool) {
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	return claims, ok
}

// pathID reads a UUID path parameter. Anything that is not a UUID cannot exist.
func pathID(c *gin.Context, entity string) (string, error) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperr.NotFound("%s %s not found", entity, id)
	}
	return id, nil
}

func paging(c *gin.Context) (limit, offset int, err error) {
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, apperr.Validation("limit must be a non-negative integer")
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, apperr.Validation("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// publish sends a record to kafka and only logs failures; the database write it describes has
// already committed.
func (h *Handler) publish(ctx context.Context, event, key string, payload any) {
	if err := h.k.Publish(ctx, event, key, payload); err != nil {
		slog.Error("publishing event failed", slog.String(logkey.TraceID, ctxmanage.GetTraceId(ctx)),
			slog.String("Event", event), slog.String("Key", key), slog.String(logkey.ERROR, err.Error()))
	}
}

func (h *Handler) broadcast(ctx context.Context, eventType string, data any) int {
	n := h.ev.Broadcast(eventType, data)
	slog.Info("event broadcast", slog.String(logkey.TraceID, ctxmanage.GetTraceId(ctx)),
		slog.String("Type", eventType), slog.Int("Delivered", n))
	return n
}

// notification reports the outcome of the email side effect of a request.
type notification struct {
	Requested bool   `json:"requested"`
	Sent      bool   `json:"sent"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) notificationResult(err error) notification {
	if err == nil {
		return notification{Requested: true, Sent: true}
	}
	_, msg := h.errorMessage(err)
	if h.production {
		msg = ""
	}
	return notification{Requested: true, Error: msg}
}
