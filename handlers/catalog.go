package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"storefront-service/internal/catalog"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validationMessage turns the first failed validator rule into a client message.
func validationMessage(err error) string {
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		vErr := vErrs[0]
		switch vErr.Tag() {
		case "required":
			return vErr.Field() + " value missing"
		case "min":
			return vErr.Field() + " value is less than " + vErr.Param()
		case "max":
			return vErr.Field() + " value is more than " + vErr.Param()
		case "url":
			return vErr.Field() + " must be a valid URL"
		default:
			return vErr.Field() + " is invalid"
		}
	}
	return http.StatusText(http.StatusBadRequest)
}

// bindCatalog decodes and validates a catalog payload, capping the body at 5 KB.
func (h *Handler) bindCatalog(c *gin.Context, dst any) bool {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	if !limitBody(c, 5*1024) || !h.bindJSON(c, dst) {
		return false
	}
	if err := validate.Struct(dst); err != nil {
		slog.Error("validation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return false
	}
	return true
}

func (h *Handler) ListProducts(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	list, err := h.cat.ListProducts(c.Request.Context(), catalog.ProductFilter{
		CategoryID: c.Query("category"),
		Search:     strings.TrimSpace(c.Query("q")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, err := pathID(c, "product")
	if err != nil {
		h.respondError(c, err)
		return
	}
	p, err := h.cat.GetProductByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) ListCategories(c *gin.Context) {
	list, err := h.cat.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) CreateProduct(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	var np catalog.NewProduct
	if !h.bindCatalog(c, &np) {
		return
	}
	p, err := h.cat.InsertProduct(c.Request.Context(), np)
	if err != nil {
		h.respondError(c, err)
		return
	}
	slog.Info("product created", slog.String(logkey.TraceID, traceId), slog.String("ProductID", p.ID))
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	id, err := pathID(c, "product")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var np catalog.NewProduct
	if !h.bindCatalog(c, &np) {
		return
	}
	p, err := h.cat.UpdateProduct(c.Request.Context(), id, np)
	if err != nil {
		h.respondError(c, err)
		return
	}
	slog.Info("product updated", slog.String(logkey.TraceID, traceId), slog.String("ProductID", id))
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id, err := pathID(c, "product")
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.cat.DeleteProduct(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CreateCategory(c *gin.Context) {
	var nc catalog.NewCategory
	if !h.bindCatalog(c, &nc) {
		return
	}
	if nc.ParentID != nil && *nc.ParentID == "" {
		nc.ParentID = nil
	}
	cat, err := h.cat.InsertCategory(c.Request.Context(), nc)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (h *Handler) UpdateCategory(c *gin.Context) {
	id, err := pathID(c, "category")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var nc catalog.NewCategory
	if !h.bindCatalog(c, &nc) {
		return
	}
	if nc.ParentID != nil && *nc.ParentID == "" {
		nc.ParentID = nil
	}
	cat, err := h.cat.UpdateCategory(c.Request.Context(), id, nc)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

// DeleteCategory removes a category with its subcategories; their products become uncategorised.
func (h *Handler) DeleteCategory(c *gin.Context) {
	id, err := pathID(c, "category")
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.cat.DeleteCategory(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
