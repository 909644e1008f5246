package handler

import (
	"net/http"
	"strconv"

	"billing-reminder-backend/internal/models"
	"billing-reminder-backend/internal/repository"
	"billing-reminder-backend/internal/templates"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *BillingHandler) ListMessages(c *gin.Context) {
	var filter repository.MessageFilter
	if raw := c.Query("invoice_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice_id"})
			return
		}
		filter.InvoiceID = &id
	}
	if raw := c.Query("run_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run_id"})
			return
		}
		filter.RunID = &id
	}
	filter.Kind = models.MessageKind(c.Query("kind"))
	filter.Status = models.DeliveryStatus(c.Query("status"))
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	items, err := h.service.ListMessages(filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *BillingHandler) GetTemplates(c *gin.Context) {
	pair, err := h.service.Templates()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *BillingHandler) SaveTemplates(c *gin.Context) {
	var pair templates.Pair
	if err := c.ShouldBindJSON(&pair); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.service.SaveTemplates(pair); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "templates saved", "templates": pair})
}
