package handler

import (
	"net/http"

	"billing-reminder-backend/internal/models"
	"billing-reminder-backend/internal/repository"
	"billing-reminder-backend/internal/services/billing"

	"github.com/gin-gonic/gin"
)

func (h *BillingHandler) CreateInvoice(c *gin.Context) {
	var payload billing.InvoiceInput
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	invoice, err := h.service.CreateInvoice(payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "invoice created", "invoice": invoice})
}

func (h *BillingHandler) ListInvoices(c *gin.Context) {
	today, ok := queryDate(c, "today")
	if !ok {
		return
	}
	status := c.Query("status")
	switch status {
	case repository.StatusAll, "all":
		status = repository.StatusAll
	case repository.StatusPaid, repository.StatusUnpaid, repository.StatusPending, repository.StatusOverdue:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	items, err := h.service.ListInvoices(repository.InvoiceFilter{Status: status, Query: c.Query("q"), Today: today})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *BillingHandler) GetInvoice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	invoice, err := h.service.GetInvoice(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	messages, err := h.service.ListMessages(repository.MessageFilter{InvoiceID: &id})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": invoice, "messages": messages})
}

func (h *BillingHandler) MarkPaid(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var payload struct {
		PerformedBy string `json:"performed_by"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
	}

	invoice, err := h.service.MarkPaid(id, payload.PerformedBy)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "invoice marked as paid", "invoice": invoice})
}

func (h *BillingHandler) SendInvoiceMessage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var payload struct {
		Kind models.MessageKind `json:"kind"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	msg, err := h.service.SendManual(c.Request.Context(), id, payload.Kind)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// UploadInvoices imports a CSV export sent as multipart field "file".
func (h *BillingHandler) UploadInvoices(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	h.logger.Info().Str("file", header.Filename).Int64("size", header.Size).Msg("invoice upload received")

	result, err := h.service.ImportInvoices(c.Request.Context(), file, header.Filename)
	if err != nil {
		code := statusFor(err)
		body := gin.H{"error": err.Error()}
		if result != nil {
			body["result"] = result
		}
		c.JSON(code, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"file":          header.Filename,
		"invoicesAdded": len(result.Imported),
		"result":        result,
	})
}
