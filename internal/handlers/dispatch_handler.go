package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"billing-reminder-backend/internal/calendar"
	"billing-reminder-backend/internal/models"
	"billing-reminder-backend/internal/services/billing"

	"github.com/gin-gonic/gin"
)

func (h *BillingHandler) Preview(c *gin.Context) {
	today, ok := queryDate(c, "today")
	if !ok {
		return
	}
	includePrevious, ok := queryBool(c, "include_previous", h.includePrevious)
	if !ok {
		return
	}
	preview, err := h.service.Preview(today, includePrevious)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// StartRun launches the automated batch in the background.
func (h *BillingHandler) StartRun(c *gin.Context) {
	var payload struct {
		Today           string `json:"today"`
		IncludePrevious *bool  `json:"include_previous"`
		TriggeredBy     string `json:"triggered_by"`
	}
	// The body is optional; an empty one (io.EOF) keeps the defaults.
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
	}

	req := billing.RunRequest{IncludePreviousDay: h.includePrevious, TriggeredBy: payload.TriggeredBy}
	if payload.IncludePrevious != nil {
		req.IncludePreviousDay = *payload.IncludePrevious
	}
	if raw := strings.TrimSpace(payload.Today); raw != "" {
		d, err := calendar.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid today, expected YYYY-MM-DD"})
			return
		}
		req.Today = d
	}

	run, err := h.service.StartAutomatedRun(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	if run.Status == models.RunNothingToDo {
		c.JSON(http.StatusOK, gin.H{"run_id": run.ID.String(), "status": run.Status, "total": 0})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"run_id": run.ID.String(),
		"status": run.Status,
		"total":  run.Total,
	})
}

func (h *BillingHandler) GetRunProgress(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	run, err := h.service.RunStatus(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":          run.ID.String(),
		"processed_count": run.ProcessedCount,
		"recorded_count":  run.RecordedCount,
		"failed_count":    run.FailedCount,
		"total":           run.Total,
		"status":          run.Status,
		"run":             run,
	})
}
