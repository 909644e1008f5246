package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"billing-reminder-backend/internal/calendar"
	"billing-reminder-backend/internal/repository"
	"billing-reminder-backend/internal/services/billing"
	"billing-reminder-backend/internal/services/classification"
	"billing-reminder-backend/internal/services/dispatch"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type BillingHandler struct {
	service         *billing.BillingService
	includePrevious bool
	logger          zerolog.Logger
}

// NewBillingHandler builds the handler; includePrevious is the default for
// runs and previews that do not say otherwise.
func NewBillingHandler(s *billing.BillingService, includePrevious bool, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{service: s, includePrevious: includePrevious, logger: logger}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrInvoiceNotFound),
		errors.Is(err, repository.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrInvalidInvoice),
		errors.Is(err, billing.ErrInvalidKind),
		errors.Is(err, billing.ErrInvalidTemplate),
		errors.Is(err, billing.ErrEmptyFile),
		errors.Is(err, billing.ErrMissingColumns),
		errors.Is(err, billing.ErrNoValidRows),
		errors.Is(err, calendar.ErrInvalidDate),
		errors.Is(err, classification.ErrInvalidToday):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrInvoicePaid),
		errors.Is(err, dispatch.ErrBatchInProgress):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrNoContact):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *BillingHandler) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ID"})
		return uuid.Nil, false
	}
	return id, true
}

// queryDate reads an optional YYYY-MM-DD parameter; absent means today.
func queryDate(c *gin.Context, key string) (calendar.Date, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return calendar.Date{}, true
	}
	d, err := calendar.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key + ", expected YYYY-MM-DD"})
		return calendar.Date{}, false
	}
	return d, true
}

func queryBool(c *gin.Context, key string, fallback bool) (bool, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return false, false
	}
	return v, true
}

func (h *BillingHandler) Dashboard(c *gin.Context) {
	today, ok := queryDate(c, "today")
	if !ok {
		return
	}
	stats, err := h.service.DashboardStats(today)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
