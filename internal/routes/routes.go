package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	handler "billing-reminder-backend/internal/handlers"
	"billing-reminder-backend/internal/services/billing"
)

func RegisterRoutes(r *gin.Engine, svc *billing.BillingService, includePrevious bool, logger zerolog.Logger) {
	h := handler.NewBillingHandler(svc, includePrevious, logger)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api.GET("/dashboard", h.Dashboard)

	// Invoice routes
	invoices := api.Group("/invoices")
	{
		invoices.POST("", h.CreateInvoice)
		invoices.GET("", h.ListInvoices)
		invoices.POST("/upload", h.UploadInvoices)
		invoices.GET("/:id", h.GetInvoice)
		invoices.POST("/:id/paid", h.MarkPaid)
		invoices.POST("/:id/send", h.SendInvoiceMessage)
	}

	api.GET("/messages", h.ListMessages)

	api.GET("/templates", h.GetTemplates)
	api.PUT("/templates", h.SaveTemplates)

	// Automated dispatch
	dispatch := api.Group("/dispatch")
	dispatch.GET("/preview", h.Preview)
	dispatch.POST("/runs", h.StartRun)
	dispatch.GET("/runs/:id", h.GetRunProgress)
}
