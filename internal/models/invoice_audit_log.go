package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditActionMarkedPaid = "marked_paid"

	AuditReasonManual = "manual"
	AuditReasonImport = "import_reconciliation"
)

type InvoiceAuditLog struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID   uuid.UUID `gorm:"type:uuid;index" json:"invoice_id"`
	Action      string    `json:"action"`
	PerformedBy string    `json:"performed_by"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}
