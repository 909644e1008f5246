package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
	DeliveryFailed    DeliveryStatus = "failed"
)

type MessageKind string

const (
	KindReminder MessageKind = "reminder"
	KindOverdue  MessageKind = "overdue"
	KindManual   MessageKind = "manual"
)

// Message is one ledger entry. Rows are inserted once and never updated;
// a resend produces a new row.
type Message struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID         uuid.UUID      `gorm:"type:uuid;index" json:"invoice_id"`
	DispatchRunID     *uuid.UUID     `gorm:"type:uuid;index" json:"dispatch_run_id,omitempty"`
	CustomerName      string         `json:"customer_name"`
	Destination       string         `json:"destination"`
	Channel           Channel        `gorm:"type:varchar(16)" json:"channel"`
	Content           string         `json:"content"`
	SentAt            time.Time      `gorm:"index" json:"sent_at"`
	DeliveryStatus    DeliveryStatus `gorm:"type:varchar(16);index" json:"delivery_status"`
	MessageType       MessageKind    `gorm:"type:varchar(16);index" json:"message_type"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	Error             string         `json:"error,omitempty"`
	ProviderMeta      datatypes.JSON `json:"provider_meta,omitempty"`
}
