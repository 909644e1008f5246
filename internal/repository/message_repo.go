package repository

import (
	"context"
	"errors"

	"billing-reminder-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrMessageExists = errors.New("message already recorded")

// MessageRepository is the dispatch ledger. It only ever inserts.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Append(ctx context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", msg.ID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrMessageExists
	}
	return r.db.WithContext(ctx).Create(msg).Error
}

type MessageFilter struct {
	InvoiceID *uuid.UUID
	RunID     *uuid.UUID
	Kind      models.MessageKind
	Status    models.DeliveryStatus
	Limit     int
}

// List returns ledger entries newest first.
func (r *MessageRepository) List(filter MessageFilter) ([]models.Message, error) {
	var msgs []models.Message
	q := r.db.Model(&models.Message{})
	if filter.InvoiceID != nil {
		q = q.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if filter.RunID != nil {
		q = q.Where("dispatch_run_id = ?", *filter.RunID)
	}
	if filter.Kind != "" {
		q = q.Where("message_type = ?", filter.Kind)
	}
	if filter.Status != "" {
		q = q.Where("delivery_status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	err := q.Order("sent_at DESC").Limit(limit).Find(&msgs).Error
	return msgs, err
}

type MessageStats struct {
	Total     int64 `json:"total"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
}

// Stats counts entries by outcome. Sent, delivered and read all count as delivered.
func (r *MessageRepository) Stats() (MessageStats, error) {
	var stats MessageStats
	var rows []struct {
		DeliveryStatus models.DeliveryStatus
		Count          int64
	}
	err := r.db.Model(&models.Message{}).
		Select("delivery_status, COUNT(*) AS count").
		Group("delivery_status").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.DeliveryStatus {
		case models.DeliverySent, models.DeliveryDelivered, models.DeliveryRead:
			stats.Delivered += row.Count
		case models.DeliveryFailed:
			stats.Failed += row.Count
		default:
			stats.Pending += row.Count
		}
	}
	return stats, nil
}
