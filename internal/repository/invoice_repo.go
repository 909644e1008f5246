package repository

import (
	"errors"
	"strings"
	"time"

	"billing-reminder-backend/internal/calendar"
	"billing-reminder-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrInvoiceNotFound = errors.New("invoice not found")

// Invoice list filters.
const (
	StatusAll     = ""
	StatusPaid    = "paid"
	StatusUnpaid  = "unpaid"
	StatusPending = "pending"
	StatusOverdue = "overdue"
)

type InvoiceFilter struct {
	Status string
	Query  string
	// Today splits unpaid invoices into pending and overdue.
	Today calendar.Date
}

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) Create(inv *models.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	return r.db.Create(inv).Error
}

// GetByID fetch a single invoice by ID
func (r *InvoiceRepository) GetByID(id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.First(&invoice, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// ListUnpaid returns every open invoice in a stable order; the dispatch
// queue keeps this order inside each bucket.
func (r *InvoiceRepository) ListUnpaid() ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Where("is_paid = ?", false).Order("due_date ASC, created_at ASC").Find(&invoices).Error
	return invoices, err
}

// List used for the dashboard table with optional filters
func (r *InvoiceRepository) List(filter InvoiceFilter) ([]models.Invoice, error) {
	var invoices []models.Invoice

	q := r.db.Model(&models.Invoice{})

	switch filter.Status {
	case StatusPaid:
		q = q.Where("is_paid = ?", true)
	case StatusUnpaid:
		q = q.Where("is_paid = ?", false)
	case StatusPending:
		q = q.Where("is_paid = ? AND due_date >= ?", false, filter.Today)
	case StatusOverdue:
		q = q.Where("is_paid = ? AND due_date < ?", false, filter.Today)
	}

	if s := strings.TrimSpace(filter.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(customer_name) LIKE ? OR LOWER(customer_code) LIKE ? OR LOWER(order_number) LIKE ?", like, like, like)
	}

	err := q.Order("due_date ASC, created_at ASC").Find(&invoices).Error
	return invoices, err
}

// ListUnpaidWithOrder returns open invoices that carry an order number.
func (r *InvoiceRepository) ListUnpaidWithOrder() ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Where("is_paid = ? AND order_number <> ?", false, "").Find(&invoices).Error
	return invoices, err
}

// MarkPaid flips an invoice to paid and writes the audit entry in the same
// transaction. changed is false when it was already paid.
func (r *InvoiceRepository) MarkPaid(id uuid.UUID, paidAt time.Time, performedBy, reason string) (inv *models.Invoice, changed bool, err error) {
	err = r.db.Transaction(func(tx *gorm.DB) error {
		var current models.Invoice
		if err := tx.First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvoiceNotFound
			}
			return err
		}
		inv = &current
		if current.IsPaid {
			return nil
		}

		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND is_paid = ?", id, false).
			Updates(map[string]interface{}{
				"is_paid": true,
				"paid_at": paidAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		audit := models.InvoiceAuditLog{
			ID:          uuid.New(),
			InvoiceID:   id,
			Action:      models.AuditActionMarkedPaid,
			PerformedBy: performedBy,
			Reason:      reason,
			CreatedAt:   paidAt,
		}
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}
		current.IsPaid = true
		current.PaidAt = &paidAt
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return inv, changed, nil
}

func (r *InvoiceRepository) AuditLog(invoiceID uuid.UUID) ([]models.InvoiceAuditLog, error) {
	var logs []models.InvoiceAuditLog
	err := r.db.Where("invoice_id = ?", invoiceID).Order("created_at ASC").Find(&logs).Error
	return logs, err
}

type InvoiceStats struct {
	Total          int64           `json:"total"`
	PaidCount      int64           `json:"paid_count"`
	PaidSum        decimal.Decimal `json:"paid_sum"`
	PendingCount   int64           `json:"pending_count"`
	PendingSum     decimal.Decimal `json:"pending_sum"`
	OverdueCount   int64           `json:"overdue_count"`
	OverdueSum     decimal.Decimal `json:"overdue_sum"`
	OutstandingSum decimal.Decimal `json:"outstanding_sum"`
}

type statRow struct {
	Status string
	Count  int64
	Sum    decimal.Decimal
}

func (r *InvoiceRepository) Stats(today calendar.Date) (InvoiceStats, error) {
	var stats InvoiceStats
	var rows []statRow

	err := r.db.Model(&models.Invoice{}).
		Select(`CASE WHEN is_paid THEN 'paid' WHEN due_date < ? THEN 'overdue' ELSE 'pending' END AS status,
			COUNT(*) AS count, COALESCE(SUM(amount),0) AS sum`, today).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}

	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case StatusPaid:
			stats.PaidCount = row.Count
			stats.PaidSum = row.Sum
		case StatusPending:
			stats.PendingCount = row.Count
			stats.PendingSum = row.Sum
		case StatusOverdue:
			stats.OverdueCount = row.Count
			stats.OverdueSum = row.Sum
		}
	}
	stats.OutstandingSum = stats.PendingSum.Add(stats.OverdueSum)
	return stats, nil
}
