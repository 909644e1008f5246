package models

import (
	"strings"
	"time"

	"billing-reminder-backend/internal/calendar"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

func (c Channel) Valid() bool {
	return c == ChannelWhatsApp || c == ChannelEmail
}

type Invoice struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerName   string          `gorm:"index" json:"customer_name"`
	CustomerCode   string          `json:"customer_code,omitempty"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2)" json:"amount"`
	DueDate        calendar.Date   `gorm:"type:date;index" json:"due_date"`
	IsPaid         bool            `gorm:"index" json:"is_paid"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	PaymentLink    string          `json:"payment_link,omitempty"`
	OrderNumber    string          `gorm:"index" json:"order_number,omitempty"`
	ContactChannel Channel         `gorm:"type:varchar(16)" json:"contact_channel"`
	WhatsAppNumber string          `json:"whatsapp_number,omitempty"`
	Email          string          `json:"email,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Contact resolves the address for the invoice's selected channel.
// ok is false when that channel has no usable address.
func (i Invoice) Contact() (Contact, bool) {
	switch i.ContactChannel {
	case ChannelWhatsApp:
		if n := strings.TrimSpace(i.WhatsAppNumber); n != "" {
			return WhatsApp{Number: n}, true
		}
	case ChannelEmail:
		if e := strings.TrimSpace(i.Email); e != "" {
			return Email{Address: e}, true
		}
	}
	return nil, false
}

// Contact is either WhatsApp or Email.
type Contact interface {
	Channel() Channel
	Destination() string
	isContact()
}

type WhatsApp struct {
	Number string
}

func (WhatsApp) Channel() Channel      { return ChannelWhatsApp }
func (w WhatsApp) Destination() string { return w.Number }
func (WhatsApp) isContact()            {}

type Email struct {
	Address string
}

func (Email) Channel() Channel      { return ChannelEmail }
func (e Email) Destination() string { return e.Address }
func (Email) isContact()            {}
