package models

import "time"

type MessageTemplate struct {
	Type      MessageKind `gorm:"type:varchar(16);primaryKey" json:"type"`
	Name      string      `json:"name"`
	Content   string      `json:"content"`
	UpdatedAt time.Time   `json:"updated_at"`
}
