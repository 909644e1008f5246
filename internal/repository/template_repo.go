package repository

import (
	"time"

	"billing-reminder-backend/internal/models"
	"billing-reminder-backend/internal/templates"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetPair returns the stored templates, falling back to the defaults for
// any kind never saved.
func (r *TemplateRepository) GetPair() (templates.Pair, error) {
	pair := templates.Defaults()

	var rows []models.MessageTemplate
	if err := r.db.Where("type IN ?", []models.MessageKind{models.KindReminder, models.KindOverdue}).Find(&rows).Error; err != nil {
		return pair, err
	}
	for _, row := range rows {
		switch row.Type {
		case models.KindReminder:
			pair.Reminder = row.Content
		case models.KindOverdue:
			pair.Overdue = row.Content
		}
	}
	return pair, nil
}

func (r *TemplateRepository) SavePair(pair templates.Pair) error {
	now := time.Now()
	rows := []models.MessageTemplate{
		{Type: models.KindReminder, Name: "Lembrete de vencimento", Content: pair.Reminder, UpdatedAt: now},
		{Type: models.KindOverdue, Name: "Cobrança em atraso", Content: pair.Overdue, UpdatedAt: now},
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "content", "updated_at"}),
	}).Create(&rows).Error
}
