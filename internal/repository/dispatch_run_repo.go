package repository

import (
	"errors"

	"billing-reminder-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("dispatch run not found")

type DispatchRunRepository struct {
	db *gorm.DB
}

func NewDispatchRunRepository(db *gorm.DB) *DispatchRunRepository {
	return &DispatchRunRepository{db: db}
}

func (r *DispatchRunRepository) Create(run *models.DispatchRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	return r.db.Create(run).Error
}

func (r *DispatchRunRepository) GetByID(id uuid.UUID) (*models.DispatchRun, error) {
	var run models.DispatchRun
	err := r.db.First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Latest returns the most recently started run, or nil when none exists.
func (r *DispatchRunRepository) Latest() (*models.DispatchRun, error) {
	var run models.DispatchRun
	err := r.db.Order("started_at DESC").Limit(1).Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

// UpdateProgress updates the counters of a running batch
func (r *DispatchRunRepository) UpdateProgress(id uuid.UUID, processed, recorded, failed int) error {
	return r.db.Model(&models.DispatchRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_count": processed,
			"recorded_count":  recorded,
			"failed_count":    failed,
		}).Error
}

// Complete persists the final state of a run
func (r *DispatchRunRepository) Complete(run *models.DispatchRun) error {
	return r.db.Model(&models.DispatchRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"processed_count": run.ProcessedCount,
			"recorded_count":  run.RecordedCount,
			"failed_count":    run.FailedCount,
			"skipped_count":   run.SkippedCount,
			"status":          run.Status,
			"error":           run.Error,
			"completed_at":    run.CompletedAt,
		}).Error
}
