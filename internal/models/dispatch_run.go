package models

import (
	"time"

	"billing-reminder-backend/internal/calendar"

	"github.com/google/uuid"
)

const (
	RunProcessing  = "processing"
	RunCompleted   = "completed"
	RunNothingToDo = "nothing_to_do"
	RunFailed      = "failed"
)

type DispatchRun struct {
	ID                 uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	RunDate            calendar.Date `gorm:"type:date;index" json:"run_date"`
	IncludePreviousDay bool          `json:"include_previous_day"`
	Total              int           `json:"total"`
	ProcessedCount     int           `json:"processed_count"`
	RecordedCount      int           `json:"recorded_count"`
	FailedCount        int           `json:"failed_count"`
	SkippedCount       int           `json:"skipped_count"`
	Error              string        `json:"error,omitempty"`
	Status             string        `gorm:"index" json:"status"`
	TriggeredBy        string        `json:"triggered_by"`
	StartedAt          time.Time     `json:"started_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
}
