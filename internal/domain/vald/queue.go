package vald

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// ProfileQueueItem records one VALD profile-creation attempt. The partial
// unique index on athlete_id (status pending/processing) is what makes the
// per-athlete single-in-flight guard a database invariant instead of a
// check-then-act.
type ProfileQueueItem struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	AthleteID    uuid.UUID   `gorm:"type:uuid;not null;column:athlete_id;index" json:"athlete_id"`
	Status       QueueStatus `gorm:"not null;default:'pending';column:status" json:"status"`
	RetryCount   int         `gorm:"not null;default:0;column:retry_count" json:"retry_count"`
	ErrorMessage *string     `gorm:"column:error_message" json:"error_message,omitempty"`
	ProcessedAt  *time.Time  `gorm:"column:processed_at" json:"processed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (q *ProfileQueueItem) BeforeCreate(*gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

func (ProfileQueueItem) TableName() string { return "vald_profile_queue" }
