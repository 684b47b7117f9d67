package athletes

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PlayLevel is the competitive level a percentile cohort is keyed by.
type PlayLevel string

const (
	PlayLevelYouth      PlayLevel = "Youth"
	PlayLevelHighSchool PlayLevel = "High School"
	PlayLevelCollege    PlayLevel = "College"
	PlayLevelPro        PlayLevel = "Pro"
)

func (p PlayLevel) Valid() bool {
	switch p {
	case PlayLevelYouth, PlayLevelHighSchool, PlayLevelCollege, PlayLevelPro:
		return true
	}
	return false
}

// Athlete is the local athlete record. The vald_* fields are the external
// identity link: vald_profile_id is set once resolution has completed,
// vald_sync_id may be set earlier (creation submitted, id not yet assigned).
// Only the profile link service writes these fields.
type Athlete struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName string     `gorm:"not null;column:first_name" json:"first_name"`
	LastName  string     `gorm:"not null;column:last_name" json:"last_name"`
	Email     string     `gorm:"index;column:email" json:"email"`
	BirthDate *time.Time `gorm:"column:birth_date" json:"birth_date,omitempty"`
	Sex       string     `gorm:"column:sex" json:"sex"`
	PlayLevel PlayLevel  `gorm:"column:play_level" json:"play_level"`

	ValdProfileID        *string        `gorm:"column:vald_profile_id;index" json:"vald_profile_id,omitempty"`
	ValdSyncID           *string        `gorm:"column:vald_sync_id" json:"vald_sync_id,omitempty"`
	ValdExternalID       *string        `gorm:"column:vald_external_id" json:"vald_external_id,omitempty"`
	ValdSyncedAt         *time.Time     `gorm:"column:vald_synced_at" json:"vald_synced_at,omitempty"`
	ValdCompositeScore   *float64       `gorm:"column:vald_composite_score" json:"vald_composite_score,omitempty"`
	ValdCompositeHistory datatypes.JSON `gorm:"column:vald_composite_history" json:"vald_composite_history,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (a *Athlete) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (Athlete) TableName() string { return "athletes" }

// CompositeScoreEntry is one element of vald_composite_history.
type CompositeScoreEntry struct {
	Score     float64   `json:"score"`
	Date      time.Time `json:"date"`
	TestTypes []string  `json:"test_types"`
}
