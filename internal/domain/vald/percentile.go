package vald

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlayLevelOverall is the sentinel cohort for the global reference
// population in the percentile lookup table.
const PlayLevelOverall = "Overall"

// PercentileLookup is one row of the precomputed reference table mapping a
// metric value to a percentile rank within a cohort. Static data, never
// written by this backend.
type PercentileLookup struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MetricColumn string    `gorm:"not null;column:metric_column;index:idx_percentile_lookup_metric" json:"metric_column"`
	PlayLevel    string    `gorm:"not null;column:play_level;index:idx_percentile_lookup_metric" json:"play_level"`
	Value        float64   `gorm:"not null;column:value" json:"value"`
	Percentile   int       `gorm:"not null;column:percentile" json:"percentile"`
}

func (p *PercentileLookup) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (PercentileLookup) TableName() string { return "percentile_lookup" }

// AthletePercentileHistory holds one ranked metric per test. The composite
// unique index is the upsert key: recomputing the same test under the same
// play level updates in place, while a play-level change produces a new row.
type AthletePercentileHistory struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AthleteID           uuid.UUID `gorm:"type:uuid;not null;column:athlete_id;uniqueIndex:idx_percentile_history_key;index" json:"athlete_id"`
	TestID              string    `gorm:"not null;column:test_id;uniqueIndex:idx_percentile_history_key" json:"test_id"`
	TestType            TestType  `gorm:"not null;column:test_type" json:"test_type"`
	TestDate            time.Time `gorm:"not null;column:test_date" json:"test_date"`
	PlayLevel           string    `gorm:"not null;column:play_level;uniqueIndex:idx_percentile_history_key" json:"play_level"`
	MetricName          string    `gorm:"not null;column:metric_name;uniqueIndex:idx_percentile_history_key" json:"metric_name"`
	Value               float64   `gorm:"not null;column:value" json:"value"`
	PercentilePlayLevel int       `gorm:"not null;default:0;column:percentile_play_level" json:"percentile_play_level"`
	PercentileOverall   int       `gorm:"not null;default:0;column:percentile_overall" json:"percentile_overall"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (h *AthletePercentileHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

func (AthletePercentileHistory) TableName() string { return "athlete_percentile_history" }
