package vald

import (
	"errors"

	"gorm.io/gorm"

	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/dbctx"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

type PercentileLookupRepo interface {
	// LookupPercentile returns the highest percentile whose reference value
	// does not exceed value, for the metric and play level. No matching
	// reference row means percentile 0 by definition, not an error.
	LookupPercentile(dbc dbctx.Context, metricColumn, playLevel string, value float64) (int, error)
}

type percentileLookupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPercentileLookupRepo(db *gorm.DB, baseLog *logger.Logger) PercentileLookupRepo {
	return &percentileLookupRepo{db: db, log: baseLog.With("repo", "PercentileLookupRepo")}
}

func (r *percentileLookupRepo) LookupPercentile(dbc dbctx.Context, metricColumn, playLevel string, value float64) (int, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var row types.PercentileLookup
	err := txx.WithContext(dbc.Ctx).
		Where("metric_column = ? AND play_level = ? AND value <= ?", metricColumn, playLevel, value).
		Order("value DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Percentile, nil
}
