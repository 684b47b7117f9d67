package vald

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/dbctx"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

// HistoryFilter narrows ListByAthlete. Zero values mean "no constraint".
type HistoryFilter struct {
	PlayLevel    string
	TestIDs      []string
	ExcludeTypes []types.TestType
}

type PercentileHistoryRepo interface {
	// Upsert writes the row keyed by (athlete_id, test_id, metric_name,
	// play_level): recomputation for the same key updates in place, a
	// different play level lands in a new row.
	Upsert(dbc dbctx.Context, row *types.AthletePercentileHistory) error
	Insert(dbc dbctx.Context, row *types.AthletePercentileHistory) error
	UpdatePercentiles(dbc dbctx.Context, id uuid.UUID, percentilePlayLevel, percentileOverall int) error
	ListByAthlete(dbc dbctx.Context, athleteID uuid.UUID, filter HistoryFilter) ([]*types.AthletePercentileHistory, error)
	LatestByTestType(dbc dbctx.Context, athleteID uuid.UUID, testType types.TestType, playLevel string, after time.Time) (*types.AthletePercentileHistory, error)
	LatestForceProfileDate(dbc dbctx.Context, athleteID uuid.UUID, playLevel string) (*time.Time, error)
	CountByTestAndLevel(dbc dbctx.Context, athleteID uuid.UUID, testID string, playLevel string) (int64, error)
}

type percentileHistoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPercentileHistoryRepo(db *gorm.DB, baseLog *logger.Logger) PercentileHistoryRepo {
	return &percentileHistoryRepo{db: db, log: baseLog.With("repo", "PercentileHistoryRepo")}
}

func (r *percentileHistoryRepo) Upsert(dbc dbctx.Context, row *types.AthletePercentileHistory) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "athlete_id"},
				{Name: "test_id"},
				{Name: "metric_name"},
				{Name: "play_level"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"test_type",
				"test_date",
				"value",
				"percentile_play_level",
				"percentile_overall",
				"updated_at",
			}),
		}).
		Create(row).Error
}

func (r *percentileHistoryRepo) Insert(dbc dbctx.Context, row *types.AthletePercentileHistory) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Create(row).Error
}

func (r *percentileHistoryRepo) UpdatePercentiles(dbc dbctx.Context, id uuid.UUID, percentilePlayLevel, percentileOverall int) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.AthletePercentileHistory{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"percentile_play_level": percentilePlayLevel,
			"percentile_overall":    percentileOverall,
		}).Error
}

func (r *percentileHistoryRepo) ListByAthlete(dbc dbctx.Context, athleteID uuid.UUID, filter HistoryFilter) ([]*types.AthletePercentileHistory, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Ctx).Where("athlete_id = ?", athleteID)
	if filter.PlayLevel != "" {
		q = q.Where("play_level = ?", filter.PlayLevel)
	}
	if len(filter.TestIDs) > 0 {
		q = q.Where("test_id IN ?", filter.TestIDs)
	}
	if len(filter.ExcludeTypes) > 0 {
		q = q.Where("test_type NOT IN ?", filter.ExcludeTypes)
	}
	var rows []*types.AthletePercentileHistory
	if err := q.Order("test_date DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *percentileHistoryRepo) LatestByTestType(dbc dbctx.Context, athleteID uuid.UUID, testType types.TestType, playLevel string, after time.Time) (*types.AthletePercentileHistory, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var row types.AthletePercentileHistory
	err := txx.WithContext(dbc.Ctx).
		Where("athlete_id = ? AND test_type = ? AND play_level = ? AND test_date > ?", athleteID, testType, playLevel, after).
		Order("test_date DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *percentileHistoryRepo) LatestForceProfileDate(dbc dbctx.Context, athleteID uuid.UUID, playLevel string) (*time.Time, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var row types.AthletePercentileHistory
	err := txx.WithContext(dbc.Ctx).
		Where("athlete_id = ? AND test_type = ? AND play_level = ?", athleteID, types.TestTypeForceProfile, playLevel).
		Order("test_date DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row.TestDate, nil
}

func (r *percentileHistoryRepo) CountByTestAndLevel(dbc dbctx.Context, athleteID uuid.UUID, testID string, playLevel string) (int64, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var count int64
	err := txx.WithContext(dbc.Ctx).
		Model(&types.AthletePercentileHistory{}).
		Where("athlete_id = ? AND test_id = ? AND play_level = ?", athleteID, testID, playLevel).
		Count(&count).Error
	return count, err
}
