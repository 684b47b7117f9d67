package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/apexlab/apex-backend/internal/data/repos"
	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/dbctx"
	"github.com/apexlab/apex-backend/internal/platform/errs"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

// compositeMetricName labels the synthetic history row a force profile
// produces. It never collides with a tracked metric display name.
const compositeMetricName = "Composite Score"

// CompositeResult reports one computed force profile.
type CompositeResult struct {
	AthleteID uuid.UUID      `json:"athlete_id"`
	PlayLevel string         `json:"play_level"`
	Score     float64        `json:"score"`
	TestDate  time.Time      `json:"test_date"`
	TestTypes []string       `json:"test_types"`
	Inputs    map[string]int `json:"inputs"`
}

// CompositeService derives an athlete's force profile: the mean of the
// play-level percentiles of the latest result of each raw test type, taken
// only from tests newer than the previous force profile. Force profiles are
// append-only history rows, never updated.
type CompositeService interface {
	// UpdateCompositeScore returns (nil, nil) when fewer than all five raw
	// test types have fresh results, so callers can invoke it after every
	// ingest without guarding.
	UpdateCompositeScore(ctx context.Context, athleteID uuid.UUID) (*CompositeResult, error)
}

type compositeService struct {
	db       *gorm.DB
	log      *logger.Logger
	athletes repos.AthleteRepo
	history  repos.PercentileHistoryRepo
}

func NewCompositeService(
	db *gorm.DB,
	baseLog *logger.Logger,
	athleteRepo repos.AthleteRepo,
	historyRepo repos.PercentileHistoryRepo,
) CompositeService {
	return &compositeService{
		db:       db,
		log:      baseLog.With("service", "CompositeService"),
		athletes: athleteRepo,
		history:  historyRepo,
	}
}

func (s *compositeService) UpdateCompositeScore(ctx context.Context, athleteID uuid.UUID) (*CompositeResult, error) {
	dbc := dbctx.New(ctx)

	athlete, err := s.athletes.GetByID(dbc, athleteID)
	if err != nil {
		return nil, fmt.Errorf("load athlete %s: %w", athleteID, err)
	}
	if !athlete.PlayLevel.Valid() {
		return nil, fmt.Errorf("athlete %s: %w: play level %q", athleteID, errs.ErrInvalidArgument, athlete.PlayLevel)
	}
	playLevel := string(athlete.PlayLevel)

	// Only tests recorded since the last force profile count toward a new
	// one. No previous profile means everything counts.
	var after time.Time
	lastDate, err := s.history.LatestForceProfileDate(dbc, athleteID, playLevel)
	if err != nil {
		return nil, fmt.Errorf("latest force profile date: %w", err)
	}
	if lastDate != nil {
		after = *lastDate
	}

	inputs := make(map[string]int, len(types.AllTestTypes))
	testTypes := make([]string, 0, len(types.AllTestTypes))
	var sum float64
	var latest time.Time
	for _, tt := range types.AllTestTypes {
		row, err := s.history.LatestByTestType(dbc, athleteID, tt, playLevel, after)
		if err != nil {
			return nil, fmt.Errorf("latest %s result: %w", tt, err)
		}
		if row == nil {
			s.log.Debug("Force profile skipped, missing fresh test",
				"athlete_id", athleteID, "test_type", tt, "after", after)
			return nil, nil
		}
		inputs[string(tt)] = row.PercentilePlayLevel
		testTypes = append(testTypes, string(tt))
		sum += float64(row.PercentilePlayLevel)
		if row.TestDate.After(latest) {
			latest = row.TestDate
		}
	}

	score := sum / float64(len(types.AllTestTypes))
	rounded := int(math.Round(score))

	// The history row carries the composite under a synthetic test id so the
	// (athlete, test, metric, level) key stays unique per profile.
	row := &types.AthletePercentileHistory{
		AthleteID:           athleteID,
		TestID:              uuid.NewString(),
		TestType:            types.TestTypeForceProfile,
		TestDate:            latest,
		PlayLevel:           playLevel,
		MetricName:          compositeMetricName,
		Value:               score,
		PercentilePlayLevel: rounded,
		PercentileOverall:   rounded,
	}
	if err := s.history.Insert(dbc, row); err != nil {
		return nil, fmt.Errorf("insert force profile row: %w", err)
	}

	historyJSON, err := appendCompositeEntry(athlete.ValdCompositeHistory, types.CompositeScoreEntry{
		Score:     score,
		Date:      latest,
		TestTypes: testTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("encode composite history: %w", err)
	}
	if err := s.athletes.SetCompositeScore(dbc, athleteID, score, historyJSON); err != nil {
		return nil, fmt.Errorf("store composite score: %w", err)
	}

	s.log.Info("Force profile computed",
		"athlete_id", athleteID, "play_level", playLevel, "score", score, "test_date", latest)
	return &CompositeResult{
		AthleteID: athleteID,
		PlayLevel: playLevel,
		Score:     score,
		TestDate:  latest,
		TestTypes: testTypes,
		Inputs:    inputs,
	}, nil
}

func appendCompositeEntry(existing datatypes.JSON, entry types.CompositeScoreEntry) (datatypes.JSON, error) {
	var entries []types.CompositeScoreEntry
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &entries); err != nil {
			// A corrupt blob should not block new scores. Start over.
			entries = nil
		}
	}
	entries = append(entries, entry)
	out, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}
