package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/apexlab/apex-backend/internal/data/repos"
	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/dbctx"
	"github.com/apexlab/apex-backend/internal/platform/errs"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

// ValdPercentileService ranks a completed test's tracked metrics against
// the reference table and persists one history row per metric. Failures
// here propagate: a missing percentile row is a correctness gap the test
// ingestion caller must see.
type ValdPercentileService interface {
	SaveTestPercentiles(ctx context.Context, in SaveTestPercentilesInput) (*SaveTestPercentilesResult, error)
	IngestTestResult(ctx context.Context, result types.TestResult) (*SaveTestPercentilesResult, error)
	HistoryForAthlete(ctx context.Context, athleteID uuid.UUID, playLevel string) ([]*types.AthletePercentileHistory, error)
}

type SaveTestPercentilesInput struct {
	AthleteID  uuid.UUID
	TestID     string
	TestType   types.TestType
	TestDate   time.Time
	PlayLevel  string
	RawMetrics map[string]float64
}

type SaveTestPercentilesResult struct {
	MetricsSaved   int
	MetricsSkipped int
}

type valdPercentileService struct {
	db       *gorm.DB
	log      *logger.Logger
	athletes repos.AthleteRepo
	lookup   repos.PercentileLookupRepo
	history  repos.PercentileHistoryRepo
}

func NewValdPercentileService(
	db *gorm.DB,
	baseLog *logger.Logger,
	athletes repos.AthleteRepo,
	lookup repos.PercentileLookupRepo,
	history repos.PercentileHistoryRepo,
) ValdPercentileService {
	return &valdPercentileService{
		db:       db,
		log:      baseLog.With("service", "ValdPercentileService"),
		athletes: athletes,
		lookup:   lookup,
		history:  history,
	}
}

func (s *valdPercentileService) SaveTestPercentiles(ctx context.Context, in SaveTestPercentilesInput) (*SaveTestPercentilesResult, error) {
	if in.AthleteID == uuid.Nil || in.TestID == "" {
		return nil, fmt.Errorf("athlete id and test id required: %w", errs.ErrInvalidArgument)
	}
	if !in.TestType.Valid() {
		return nil, fmt.Errorf("unknown test type %q: %w", in.TestType, errs.ErrInvalidArgument)
	}
	if in.PlayLevel == "" {
		return nil, fmt.Errorf("play level required: %w", errs.ErrInvalidArgument)
	}

	tracked, err := TrackedMetrics(in.TestType)
	if err != nil {
		return nil, err
	}

	dbc := dbctx.New(ctx)
	out := &SaveTestPercentilesResult{}

	for _, metric := range tracked {
		value, ok := in.RawMetrics[metric.Column]
		if !ok {
			out.MetricsSkipped++
			continue
		}

		refColumn := metric.ReferenceColumn()

		pctLevel, err := s.lookup.LookupPercentile(dbc, refColumn, in.PlayLevel, value)
		if err != nil {
			return nil, fmt.Errorf("lookup %s percentile for %s: %w", in.PlayLevel, refColumn, err)
		}
		pctOverall, err := s.lookup.LookupPercentile(dbc, refColumn, types.PlayLevelOverall, value)
		if err != nil {
			return nil, fmt.Errorf("lookup overall percentile for %s: %w", refColumn, err)
		}

		row := &types.AthletePercentileHistory{
			AthleteID:           in.AthleteID,
			TestID:              in.TestID,
			TestType:            in.TestType,
			TestDate:            in.TestDate,
			PlayLevel:           in.PlayLevel,
			MetricName:          metric.DisplayName,
			Value:               value,
			PercentilePlayLevel: pctLevel,
			PercentileOverall:   pctOverall,
		}
		if err := s.history.Upsert(dbc, row); err != nil {
			return nil, fmt.Errorf("upsert percentile row for %s: %w", metric.DisplayName, err)
		}

		s.log.Debug("Percentile row saved",
			"athlete_id", in.AthleteID,
			"test_id", in.TestID,
			"metric", metric.DisplayName,
			"value", value,
			"percentile_play_level", pctLevel,
			"percentile_overall", pctOverall,
		)
		out.MetricsSaved++
	}

	return out, nil
}

// HistoryForAthlete lists stored percentile rows, newest test first.
// An empty playLevel returns every cohort.
func (s *valdPercentileService) HistoryForAthlete(ctx context.Context, athleteID uuid.UUID, playLevel string) ([]*types.AthletePercentileHistory, error) {
	return s.history.ListByAthlete(dbctx.New(ctx), athleteID, repos.HistoryFilter{PlayLevel: playLevel})
}

// IngestTestResult ranks a test using the athlete's current play level.
func (s *valdPercentileService) IngestTestResult(ctx context.Context, result types.TestResult) (*SaveTestPercentilesResult, error) {
	athlete, err := s.athletes.GetByID(dbctx.New(ctx), result.AthleteID)
	if err != nil {
		return nil, fmt.Errorf("load athlete %s: %w", result.AthleteID, err)
	}
	if !athlete.PlayLevel.Valid() {
		return nil, fmt.Errorf("athlete %s has no play level: %w", result.AthleteID, errs.ErrInvalidArgument)
	}
	return s.SaveTestPercentiles(ctx, SaveTestPercentilesInput{
		AthleteID:  result.AthleteID,
		TestID:     result.TestID,
		TestType:   result.TestType,
		TestDate:   result.RecordedAt,
		PlayLevel:  string(athlete.PlayLevel),
		RawMetrics: result.RawMetrics,
	})
}
