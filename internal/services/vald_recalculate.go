package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/apexlab/apex-backend/internal/data/repos"
	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/dbctx"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

// RecalculateResult summarizes one re-ranking pass.
type RecalculateResult struct {
	RowsExamined int `json:"rows_examined"`
	RowsUpdated  int `json:"rows_updated"`
	RowsSkipped  int `json:"rows_skipped"`
}

// RecalculateService re-ranks stored percentile rows against the current
// reference table, for use after the table is refreshed. Stored raw values
// stay untouched; only the two percentile columns move.
type RecalculateService interface {
	// RecalculateAthlete re-ranks the athlete's stored rows, optionally
	// restricted to the given test ids.
	RecalculateAthlete(ctx context.Context, athleteID uuid.UUID, testIDs ...string) (*RecalculateResult, error)
}

type recalculateService struct {
	db      *gorm.DB
	log     *logger.Logger
	lookup  repos.PercentileLookupRepo
	history repos.PercentileHistoryRepo
}

func NewRecalculateService(
	db *gorm.DB,
	baseLog *logger.Logger,
	lookupRepo repos.PercentileLookupRepo,
	historyRepo repos.PercentileHistoryRepo,
) RecalculateService {
	return &recalculateService{
		db:      db,
		log:     baseLog.With("service", "RecalculateService"),
		lookup:  lookupRepo,
		history: historyRepo,
	}
}

func (s *recalculateService) RecalculateAthlete(ctx context.Context, athleteID uuid.UUID, testIDs ...string) (*RecalculateResult, error) {
	dbc := dbctx.New(ctx)

	// Force profiles are derived rows; they are recomputed from fresh tests,
	// not re-ranked.
	rows, err := s.history.ListByAthlete(dbc, athleteID, repos.HistoryFilter{
		TestIDs:      testIDs,
		ExcludeTypes: []types.TestType{types.TestTypeForceProfile},
	})
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", athleteID, err)
	}

	out := &RecalculateResult{RowsExamined: len(rows)}
	for _, row := range rows {
		refColumn, ok := LookupColumnFor(row.TestType, row.MetricName)
		if !ok {
			// Metric no longer tracked. Leave the historical row as is.
			out.RowsSkipped++
			continue
		}

		pctLevel, err := s.lookup.LookupPercentile(dbc, refColumn, row.PlayLevel, row.Value)
		if err != nil {
			return nil, fmt.Errorf("re-rank %s for %s: %w", row.MetricName, row.PlayLevel, err)
		}
		pctOverall, err := s.lookup.LookupPercentile(dbc, refColumn, types.PlayLevelOverall, row.Value)
		if err != nil {
			return nil, fmt.Errorf("re-rank %s overall: %w", row.MetricName, err)
		}

		if pctLevel == row.PercentilePlayLevel && pctOverall == row.PercentileOverall {
			out.RowsSkipped++
			continue
		}
		if err := s.history.UpdatePercentiles(dbc, row.ID, pctLevel, pctOverall); err != nil {
			return nil, fmt.Errorf("update row %s: %w", row.ID, err)
		}
		out.RowsUpdated++
	}

	s.log.Info("Percentile history recalculated",
		"athlete_id", athleteID,
		"examined", out.RowsExamined,
		"updated", out.RowsUpdated,
		"skipped", out.RowsSkipped,
	)
	return out, nil
}
