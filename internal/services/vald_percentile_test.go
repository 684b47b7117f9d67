package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/errs"
)

func newPercentileService(t *testing.T) (ValdPercentileService, *gorm.DB, *types.Athlete) {
	t.Helper()
	db := newTestDB(t)
	r := newTestRepos(t, db)
	athlete := seedAthlete(t, db, nil)
	svc := NewValdPercentileService(db, newTestLogger(t), r.Athlete, r.Lookup, r.History)
	return svc, db, athlete
}

func cmjInput(athleteID uuid.UUID, testID string, metrics map[string]float64) SaveTestPercentilesInput {
	return SaveTestPercentilesInput{
		AthleteID:  athleteID,
		TestID:     testID,
		TestType:   types.TestTypeCMJ,
		TestDate:   time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		PlayLevel:  string(types.PlayLevelCollege),
		RawMetrics: metrics,
	}
}

func TestSaveTestPercentilesRanksAgainstBothCohorts(t *testing.T) {
	svc, db, athlete := newPercentileService(t)

	// Highest entry at or below the raw value wins.
	for _, row := range []struct {
		level string
		value float64
		pct   int
	}{
		{string(types.PlayLevelCollege), 40.0, 25},
		{string(types.PlayLevelCollege), 45.0, 50},
		{string(types.PlayLevelCollege), 50.0, 75},
		{types.PlayLevelOverall, 45.0, 60},
	} {
		seedLookupRow(t, db, "bodymass_relative_takeoff_power_trial_value", row.level, row.value, row.pct)
	}

	out, err := svc.SaveTestPercentiles(context.Background(), cmjInput(athlete.ID, "test-1", map[string]float64{
		"bodymass_relative_takeoff_power_trial_value": 45.2,
	}))
	if err != nil {
		t.Fatalf("SaveTestPercentiles: %v", err)
	}
	if out.MetricsSaved != 1 {
		t.Fatalf("metrics saved: want=1 got=%d", out.MetricsSaved)
	}

	var row types.AthletePercentileHistory
	if err := db.Where("athlete_id = ? AND test_id = ?", athlete.ID, "test-1").First(&row).Error; err != nil {
		t.Fatalf("load history row: %v", err)
	}
	if row.PercentilePlayLevel != 50 {
		t.Fatalf("play-level percentile: want=50 got=%d", row.PercentilePlayLevel)
	}
	if row.PercentileOverall != 60 {
		t.Fatalf("overall percentile: want=60 got=%d", row.PercentileOverall)
	}
	if row.Value != 45.2 {
		t.Fatalf("stored raw value: want=45.2 got=%v", row.Value)
	}
}

func TestSaveTestPercentilesMissingReferenceMeansZero(t *testing.T) {
	svc, db, athlete := newPercentileService(t)

	out, err := svc.SaveTestPercentiles(context.Background(), cmjInput(athlete.ID, "test-1", map[string]float64{
		"bodymass_relative_takeoff_power_trial_value": 45.2,
	}))
	if err != nil {
		t.Fatalf("SaveTestPercentiles: %v", err)
	}
	if out.MetricsSaved != 1 {
		t.Fatalf("metrics saved: want=1 got=%d", out.MetricsSaved)
	}

	var row types.AthletePercentileHistory
	if err := db.Where("athlete_id = ?", athlete.ID).First(&row).Error; err != nil {
		t.Fatalf("load history row: %v", err)
	}
	if row.PercentilePlayLevel != 0 || row.PercentileOverall != 0 {
		t.Fatalf("percentiles without reference data: want=0/0 got=%d/%d",
			row.PercentilePlayLevel, row.PercentileOverall)
	}
}

func TestSaveTestPercentilesSkipsAbsentMetrics(t *testing.T) {
	svc, _, athlete := newPercentileService(t)

	out, err := svc.SaveTestPercentiles(context.Background(), cmjInput(athlete.ID, "test-1", map[string]float64{
		// Only one of CMJ's two tracked metrics is present.
		"peak_takeoff_power_trial_value": 4100,
	}))
	if err != nil {
		t.Fatalf("SaveTestPercentiles: %v", err)
	}
	if out.MetricsSaved != 1 {
		t.Fatalf("metrics saved: want=1 got=%d", out.MetricsSaved)
	}
	if out.MetricsSkipped != 1 {
		t.Fatalf("metrics skipped: want=1 got=%d", out.MetricsSkipped)
	}
}

func TestSaveTestPercentilesUpsertIsIdempotent(t *testing.T) {
	svc, db, athlete := newPercentileService(t)

	in := cmjInput(athlete.ID, "test-1", map[string]float64{
		"bodymass_relative_takeoff_power_trial_value": 45.2,
	})
	for i := 0; i < 3; i++ {
		if _, err := svc.SaveTestPercentiles(context.Background(), in); err != nil {
			t.Fatalf("SaveTestPercentiles run %d: %v", i, err)
		}
	}

	var count int64
	if err := db.Model(&types.AthletePercentileHistory{}).Where("athlete_id = ?", athlete.ID).Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows after repeated saves: want=1 got=%d", count)
	}
}

func TestSaveTestPercentilesNewPlayLevelAddsRow(t *testing.T) {
	svc, db, athlete := newPercentileService(t)

	in := cmjInput(athlete.ID, "test-1", map[string]float64{
		"bodymass_relative_takeoff_power_trial_value": 45.2,
	})
	if _, err := svc.SaveTestPercentiles(context.Background(), in); err != nil {
		t.Fatalf("first save: %v", err)
	}

	in.PlayLevel = string(types.PlayLevelPro)
	if _, err := svc.SaveTestPercentiles(context.Background(), in); err != nil {
		t.Fatalf("second save: %v", err)
	}

	var count int64
	if err := db.Model(&types.AthletePercentileHistory{}).Where("athlete_id = ? AND test_id = ?", athlete.ID, "test-1").Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("rows across play levels: want=2 got=%d", count)
	}
}

func TestSaveTestPercentilesRejectsBadInput(t *testing.T) {
	svc, _, athlete := newPercentileService(t)

	cases := []struct {
		name string
		in   SaveTestPercentilesInput
	}{
		{"missing test id", SaveTestPercentilesInput{AthleteID: athlete.ID, TestType: types.TestTypeCMJ, PlayLevel: "College"}},
		{"missing athlete", SaveTestPercentilesInput{TestID: "t", TestType: types.TestTypeCMJ, PlayLevel: "College"}},
		{"unknown test type", SaveTestPercentilesInput{AthleteID: athlete.ID, TestID: "t", TestType: "SPRINT", PlayLevel: "College"}},
		{"composite type", SaveTestPercentilesInput{AthleteID: athlete.ID, TestID: "t", TestType: types.TestTypeForceProfile, PlayLevel: "College"}},
		{"missing play level", SaveTestPercentilesInput{AthleteID: athlete.ID, TestID: "t", TestType: types.TestTypeCMJ}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SaveTestPercentiles(context.Background(), tc.in)
			if !errors.Is(err, errs.ErrInvalidArgument) {
				t.Fatalf("want ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestIngestTestResultUsesAthletePlayLevel(t *testing.T) {
	svc, db, athlete := newPercentileService(t)

	seedLookupRow(t, db, "hop_mean_rsi_trial_value", string(types.PlayLevelCollege), 2.0, 40)

	_, err := svc.IngestTestResult(context.Background(), types.TestResult{
		TestID:     "hj-1",
		TestType:   types.TestTypeHJ,
		AthleteID:  athlete.ID,
		RecordedAt: time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC),
		RawMetrics: map[string]float64{"hop_mean_rsi_trial_value": 2.3},
	})
	if err != nil {
		t.Fatalf("IngestTestResult: %v", err)
	}

	var row types.AthletePercentileHistory
	if err := db.Where("athlete_id = ? AND test_id = ?", athlete.ID, "hj-1").First(&row).Error; err != nil {
		t.Fatalf("load history row: %v", err)
	}
	if row.PlayLevel != string(types.PlayLevelCollege) {
		t.Fatalf("play level: want=%q got=%q", types.PlayLevelCollege, row.PlayLevel)
	}
	if row.PercentilePlayLevel != 40 {
		t.Fatalf("percentile: want=40 got=%d", row.PercentilePlayLevel)
	}
}
