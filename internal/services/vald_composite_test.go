package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gorm.io/gorm"

	types "github.com/apexlab/apex-backend/internal/domain"
)

func newCompositeService(t *testing.T, db *gorm.DB) (CompositeService, testRepos) {
	t.Helper()
	r := newTestRepos(t, db)
	svc := NewCompositeService(db, newTestLogger(t), r.Athlete, r.History)
	return svc, r
}

func seedHistoryRow(t *testing.T, db *gorm.DB, athlete *types.Athlete, testType types.TestType, testID string, date time.Time, pct int) {
	t.Helper()
	row := &types.AthletePercentileHistory{
		AthleteID:           athlete.ID,
		TestID:              testID,
		TestType:            testType,
		TestDate:            date,
		PlayLevel:           string(athlete.PlayLevel),
		MetricName:          "Metric",
		Value:               float64(pct),
		PercentilePlayLevel: pct,
		PercentileOverall:   pct,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed history row: %v", err)
	}
}

func seedFullBattery(t *testing.T, db *gorm.DB, athlete *types.Athlete, base time.Time, pcts map[types.TestType]int) {
	t.Helper()
	for i, tt := range types.AllTestTypes {
		seedHistoryRow(t, db, athlete, tt, string(tt)+"-test", base.Add(time.Duration(i)*time.Hour), pcts[tt])
	}
}

func TestUpdateCompositeScoreMeansPlayLevelPercentiles(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newCompositeService(t, db)
	athlete := seedAthlete(t, db, nil)

	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	seedFullBattery(t, db, athlete, base, map[types.TestType]int{
		types.TestTypeCMJ:  80,
		types.TestTypeSJ:   70,
		types.TestTypeHJ:   60,
		types.TestTypePPU:  50,
		types.TestTypeIMTP: 90,
	})

	res, err := svc.UpdateCompositeScore(context.Background(), athlete.ID)
	if err != nil {
		t.Fatalf("UpdateCompositeScore: %v", err)
	}
	if res == nil {
		t.Fatalf("expected a composite, got nil")
	}
	if res.Score != 70 {
		t.Fatalf("composite score: want=70 got=%v", res.Score)
	}
	// The profile is dated by its newest contributing test.
	wantDate := base.Add(4 * time.Hour)
	if !res.TestDate.Equal(wantDate) {
		t.Fatalf("composite date: want=%v got=%v", wantDate, res.TestDate)
	}

	var row types.AthletePercentileHistory
	if err := db.Where("athlete_id = ? AND test_type = ?", athlete.ID, types.TestTypeForceProfile).First(&row).Error; err != nil {
		t.Fatalf("load force profile row: %v", err)
	}
	if row.PercentileOverall != 70 {
		t.Fatalf("force profile percentile: want=70 got=%d", row.PercentileOverall)
	}

	stored := loadAthlete(t, db, athlete.ID)
	if stored.ValdCompositeScore == nil || *stored.ValdCompositeScore != 70 {
		t.Fatalf("athlete composite score: want=70 got=%v", stored.ValdCompositeScore)
	}
	var entries []types.CompositeScoreEntry
	if err := json.Unmarshal(stored.ValdCompositeHistory, &entries); err != nil {
		t.Fatalf("decode composite history: %v", err)
	}
	if len(entries) != 1 || entries[0].Score != 70 {
		t.Fatalf("composite history: want one entry with score 70, got %+v", entries)
	}
}

func TestUpdateCompositeScoreRequiresAllFiveTests(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newCompositeService(t, db)
	athlete := seedAthlete(t, db, nil)

	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	// Four of five: no composite.
	for i, tt := range []types.TestType{types.TestTypeCMJ, types.TestTypeSJ, types.TestTypeHJ, types.TestTypePPU} {
		seedHistoryRow(t, db, athlete, tt, string(tt)+"-test", base.Add(time.Duration(i)*time.Hour), 50)
	}

	res, err := svc.UpdateCompositeScore(context.Background(), athlete.ID)
	if err != nil {
		t.Fatalf("UpdateCompositeScore: %v", err)
	}
	if res != nil {
		t.Fatalf("incomplete battery must not produce a composite, got %+v", res)
	}

	var count int64
	db.Model(&types.AthletePercentileHistory{}).Where("test_type = ?", types.TestTypeForceProfile).Count(&count)
	if count != 0 {
		t.Fatalf("force profile rows: want=0 got=%d", count)
	}
}

func TestUpdateCompositeScoreOnlyCountsTestsAfterLastProfile(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newCompositeService(t, db)
	athlete := seedAthlete(t, db, nil)

	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	seedFullBattery(t, db, athlete, base, map[types.TestType]int{
		types.TestTypeCMJ: 50, types.TestTypeSJ: 50, types.TestTypeHJ: 50,
		types.TestTypePPU: 50, types.TestTypeIMTP: 50,
	})
	if _, err := svc.UpdateCompositeScore(context.Background(), athlete.ID); err != nil {
		t.Fatalf("first composite: %v", err)
	}

	// No new tests since the profile: nothing to compute.
	res, err := svc.UpdateCompositeScore(context.Background(), athlete.ID)
	if err != nil {
		t.Fatalf("second composite: %v", err)
	}
	if res != nil {
		t.Fatalf("stale battery must not produce a second composite, got %+v", res)
	}

	// A full fresh battery produces a new, separate profile row.
	fresh := base.Add(48 * time.Hour)
	for i, tt := range types.AllTestTypes {
		seedHistoryRow(t, db, athlete, tt, string(tt)+"-retest", fresh.Add(time.Duration(i)*time.Hour), 80)
	}
	res, err = svc.UpdateCompositeScore(context.Background(), athlete.ID)
	if err != nil {
		t.Fatalf("third composite: %v", err)
	}
	if res == nil || res.Score != 80 {
		t.Fatalf("fresh composite: want score 80, got %+v", res)
	}

	var count int64
	db.Model(&types.AthletePercentileHistory{}).
		Where("athlete_id = ? AND test_type = ?", athlete.ID, types.TestTypeForceProfile).
		Count(&count)
	if count != 2 {
		t.Fatalf("force profile rows are append-only: want=2 got=%d", count)
	}

	stored := loadAthlete(t, db, athlete.ID)
	var entries []types.CompositeScoreEntry
	if err := json.Unmarshal(stored.ValdCompositeHistory, &entries); err != nil {
		t.Fatalf("decode composite history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("composite history entries: want=2 got=%d", len(entries))
	}
	if *stored.ValdCompositeScore != 80 {
		t.Fatalf("current composite: want=80 got=%v", *stored.ValdCompositeScore)
	}
}

func TestUpdateCompositeScoreRequiresPlayLevel(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newCompositeService(t, db)
	athlete := seedAthlete(t, db, func(a *types.Athlete) {
		a.PlayLevel = ""
	})

	if _, err := svc.UpdateCompositeScore(context.Background(), athlete.ID); err == nil {
		t.Fatalf("missing play level must fail")
	}
}
