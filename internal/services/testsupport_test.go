package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/apexlab/apex-backend/internal/data/repos"
	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/dbctx"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

func dbc(t *testing.T) dbctx.Context {
	t.Helper()
	return dbctx.New(context.Background())
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

// newTestDB opens a per-test in-memory database with the same schema the
// postgres migration produces, including the partial unique in-flight index
// the queue repo depends on.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(
		&types.Athlete{},
		&types.ProfileQueueItem{},
		&types.PercentileLookup{},
		&types.AthletePercentileHistory{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_vald_profile_queue_inflight
		ON vald_profile_queue (athlete_id)
		WHERE status IN ('pending', 'processing')
	`).Error; err != nil {
		t.Fatalf("create in-flight index: %v", err)
	}
	return db
}

type testRepos struct {
	Athlete repos.AthleteRepo
	Queue   repos.ProfileQueueRepo
	Lookup  repos.PercentileLookupRepo
	History repos.PercentileHistoryRepo
}

func newTestRepos(t *testing.T, db *gorm.DB) testRepos {
	t.Helper()
	log := newTestLogger(t)
	return testRepos{
		Athlete: repos.NewAthleteRepo(db, log),
		Queue:   repos.NewProfileQueueRepo(db, log),
		Lookup:  repos.NewPercentileLookupRepo(db, log),
		History: repos.NewPercentileHistoryRepo(db, log),
	}
}

func seedAthlete(t *testing.T, db *gorm.DB, mutate func(*types.Athlete)) *types.Athlete {
	t.Helper()
	birth := time.Date(2002, 3, 14, 0, 0, 0, 0, time.UTC)
	athlete := &types.Athlete{
		FirstName: "Jordan",
		LastName:  "Reyes",
		Email:     "jordan.reyes@example.com",
		BirthDate: &birth,
		Sex:       "male",
		PlayLevel: types.PlayLevelCollege,
	}
	if mutate != nil {
		mutate(athlete)
	}
	if err := db.Create(athlete).Error; err != nil {
		t.Fatalf("seed athlete: %v", err)
	}
	return athlete
}

func seedLookupRow(t *testing.T, db *gorm.DB, column, playLevel string, value float64, percentile int) {
	t.Helper()
	row := &types.PercentileLookup{
		MetricColumn: column,
		PlayLevel:    playLevel,
		Value:        value,
		Percentile:   percentile,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed lookup row: %v", err)
	}
}
