package repos

import (
	"gorm.io/gorm"

	"github.com/apexlab/apex-backend/internal/data/repos/athletes"
	"github.com/apexlab/apex-backend/internal/data/repos/vald"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

type AthleteRepo = athletes.AthleteRepo

type ProfileQueueRepo = vald.ProfileQueueRepo
type PercentileLookupRepo = vald.PercentileLookupRepo
type PercentileHistoryRepo = vald.PercentileHistoryRepo
type HistoryFilter = vald.HistoryFilter

func NewAthleteRepo(db *gorm.DB, baseLog *logger.Logger) AthleteRepo {
	return athletes.NewAthleteRepo(db, baseLog)
}

func NewProfileQueueRepo(db *gorm.DB, baseLog *logger.Logger) ProfileQueueRepo {
	return vald.NewProfileQueueRepo(db, baseLog)
}

func NewPercentileLookupRepo(db *gorm.DB, baseLog *logger.Logger) PercentileLookupRepo {
	return vald.NewPercentileLookupRepo(db, baseLog)
}

func NewPercentileHistoryRepo(db *gorm.DB, baseLog *logger.Logger) PercentileHistoryRepo {
	return vald.NewPercentileHistoryRepo(db, baseLog)
}
