package app

import (
	"gorm.io/gorm"

	"github.com/apexlab/apex-backend/internal/data/repos"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

type Repos struct {
	Athlete           repos.AthleteRepo
	ProfileQueue      repos.ProfileQueueRepo
	PercentileLookup  repos.PercentileLookupRepo
	PercentileHistory repos.PercentileHistoryRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Athlete:           repos.NewAthleteRepo(db, log),
		ProfileQueue:      repos.NewProfileQueueRepo(db, log),
		PercentileLookup:  repos.NewPercentileLookupRepo(db, log),
		PercentileHistory: repos.NewPercentileHistoryRepo(db, log),
	}
}
