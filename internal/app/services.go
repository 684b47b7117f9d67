package app

import (
	"gorm.io/gorm"

	"github.com/apexlab/apex-backend/internal/jobs"
	"github.com/apexlab/apex-backend/internal/platform/logger"
	"github.com/apexlab/apex-backend/internal/services"
)

type Services struct {
	Athlete     services.AthleteService
	ProfileLink services.ProfileLinkService
	Percentile  services.ValdPercentileService
	Composite   services.CompositeService
	Recalculate services.RecalculateService
	Queue       services.ProfileQueueService

	SweepWorker *jobs.SweepWorker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, clients Clients) Services {
	log.Info("Wiring services...")

	athleteService := services.NewAthleteService(db, log, r.Athlete)
	linkService := services.NewProfileLinkService(db, log, cfg.ProfileLink, clients.Vald, r.Athlete, r.ProfileQueue)
	percentileService := services.NewValdPercentileService(db, log, r.Athlete, r.PercentileLookup, r.PercentileHistory)
	compositeService := services.NewCompositeService(db, log, r.Athlete, r.PercentileHistory)
	recalculateService := services.NewRecalculateService(db, log, r.PercentileLookup, r.PercentileHistory)
	queueService := services.NewProfileQueueService(db, log, cfg.Queue, r.ProfileQueue, linkService)

	sweepWorker := jobs.NewSweepWorker(log, queueService, clients.Locker)

	return Services{
		Athlete:     athleteService,
		ProfileLink: linkService,
		Percentile:  percentileService,
		Composite:   compositeService,
		Recalculate: recalculateService,
		Queue:       queueService,
		SweepWorker: sweepWorker,
	}
}
