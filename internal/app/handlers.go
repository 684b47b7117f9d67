package app

import (
	"github.com/apexlab/apex-backend/internal/handlers"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

type Handlers struct {
	Athlete *handlers.AthleteHandler
	Vald    *handlers.ValdHandler
}

func wireHandlers(log *logger.Logger, s Services, clients Clients) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Athlete: handlers.NewAthleteHandler(s.Athlete),
		Vald: handlers.NewValdHandler(
			clients.Vald,
			s.ProfileLink,
			s.Percentile,
			s.Composite,
			s.Recalculate,
			s.Queue,
		),
	}
}
