package app

import (
	"fmt"

	redisclient "github.com/apexlab/apex-backend/internal/clients/redis"
	valdclient "github.com/apexlab/apex-backend/internal/clients/vald"
	"github.com/apexlab/apex-backend/internal/platform/envutil"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

type Clients struct {
	Vald   valdclient.Client
	Locker *redisclient.Locker
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	vald, err := valdclient.New(log, cfg.Vald)
	if err != nil {
		return Clients{}, fmt.Errorf("init vald client: %w", err)
	}

	// Locker stays nil without REDIS_ADDR; single-instance deployments do
	// not need it.
	var locker *redisclient.Locker
	if envutil.String("REDIS_ADDR", "") != "" {
		locker, err = redisclient.NewLocker(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis locker: %w", err)
		}
	} else {
		log.Warn("REDIS_ADDR not set, queue sweep runs unlocked")
	}

	return Clients{Vald: vald, Locker: locker}, nil
}
