package jobs

import (
	"context"
	"time"

	redisclient "github.com/apexlab/apex-backend/internal/clients/redis"
	"github.com/apexlab/apex-backend/internal/platform/envutil"
	"github.com/apexlab/apex-backend/internal/platform/logger"
	"github.com/apexlab/apex-backend/internal/services"
)

const sweepLockName = "vald_profile_queue_sweep"

// SweepWorker drives the profile queue on a fixed interval. The Redis lock
// keeps multi-instance deployments down to one active sweeper per tick; a
// nil locker (no Redis configured) always sweeps.
type SweepWorker struct {
	log      *logger.Logger
	queue    services.ProfileQueueService
	locker   *redisclient.Locker
	interval time.Duration
}

func NewSweepWorker(baseLog *logger.Logger, queue services.ProfileQueueService, locker *redisclient.Locker) *SweepWorker {
	interval := envutil.DurationSeconds("VALD_SWEEP_INTERVAL_SECONDS", 60*time.Second)
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &SweepWorker{
		log:      baseLog.With("component", "SweepWorker"),
		queue:    queue,
		locker:   locker,
		interval: interval,
	}
}

func (w *SweepWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		w.log.Info("Profile queue sweep started", "interval", w.interval)
		for {
			select {
			case <-ctx.Done():
				w.log.Info("Profile queue sweep stopped")
				return
			case <-ticker.C:
				w.sweepOnce(ctx)
			}
		}
	}()
}

func (w *SweepWorker) sweepOnce(ctx context.Context) {
	// Lock TTL outlives the tick so a slow sweep is not doubled up by the
	// next tick on another instance.
	release, ok := w.locker.Acquire(ctx, sweepLockName, w.interval+30*time.Second)
	if !ok {
		w.log.Debug("Sweep lock held elsewhere, skipping tick")
		return
	}
	defer release()

	// Panics in resolution must not kill the worker loop.
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Sweep panic", "panic", r)
		}
	}()

	res, err := w.queue.ProcessQueue(ctx)
	if err != nil {
		w.log.Warn("Queue sweep failed", "error", err)
		return
	}
	if res.Claimed > 0 {
		w.log.Info("Queue sweep tick",
			"claimed", res.Claimed,
			"completed", res.Completed,
			"still_pending", res.StillPending,
			"failed", res.Failed,
		)
	}
}
