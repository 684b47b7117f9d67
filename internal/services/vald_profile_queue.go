package services

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/apexlab/apex-backend/internal/data/repos"
	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/dbctx"
	"github.com/apexlab/apex-backend/internal/platform/envutil"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

// ProfileQueueService drains the profile-creation queue: each claimed item
// re-runs identity resolution from the athlete's stored demographics.
// Items that keep failing stop retrying at the ceiling and stay failed for
// operator attention.
type ProfileQueueService interface {
	ProcessQueue(ctx context.Context) (*SweepResult, error)
	ListRecent(ctx context.Context, limit int) ([]*types.ProfileQueueItem, error)
}

type SweepResult struct {
	Claimed      int `json:"claimed"`
	Completed    int `json:"completed"`
	StillPending int `json:"still_pending"`
	Failed       int `json:"failed"`
}

type ProfileQueueConfig struct {
	BatchSize   int
	MaxRetries  int
	Parallelism int
}

func ProfileQueueConfigFromEnv() ProfileQueueConfig {
	return ProfileQueueConfig{
		BatchSize:   envutil.Int("VALD_QUEUE_BATCH_SIZE", 10),
		MaxRetries:  envutil.Int("VALD_QUEUE_MAX_RETRIES", 3),
		Parallelism: envutil.Int("VALD_QUEUE_PARALLELISM", 3),
	}
}

type profileQueueService struct {
	db    *gorm.DB
	log   *logger.Logger
	cfg   ProfileQueueConfig
	queue repos.ProfileQueueRepo
	link  ProfileLinkService
}

func NewProfileQueueService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg ProfileQueueConfig,
	queue repos.ProfileQueueRepo,
	link ProfileLinkService,
) ProfileQueueService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 3
	}
	return &profileQueueService{
		db:    db,
		log:   baseLog.With("service", "ProfileQueueService"),
		cfg:   cfg,
		queue: queue,
		link:  link,
	}
}

func (s *profileQueueService) ProcessQueue(ctx context.Context) (*SweepResult, error) {
	dbc := dbctx.New(ctx)

	items, err := s.queue.ClaimBatch(dbc, s.cfg.BatchSize, s.cfg.MaxRetries)
	if err != nil {
		return nil, err
	}
	out := &SweepResult{Claimed: len(items)}
	if len(items) == 0 {
		return out, nil
	}

	var completed, pending, failed atomic.Int64

	// Bounded parallelism: VALD tolerates a few concurrent calls, not a
	// whole batch at once.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for _, item := range items {
		item := item
		g.Go(func() error {
			s.processItem(gctx, item, &completed, &pending, &failed)
			return nil
		})
	}
	_ = g.Wait()

	out.Completed = int(completed.Load())
	out.StillPending = int(pending.Load())
	out.Failed = int(failed.Load())

	s.log.Info("Queue sweep finished",
		"claimed", out.Claimed,
		"completed", out.Completed,
		"still_pending", out.StillPending,
		"failed", out.Failed,
	)
	return out, nil
}

func (s *profileQueueService) processItem(ctx context.Context, item *types.ProfileQueueItem, completed, pending, failed *atomic.Int64) {
	dbc := dbctx.New(ctx)

	res, err := s.link.AttemptResolve(ctx, item.AthleteID)
	if err != nil {
		failed.Add(1)
		s.log.Warn("Queue item resolution failed",
			"queue_id", item.ID,
			"athlete_id", item.AthleteID,
			"retry_count", item.RetryCount+1,
			"error", err,
		)
		if mErr := s.queue.MarkFailed(dbc, item.ID, err.Error()); mErr != nil {
			s.log.Error("Failed to mark queue item failed", "queue_id", item.ID, "error", mErr)
		}
		return
	}

	switch res.Outcome {
	case OutcomePendingSync, OutcomeCreatedPending:
		// Not a failure: the id just is not assigned yet. No retry charged.
		pending.Add(1)
		if mErr := s.queue.MarkPending(dbc, item.ID, "profile id not yet available"); mErr != nil {
			s.log.Error("Failed to return queue item to pending", "queue_id", item.ID, "error", mErr)
		}
	default:
		completed.Add(1)
		if mErr := s.queue.MarkCompleted(dbc, item.ID); mErr != nil {
			s.log.Error("Failed to mark queue item completed", "queue_id", item.ID, "error", mErr)
		}
	}
}

func (s *profileQueueService) ListRecent(ctx context.Context, limit int) ([]*types.ProfileQueueItem, error) {
	return s.queue.ListRecent(dbctx.New(ctx), limit)
}
