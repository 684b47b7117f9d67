package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	valdclient "github.com/apexlab/apex-backend/internal/clients/vald"
	"github.com/apexlab/apex-backend/internal/data/repos"
	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/dbctx"
	"github.com/apexlab/apex-backend/internal/platform/envutil"
	"github.com/apexlab/apex-backend/internal/platform/errs"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

// ResolveOutcome names which resolution step produced the result.
type ResolveOutcome string

const (
	// OutcomeAlreadyLinked: the athlete already carried a profile id.
	OutcomeAlreadyLinked ResolveOutcome = "already_linked"
	// OutcomeResolvedPendingSync: a previously submitted creation finally
	// got its id assigned.
	OutcomeResolvedPendingSync ResolveOutcome = "resolved_pending_sync"
	// OutcomePendingSync: creation was submitted earlier and the id is
	// still outstanding; the queue sweep will pick it up.
	OutcomePendingSync ResolveOutcome = "pending_sync"
	// OutcomeLinkedExisting: an existing VALD profile matched by email and
	// was linked instead of creating a duplicate.
	OutcomeLinkedExisting ResolveOutcome = "linked_existing"
	// OutcomeCreated: a new profile was created and its id resolved within
	// the post-create poll.
	OutcomeCreated ResolveOutcome = "created"
	// OutcomeCreatedPending: a new profile was created, the id is not yet
	// assigned, and a queue item now tracks it.
	OutcomeCreatedPending ResolveOutcome = "created_pending"
	// OutcomeEnqueued: an external call failed and the attempt degraded to
	// a queued retry.
	OutcomeEnqueued ResolveOutcome = "enqueued"
)

type ResolveResult struct {
	ProfileID string
	Outcome   ResolveOutcome
}

// ProfileLinkService resolves local athletes to VALD profiles. Resolve is
// the degrading entrypoint used by athlete-creation flows: external
// failures turn into queued retries, never into errors the caller has to
// handle. AttemptResolve propagates errors and is what the queue sweep
// drives.
type ProfileLinkService interface {
	Resolve(ctx context.Context, athleteID uuid.UUID) (*ResolveResult, error)
	AttemptResolve(ctx context.Context, athleteID uuid.UUID) (*ResolveResult, error)
	LinkExisting(ctx context.Context, athleteID uuid.UUID, profileID string) error
}

type ProfileLinkConfig struct {
	// CreatePollDelay is how long to wait after a profile import before the
	// first id poll. VALD assigns ids asynchronously with no documented
	// SLA; this is a heuristic, the queue sweep is the real guarantee.
	CreatePollDelay time.Duration
}

func ProfileLinkConfigFromEnv() ProfileLinkConfig {
	return ProfileLinkConfig{
		CreatePollDelay: envutil.DurationSeconds("VALD_CREATE_POLL_DELAY_SECONDS", 2*time.Second),
	}
}

type profileLinkService struct {
	db       *gorm.DB
	log      *logger.Logger
	cfg      ProfileLinkConfig
	client   valdclient.Client
	athletes repos.AthleteRepo
	queue    repos.ProfileQueueRepo
}

func NewProfileLinkService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg ProfileLinkConfig,
	client valdclient.Client,
	athletes repos.AthleteRepo,
	queue repos.ProfileQueueRepo,
) ProfileLinkService {
	if cfg.CreatePollDelay <= 0 {
		cfg.CreatePollDelay = 2 * time.Second
	}
	return &profileLinkService{
		db:       db,
		log:      baseLog.With("service", "ProfileLinkService"),
		cfg:      cfg,
		client:   client,
		athletes: athletes,
		queue:    queue,
	}
}

func (s *profileLinkService) Resolve(ctx context.Context, athleteID uuid.UUID) (*ResolveResult, error) {
	res, err := s.resolve(ctx, athleteID, false)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, errs.ErrAlreadyQueued) {
		// Idempotency guard, not a failure.
		s.log.Info("Resolution skipped, creation already in flight", "athlete_id", athleteID)
		return nil, err
	}
	if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrInvalidArgument) {
		return nil, err
	}

	// External failure: degrade to a queued retry so athlete creation never
	// blocks on VALD being reachable.
	s.log.Warn("Resolution failed, enqueueing retry", "athlete_id", athleteID, "error", err)
	msg := err.Error()
	if _, qErr := s.queue.EnqueueIfAbsent(dbctx.New(ctx), athleteID, types.QueueStatusFailed, &msg); qErr != nil && !errors.Is(qErr, errs.ErrAlreadyQueued) {
		s.log.Error("Failed to enqueue resolution retry", "athlete_id", athleteID, "error", qErr)
	}
	return &ResolveResult{Outcome: OutcomeEnqueued}, nil
}

func (s *profileLinkService) AttemptResolve(ctx context.Context, athleteID uuid.UUID) (*ResolveResult, error) {
	// The sweep's own queue item is in flight, so the guard is skipped.
	return s.resolve(ctx, athleteID, true)
}

func (s *profileLinkService) resolve(ctx context.Context, athleteID uuid.UUID, skipQueueGuard bool) (*ResolveResult, error) {
	dbc := dbctx.New(ctx)

	athlete, err := s.athletes.GetByID(dbc, athleteID)
	if err != nil {
		return nil, err
	}

	// Step 1: already resolved. Idempotent no-op, zero external calls.
	if athlete.ValdProfileID != nil && *athlete.ValdProfileID != "" {
		return &ResolveResult{ProfileID: *athlete.ValdProfileID, Outcome: OutcomeAlreadyLinked}, nil
	}

	// Step 2: creation submitted previously, poll for the assigned id.
	if athlete.ValdSyncID != nil && *athlete.ValdSyncID != "" {
		profile, err := s.client.GetProfileBySyncID(ctx, *athlete.ValdSyncID)
		if err != nil {
			return nil, err
		}
		if profile != nil {
			if err := s.athletes.SetProfileID(dbc, athleteID, profile.ProfileID); err != nil {
				return nil, err
			}
			s.log.Info("Pending sync resolved", "athlete_id", athleteID, "profile_id", profile.ProfileID)
			return &ResolveResult{ProfileID: profile.ProfileID, Outcome: OutcomeResolvedPendingSync}, nil
		}
		return &ResolveResult{Outcome: OutcomePendingSync}, nil
	}

	// Step 3: per-athlete single-in-flight guard.
	if !skipQueueGuard {
		inFlight, err := s.queue.HasInFlight(dbc, athleteID)
		if err != nil {
			return nil, err
		}
		if inFlight {
			return nil, errs.ErrAlreadyQueued
		}
	}

	// Step 4: anti-duplication. An existing profile with this email gets
	// linked, never recreated.
	if athlete.Email != "" {
		existing, err := s.client.SearchByEmail(ctx, athlete.Email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if err := s.athletes.SetProfileLink(dbc, athleteID, existing.ProfileID, existing.SyncID, existing.ExternalID); err != nil {
				return nil, err
			}
			s.log.Info("Linked existing VALD profile by email",
				"athlete_id", athleteID,
				"profile_id", existing.ProfileID,
			)
			s.backfillEmail(ctx, existing, athlete.Email)
			return &ResolveResult{ProfileID: existing.ProfileID, Outcome: OutcomeLinkedExisting}, nil
		}
	}

	// Step 5: nothing to link, create a new profile.
	return s.createProfile(ctx, dbc, athlete)
}

func (s *profileLinkService) createProfile(ctx context.Context, dbc dbctx.Context, athlete *types.Athlete) (*ResolveResult, error) {
	if athlete.BirthDate == nil {
		return nil, fmt.Errorf("athlete %s has no birth date: %w", athlete.ID, errs.ErrInvalidArgument)
	}

	syncID := uuid.NewString()
	externalID := uuid.NewString()

	err := s.client.CreateProfile(ctx, valdclient.CreateProfileRequest{
		GivenName:   athlete.FirstName,
		FamilyName:  athlete.LastName,
		Email:       athlete.Email,
		DateOfBirth: *athlete.BirthDate,
		Sex:         athlete.Sex,
		SyncID:      syncID,
		ExternalID:  externalID,
	})
	if err != nil {
		return nil, err
	}

	// The id is assigned asynchronously; give VALD a moment before the
	// first poll.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.cfg.CreatePollDelay):
	}

	profile, err := s.client.GetProfileBySyncID(ctx, syncID)
	if err != nil {
		// The creation went through: persist the correlation ids so a later
		// sweep can resolve the id instead of creating a second profile.
		if pErr := s.athletes.SetPendingSync(dbc, athlete.ID, syncID, externalID); pErr != nil {
			s.log.Error("Failed to persist sync ids after poll error", "athlete_id", athlete.ID, "error", pErr)
		}
		return nil, err
	}

	if profile != nil {
		if err := s.athletes.SetProfileLink(dbc, athlete.ID, profile.ProfileID, syncID, externalID); err != nil {
			return nil, err
		}
		s.log.Info("VALD profile created and linked",
			"athlete_id", athlete.ID,
			"profile_id", profile.ProfileID,
		)
		return &ResolveResult{ProfileID: profile.ProfileID, Outcome: OutcomeCreated}, nil
	}

	if err := s.athletes.SetPendingSync(dbc, athlete.ID, syncID, externalID); err != nil {
		return nil, err
	}
	if _, err := s.queue.EnqueueIfAbsent(dbc, athlete.ID, types.QueueStatusPending, nil); err != nil && !errors.Is(err, errs.ErrAlreadyQueued) {
		return nil, err
	}
	s.log.Info("VALD profile created, id pending", "athlete_id", athlete.ID, "sync_id", syncID)
	return &ResolveResult{Outcome: OutcomeCreatedPending}, nil
}

// LinkExisting attaches a known VALD profile to an athlete, for operator
// flows where the match was made by hand.
func (s *profileLinkService) LinkExisting(ctx context.Context, athleteID uuid.UUID, profileID string) error {
	dbc := dbctx.New(ctx)

	athlete, err := s.athletes.GetByID(dbc, athleteID)
	if err != nil {
		return err
	}

	profile, err := s.client.GetProfileByID(ctx, profileID)
	if err != nil {
		return err
	}
	if profile == nil {
		return fmt.Errorf("vald profile %s: %w", profileID, errs.ErrNotFound)
	}

	if err := s.athletes.SetProfileLink(dbc, athleteID, profile.ProfileID, profile.SyncID, profile.ExternalID); err != nil {
		return err
	}
	s.log.Info("Manually linked VALD profile", "athlete_id", athleteID, "profile_id", profileID)

	s.backfillEmail(ctx, profile, athlete.Email)
	return nil
}

// backfillEmail pushes the athlete's email onto a VALD profile that has
// none, best effort. Many tenant profiles predate email capture and the
// email search cannot find them until this is filled.
func (s *profileLinkService) backfillEmail(ctx context.Context, profile *valdclient.Profile, email string) {
	if profile == nil || profile.Email != "" || email == "" {
		return
	}
	if err := s.client.UpdateProfileEmail(ctx, profile.ProfileID, email); err != nil {
		s.log.Warn("VALD profile email backfill failed (non-fatal)",
			"profile_id", profile.ProfileID,
			"error", err,
		)
	}
}
