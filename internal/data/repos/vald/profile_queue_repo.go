package vald

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/dbctx"
	"github.com/apexlab/apex-backend/internal/platform/errs"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

type ProfileQueueRepo interface {
	// EnqueueIfAbsent inserts a creation attempt for the athlete, relying on
	// the partial unique in-flight index. errs.ErrAlreadyQueued is returned
	// when a pending/processing item already exists.
	EnqueueIfAbsent(dbc dbctx.Context, athleteID uuid.UUID, status types.QueueStatus, errorMessage *string) (*types.ProfileQueueItem, error)
	HasInFlight(dbc dbctx.Context, athleteID uuid.UUID) (bool, error)
	// ClaimBatch flips up to limit pending/failed items (retry_count below
	// maxRetries) to processing and returns them.
	ClaimBatch(dbc dbctx.Context, limit, maxRetries int) ([]*types.ProfileQueueItem, error)
	MarkCompleted(dbc dbctx.Context, id uuid.UUID) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, errorMessage string) error
	// MarkPending returns an item to the queue without touching its retry
	// count: the external id simply has not been assigned yet, which is not
	// a failure.
	MarkPending(dbc dbctx.Context, id uuid.UUID, note string) error
	ListRecent(dbc dbctx.Context, limit int) ([]*types.ProfileQueueItem, error)
}

type profileQueueRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileQueueRepo(db *gorm.DB, baseLog *logger.Logger) ProfileQueueRepo {
	return &profileQueueRepo{db: db, log: baseLog.With("repo", "ProfileQueueRepo")}
}

func (r *profileQueueRepo) EnqueueIfAbsent(dbc dbctx.Context, athleteID uuid.UUID, status types.QueueStatus, errorMessage *string) (*types.ProfileQueueItem, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	item := &types.ProfileQueueItem{
		AthleteID:    athleteID,
		Status:       status,
		ErrorMessage: errorMessage,
	}
	if err := txx.WithContext(dbc.Ctx).Create(item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.ErrAlreadyQueued
		}
		return nil, err
	}
	return item, nil
}

func (r *profileQueueRepo) HasInFlight(dbc dbctx.Context, athleteID uuid.UUID) (bool, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var count int64
	err := txx.WithContext(dbc.Ctx).
		Model(&types.ProfileQueueItem{}).
		Where("athlete_id = ? AND status IN ?", athleteID, []types.QueueStatus{types.QueueStatusPending, types.QueueStatusProcessing}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *profileQueueRepo) ClaimBatch(dbc dbctx.Context, limit, maxRetries int) ([]*types.ProfileQueueItem, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if limit <= 0 {
		limit = 10
	}

	var claimed []*types.ProfileQueueItem
	err := txx.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		var items []*types.ProfileQueueItem
		if err := tx.
			Where("status IN ? AND retry_count < ?", []types.QueueStatus{types.QueueStatusPending, types.QueueStatusFailed}, maxRetries).
			Order("created_at ASC").
			Limit(limit).
			Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		if err := tx.
			Model(&types.ProfileQueueItem{}).
			Where("id IN ?", ids).
			Update("status", types.QueueStatusProcessing).Error; err != nil {
			return err
		}
		for _, it := range items {
			it.Status = types.QueueStatusProcessing
		}
		claimed = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *profileQueueRepo) MarkCompleted(dbc dbctx.Context, id uuid.UUID) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	now := time.Now().UTC()
	return txx.WithContext(dbc.Ctx).
		Model(&types.ProfileQueueItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        types.QueueStatusCompleted,
			"error_message": nil,
			"processed_at":  now,
		}).Error
}

func (r *profileQueueRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, errorMessage string) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.ProfileQueueItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        types.QueueStatusFailed,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": errorMessage,
		}).Error
}

func (r *profileQueueRepo) MarkPending(dbc dbctx.Context, id uuid.UUID, note string) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.ProfileQueueItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        types.QueueStatusPending,
			"error_message": note,
		}).Error
}

func (r *profileQueueRepo) ListRecent(dbc dbctx.Context, limit int) ([]*types.ProfileQueueItem, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var items []*types.ProfileQueueItem
	if err := txx.WithContext(dbc.Ctx).
		Order("updated_at DESC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
