package athletes

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/dbctx"
	"github.com/apexlab/apex-backend/internal/platform/errs"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

type AthleteRepo interface {
	Create(dbc dbctx.Context, items []*types.Athlete) ([]*types.Athlete, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Athlete, error)
	SetProfileLink(dbc dbctx.Context, id uuid.UUID, profileID, syncID, externalID string) error
	SetProfileID(dbc dbctx.Context, id uuid.UUID, profileID string) error
	SetPendingSync(dbc dbctx.Context, id uuid.UUID, syncID, externalID string) error
	SetCompositeScore(dbc dbctx.Context, id uuid.UUID, score float64, history datatypes.JSON) error
}

type athleteRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAthleteRepo(db *gorm.DB, baseLog *logger.Logger) AthleteRepo {
	return &athleteRepo{db: db, log: baseLog.With("repo", "AthleteRepo")}
}

func (r *athleteRepo) Create(dbc dbctx.Context, items []*types.Athlete) ([]*types.Athlete, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if len(items) == 0 {
		return []*types.Athlete{}, nil
	}
	if err := txx.WithContext(dbc.Ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *athleteRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Athlete, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Athlete
	if err := txx.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

// SetProfileLink records a completed resolution: profile id, the
// correlation ids, and the link timestamp, in one write.
func (r *athleteRepo) SetProfileLink(dbc dbctx.Context, id uuid.UUID, profileID, syncID, externalID string) error {
	return r.updateValdFields(dbc, id, map[string]any{
		"vald_profile_id":  profileID,
		"vald_sync_id":     syncID,
		"vald_external_id": externalID,
		"vald_synced_at":   time.Now().UTC(),
	})
}

func (r *athleteRepo) SetProfileID(dbc dbctx.Context, id uuid.UUID, profileID string) error {
	return r.updateValdFields(dbc, id, map[string]any{
		"vald_profile_id": profileID,
		"vald_synced_at":  time.Now().UTC(),
	})
}

// SetPendingSync stores the locally generated correlation ids while the
// externally assigned profile id is still outstanding.
func (r *athleteRepo) SetPendingSync(dbc dbctx.Context, id uuid.UUID, syncID, externalID string) error {
	return r.updateValdFields(dbc, id, map[string]any{
		"vald_sync_id":     syncID,
		"vald_external_id": externalID,
		"vald_synced_at":   time.Now().UTC(),
	})
}

func (r *athleteRepo) SetCompositeScore(dbc dbctx.Context, id uuid.UUID, score float64, history datatypes.JSON) error {
	return r.updateValdFields(dbc, id, map[string]any{
		"vald_composite_score":   score,
		"vald_composite_history": history,
	})
}

func (r *athleteRepo) updateValdFields(dbc dbctx.Context, id uuid.UUID, fields map[string]any) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.Athlete{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}
