package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/apexlab/apex-backend/internal/data/repos"
	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/dbctx"
	"github.com/apexlab/apex-backend/internal/platform/errs"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

type CreateAthleteInput struct {
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Email     string          `json:"email"`
	BirthDate *time.Time      `json:"birth_date"`
	Sex       string          `json:"sex"`
	PlayLevel types.PlayLevel `json:"play_level"`
}

type AthleteService interface {
	Create(ctx context.Context, in CreateAthleteInput) (*types.Athlete, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Athlete, error)
}

type athleteService struct {
	db       *gorm.DB
	log      *logger.Logger
	athletes repos.AthleteRepo
}

func NewAthleteService(db *gorm.DB, baseLog *logger.Logger, athleteRepo repos.AthleteRepo) AthleteService {
	return &athleteService{
		db:       db,
		log:      baseLog.With("service", "AthleteService"),
		athletes: athleteRepo,
	}
}

func (s *athleteService) Create(ctx context.Context, in CreateAthleteInput) (*types.Athlete, error) {
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if first == "" || last == "" {
		return nil, fmt.Errorf("first and last name required: %w", errs.ErrInvalidArgument)
	}
	if in.PlayLevel != "" && !in.PlayLevel.Valid() {
		return nil, fmt.Errorf("unknown play level %q: %w", in.PlayLevel, errs.ErrInvalidArgument)
	}

	athlete := &types.Athlete{
		FirstName: first,
		LastName:  last,
		Email:     strings.TrimSpace(in.Email),
		BirthDate: in.BirthDate,
		Sex:       strings.ToLower(strings.TrimSpace(in.Sex)),
		PlayLevel: in.PlayLevel,
	}
	created, err := s.athletes.Create(dbctx.New(ctx), []*types.Athlete{athlete})
	if err != nil {
		return nil, fmt.Errorf("create athlete: %w", err)
	}
	s.log.Info("Athlete created", "athlete_id", created[0].ID)
	return created[0], nil
}

func (s *athleteService) GetByID(ctx context.Context, id uuid.UUID) (*types.Athlete, error) {
	return s.athletes.GetByID(dbctx.New(ctx), id)
}
