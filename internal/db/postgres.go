package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/envutil"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	host := envutil.String("POSTGRES_HOST", "localhost")
	port := envutil.String("POSTGRES_PORT", "5432")
	user := envutil.String("POSTGRES_USER", "postgres")
	password := envutil.String("POSTGRES_PASSWORD", "")
	name := envutil.String("POSTGRES_NAME", "apex")
	sslMode := envutil.String("POSTGRES_SSL_MODE", "disable")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslMode)

	serviceLog.Info("Connecting to Postgres...")
	// TranslateError maps driver unique violations to gorm.ErrDuplicatedKey,
	// which the queue repo relies on for idempotent enqueue.
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.Athlete{},
		&types.ProfileQueueItem{},
		&types.PercentileLookup{},
		&types.AthletePercentileHistory{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	// At most one in-flight creation attempt per athlete. AutoMigrate cannot
	// express a partial unique index, so it is created directly.
	if err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_vald_profile_queue_inflight
		ON vald_profile_queue (athlete_id)
		WHERE status IN ('pending', 'processing')
	`).Error; err != nil {
		return fmt.Errorf("create vald_profile_queue in-flight index: %w", err)
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
