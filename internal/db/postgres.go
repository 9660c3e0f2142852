package db

import (
  "fmt"
  "gorm.io/driver/postgres"
  "gorm.io/gorm"
  "github.com/yungbote/commitments-backend/internal/types"
  "github.com/yungbote/commitments-backend/internal/utils"
  "github.com/yungbote/commitments-backend/internal/logger"
)

type PostgresService struct {
  db *gorm.DB
  log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
  serviceLog := log.With("service", "PostgresService")

  log.Info("Loading environment variables...")
  postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
  postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
  postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
  postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
  postgresName := utils.GetEnv("POSTGRES_NAME", "commitments", log)
  log.Debug("Environment variables loaded")

  dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

  log.Info("Connecting to Postgres...")
  db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
    DisableForeignKeyConstraintWhenMigrating: true,
  })
  if err != nil {
    log.Error("Failed to connect to Postgres", "error", err)
    return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
  }

  return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
  s.log.Info("Auto migrating postgres tables...")
  err := s.db.AutoMigrate(
    &types.Commitment{},
    &types.CommitmentArtifactLink{},
    &types.CommitmentDateAudit{},
    &types.IngestTask{},
  )
  if err != nil {
    s.log.Error("Auto migration failed for postgres tables", "error", err)
    return err
  }
  s.log.Info("Configuring foreign key relationships for postgres tables...")
  // Administrative deletion of a commitment cascades to its links and audit
  // rows. Nothing cascades from source artifacts: those live upstream.
  if err := s.db.Exec(`
    ALTER TABLE "commitment_artifact_link"
    DROP CONSTRAINT IF EXISTS "fk_link_commitment_id";
  `).Error; err != nil {
    return fmt.Errorf("Failed to reset fk_link_commitment_id: %w", err)
  }
  if err := s.db.Exec(`
    ALTER TABLE "commitment_artifact_link"
    ADD CONSTRAINT "fk_link_commitment_id"
    FOREIGN KEY ("commitment_id")
    REFERENCES "commitment"("id")
    ON DELETE CASCADE
  `).Error; err != nil {
    return fmt.Errorf("Failed to add fk_link_commitment_id: %w", err)
  }
  if err := s.db.Exec(`
    ALTER TABLE "commitment_date_audit"
    DROP CONSTRAINT IF EXISTS "fk_audit_commitment_id";
  `).Error; err != nil {
    return fmt.Errorf("Failed to reset fk_audit_commitment_id: %w", err)
  }
  if err := s.db.Exec(`
    ALTER TABLE "commitment_date_audit"
    ADD CONSTRAINT "fk_audit_commitment_id"
    FOREIGN KEY ("commitment_id")
    REFERENCES "commitment"("id")
    ON DELETE CASCADE
  `).Error; err != nil {
    return fmt.Errorf("Failed to add fk_audit_commitment_id: %w", err)
  }
  return nil
}

func (s *PostgresService) DB() *gorm.DB {
  return s.db
}
