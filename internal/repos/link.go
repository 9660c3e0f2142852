package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/yungbote/commitments-backend/internal/logger"
  "github.com/yungbote/commitments-backend/internal/types"
)

type LinkRepo interface {
  Upsert(ctx context.Context, tx *gorm.DB, link *types.CommitmentArtifactLink) error
  GetByPair(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID, sourceArtifactID string) (*types.CommitmentArtifactLink, error)
  ListByCommitment(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) ([]*types.CommitmentArtifactLink, error)
  ListByArtifact(ctx context.Context, tx *gorm.DB, sourceArtifactID string) ([]*types.CommitmentArtifactLink, error)
  CountByType(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) (map[string]int64, error)
  DeleteByCommitment(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) error
}

type linkRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewLinkRepo(db *gorm.DB, baseLog *logger.Logger) LinkRepo {
  return &linkRepo{
    db:  db,
    log: baseLog.With("repo", "LinkRepo"),
  }
}

// Upsert inserts the link or, when the (commitment_id, source_artifact_id)
// pair already exists, refreshes its provenance in place. Reprocessing an
// artifact therefore never duplicates a link row.
func (r *linkRepo) Upsert(ctx context.Context, tx *gorm.DB, link *types.CommitmentArtifactLink) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  return transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns: []clause.Column{{Name: "commitment_id"}, {Name: "source_artifact_id"}},
      DoUpdates: clause.AssignmentColumns([]string{
        "confidence_score", "link_reason", "linked_by", "linked_at", "thread_id", "updated_at",
      }),
    }).
    Create(link).Error
}

func (r *linkRepo) GetByPair(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID, sourceArtifactID string) (*types.CommitmentArtifactLink, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if commitmentID == uuid.Nil || sourceArtifactID == "" {
    return nil, nil
  }
  var link types.CommitmentArtifactLink
  err := transaction.WithContext(ctx).
    Where("commitment_id = ? AND source_artifact_id = ?", commitmentID, sourceArtifactID).
    Limit(1).
    Find(&link).Error
  if err != nil {
    return nil, err
  }
  if link.ID == uuid.Nil {
    return nil, nil
  }
  return &link, nil
}

func (r *linkRepo) ListByCommitment(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) ([]*types.CommitmentArtifactLink, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var out []*types.CommitmentArtifactLink
  if commitmentID == uuid.Nil {
    return out, nil
  }
  if err := transaction.WithContext(ctx).
    Where("commitment_id = ?", commitmentID).
    Order("linked_at ASC, id ASC").
    Find(&out).Error; err != nil {
    return nil, err
  }
  return out, nil
}

func (r *linkRepo) ListByArtifact(ctx context.Context, tx *gorm.DB, sourceArtifactID string) ([]*types.CommitmentArtifactLink, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var out []*types.CommitmentArtifactLink
  if sourceArtifactID == "" {
    return out, nil
  }
  if err := transaction.WithContext(ctx).
    Where("source_artifact_id = ?", sourceArtifactID).
    Order("linked_at ASC, id ASC").
    Find(&out).Error; err != nil {
    return nil, err
  }
  return out, nil
}

func (r *linkRepo) CountByType(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) (map[string]int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  counts := map[string]int64{}
  if commitmentID == uuid.Nil {
    return counts, nil
  }
  var rows []struct {
    SourceType string
    Total      int64
  }
  if err := transaction.WithContext(ctx).
    Model(&types.CommitmentArtifactLink{}).
    Select("source_type, COUNT(*) AS total").
    Where("commitment_id = ?", commitmentID).
    Group("source_type").
    Scan(&rows).Error; err != nil {
    return nil, err
  }
  for _, row := range rows {
    counts[row.SourceType] = row.Total
  }
  return counts, nil
}

func (r *linkRepo) DeleteByCommitment(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if commitmentID == uuid.Nil {
    return nil
  }
  return transaction.WithContext(ctx).
    Where("commitment_id = ?", commitmentID).
    Delete(&types.CommitmentArtifactLink{}).Error
}
