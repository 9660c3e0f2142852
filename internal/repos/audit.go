package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/commitments-backend/internal/logger"
  "github.com/yungbote/commitments-backend/internal/types"
)

type AuditRepo interface {
  Append(ctx context.Context, tx *gorm.DB, entry *types.CommitmentDateAudit) error
  ListByCommitment(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) ([]*types.CommitmentDateAudit, error)
  CountByCommitment(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) (int64, error)
}

type auditRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewAuditRepo(db *gorm.DB, baseLog *logger.Logger) AuditRepo {
  return &auditRepo{
    db:  db,
    log: baseLog.With("repo", "AuditRepo"),
  }
}

// Append writes the next audit entry for a commitment. Seq is assigned here
// as max(seq)+1 inside the caller's transaction; the unique index on
// (commitment_id, seq) rejects two writers racing on the same aggregate,
// which the per-key lock upstream should already have prevented.
func (r *auditRepo) Append(ctx context.Context, tx *gorm.DB, entry *types.CommitmentDateAudit) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if entry.Seq == 0 {
    var maxSeq int64
    err := transaction.WithContext(ctx).
      Model(&types.CommitmentDateAudit{}).
      Where("commitment_id = ?", entry.CommitmentID).
      Select("COALESCE(MAX(seq), 0)").
      Scan(&maxSeq).Error
    if err != nil {
      return err
    }
    entry.Seq = int(maxSeq) + 1
  }
  return transaction.WithContext(ctx).Create(entry).Error
}

func (r *auditRepo) ListByCommitment(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) ([]*types.CommitmentDateAudit, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var out []*types.CommitmentDateAudit
  if commitmentID == uuid.Nil {
    return out, nil
  }
  if err := transaction.WithContext(ctx).
    Where("commitment_id = ?", commitmentID).
    Order("seq ASC").
    Find(&out).Error; err != nil {
    return nil, err
  }
  return out, nil
}

func (r *auditRepo) CountByCommitment(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if commitmentID == uuid.Nil {
    return 0, nil
  }
  var count int64
  if err := transaction.WithContext(ctx).
    Model(&types.CommitmentDateAudit{}).
    Where("commitment_id = ?", commitmentID).
    Count(&count).Error; err != nil {
    return 0, err
  }
  return count, nil
}
