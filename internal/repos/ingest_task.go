package repos

import (
  "context"
  "errors"
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/yungbote/commitments-backend/internal/logger"
  "github.com/yungbote/commitments-backend/internal/types"
)

type IngestTaskRepo interface {
  Enqueue(ctx context.Context, tx *gorm.DB, sourceArtifactID string, payload datatypes.JSON) (*types.IngestTask, bool, error)
  GetBySourceArtifactID(ctx context.Context, tx *gorm.DB, sourceArtifactID string) (*types.IngestTask, error)
  ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, staleRunning time.Duration) (*types.IngestTask, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
  Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
  ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*types.IngestTask, error)
}

type ingestTaskRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewIngestTaskRepo(db *gorm.DB, baseLog *logger.Logger) IngestTaskRepo {
  return &ingestTaskRepo{
    db:  db,
    log: baseLog.With("repo", "IngestTaskRepo"),
  }
}

// Enqueue records one delivered candidate. source_artifact_id is unique, so
// redelivery lands on the existing row: pending rows are left alone, terminal
// rows are re-queued so a deliberate reprocess can update link provenance.
// The bool reports whether the task is (now) pending.
func (r *ingestTaskRepo) Enqueue(ctx context.Context, tx *gorm.DB, sourceArtifactID string, payload datatypes.JSON) (*types.IngestTask, bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  task := &types.IngestTask{
    SourceArtifactID: sourceArtifactID,
    Payload:          payload,
    Status:           types.TaskQueued,
  }
  res := transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns:   []clause.Column{{Name: "source_artifact_id"}},
      DoNothing: true,
    }).
    Create(task)
  if res.Error != nil {
    return nil, false, res.Error
  }
  if res.RowsAffected > 0 {
    return task, true, nil
  }
  existing, err := r.GetBySourceArtifactID(ctx, transaction, sourceArtifactID)
  if err != nil {
    return nil, false, err
  }
  if existing == nil {
    return nil, false, errors.New("enqueue conflict but existing task not found")
  }
  if !types.TerminalTaskStatus(existing.Status) {
    return existing, true, nil
  }
  now := time.Now().UTC()
  err = transaction.WithContext(ctx).
    Model(&types.IngestTask{}).
    Where("id = ?", existing.ID).
    Updates(map[string]interface{}{
      "status":        types.TaskQueued,
      "payload":       payload,
      "attempts":      0,
      "last_error":    "",
      "last_error_at": nil,
      "next_retry_at": nil,
      "updated_at":    now,
    }).Error
  if err != nil {
    return nil, false, err
  }
  existing.Status = types.TaskQueued
  existing.Payload = payload
  existing.Attempts = 0
  return existing, true, nil
}

func (r *ingestTaskRepo) GetBySourceArtifactID(ctx context.Context, tx *gorm.DB, sourceArtifactID string) (*types.IngestTask, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if sourceArtifactID == "" {
    return nil, nil
  }
  var task types.IngestTask
  err := transaction.WithContext(ctx).
    Where("source_artifact_id = ?", sourceArtifactID).
    Limit(1).
    Find(&task).Error
  if err != nil {
    return nil, err
  }
  if task.ID == uuid.Nil {
    return nil, nil
  }
  return &task, nil
}

// ClaimNextRunnable atomically claims the oldest runnable task: queued,
// failed with retry due, or running with a stale heartbeat (worker died
// mid-flight). On Postgres the row is locked with SKIP LOCKED so concurrent
// workers never claim the same task; the sqlite test dialect has no row
// locks, there the surrounding transaction serializes.
func (r *ingestTaskRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, staleRunning time.Duration) (*types.IngestTask, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  now := time.Now().UTC()
  staleCutoff := now.Add(-staleRunning)
  var claimed *types.IngestTask
  err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
    var task types.IngestTask
    q := txx.Model(&types.IngestTask{})
    if txx.Dialector.Name() == "postgres" {
      q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
    }
    q = q.Where(`
        (
          status = ?
          OR (
            status = ?
            AND attempts < ?
            AND (next_retry_at IS NULL OR next_retry_at <= ?)
          )
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, types.TaskQueued, types.TaskFailed, maxAttempts, now, types.TaskRunning, staleCutoff).
      Order("created_at ASC")
    qErr := q.First(&task).Error
    if errors.Is(qErr, gorm.ErrRecordNotFound) {
      return nil
    }
    if qErr != nil {
      return qErr
    }
    uErr := txx.Model(&types.IngestTask{}).
      Where("id = ?", task.ID).
      Updates(map[string]interface{}{
        "status":       types.TaskRunning,
        "attempts":     gorm.Expr("attempts + 1"),
        "locked_at":    now,
        "heartbeat_at": now,
        "updated_at":   now,
      }).Error
    if uErr != nil {
      return uErr
    }
    task.Status = types.TaskRunning
    task.Attempts = task.Attempts + 1
    claimed = &task
    return nil
  })
  if err != nil {
    return nil, err
  }
  return claimed, nil
}

func (r *ingestTaskRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil
  }
  if updates == nil {
    updates = map[string]interface{}{}
  }
  if _, ok := updates["updated_at"]; !ok {
    updates["updated_at"] = time.Now().UTC()
  }
  return transaction.WithContext(ctx).
    Model(&types.IngestTask{}).
    Where("id = ?", id).
    Updates(updates).Error
}

func (r *ingestTaskRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil
  }
  now := time.Now().UTC()
  return transaction.WithContext(ctx).
    Model(&types.IngestTask{}).
    Where("id = ? AND status = ?", id, types.TaskRunning).
    Updates(map[string]interface{}{
      "heartbeat_at": now,
      "updated_at":   now,
    }).Error
}

func (r *ingestTaskRepo) ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*types.IngestTask, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var out []*types.IngestTask
  q := transaction.WithContext(ctx).
    Where("status = ?", status).
    Order("created_at ASC")
  if limit > 0 {
    q = q.Limit(limit)
  }
  if err := q.Find(&out).Error; err != nil {
    return nil, err
  }
  return out, nil
}
