package repos

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/yungbote/commitments-backend/internal/logger"
  "github.com/yungbote/commitments-backend/internal/types"
)

// CommitmentFilter narrows List queries. Zero fields are ignored. From/To
// select commitments whose date window overlaps [From, To].
type CommitmentFilter struct {
  CommitmentType string
  Status         string
  From           *time.Time
  To             *time.Time
}

type CommitmentRepo interface {
  Create(ctx context.Context, tx *gorm.DB, commitment *types.Commitment) error
  CreateIfAbsent(ctx context.Context, tx *gorm.DB, commitment *types.Commitment) (bool, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Commitment, error)
  GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Commitment, error)
  GetByDedupKey(ctx context.Context, tx *gorm.DB, dedupKey string) (*types.Commitment, error)
  ListMatchCandidates(ctx context.Context, tx *gorm.DB, commitmentType string, windowStart, windowEnd *time.Time) ([]*types.Commitment, error)
  ListByFilter(ctx context.Context, tx *gorm.DB, filter CommitmentFilter) ([]*types.Commitment, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
  Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type commitmentRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewCommitmentRepo(db *gorm.DB, baseLog *logger.Logger) CommitmentRepo {
  return &commitmentRepo{
    db:  db,
    log: baseLog.With("repo", "CommitmentRepo"),
  }
}

func (r *commitmentRepo) Create(ctx context.Context, tx *gorm.DB, commitment *types.Commitment) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  return transaction.WithContext(ctx).Create(commitment).Error
}

// CreateIfAbsent inserts the commitment unless another row already holds its
// dedup key. Returns false when a concurrent creation won; the caller loads
// the winner and links against it instead.
func (r *commitmentRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, commitment *types.Commitment) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  res := transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns:   []clause.Column{{Name: "dedup_key"}},
      DoNothing: true,
    }).
    Create(commitment)
  if res.Error != nil {
    return false, res.Error
  }
  return res.RowsAffected > 0, nil
}

func (r *commitmentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Commitment, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil, nil
  }
  var commitment types.Commitment
  err := transaction.WithContext(ctx).
    Where("id = ?", id).
    Limit(1).
    Find(&commitment).Error
  if err != nil {
    return nil, err
  }
  if commitment.ID == uuid.Nil {
    return nil, nil
  }
  return &commitment, nil
}

// GetByIDForUpdate loads the row holding a write lock for the rest of the
// caller's transaction. On Postgres concurrent writers queue on FOR UPDATE;
// the sqlite test dialect has no row locks, there the single writer
// serializes.
func (r *commitmentRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Commitment, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil, nil
  }
  q := transaction.WithContext(ctx)
  if transaction.Dialector.Name() == "postgres" {
    q = q.Clauses(clause.Locking{Strength: "UPDATE"})
  }
  var commitment types.Commitment
  err := q.
    Where("id = ?", id).
    Limit(1).
    Find(&commitment).Error
  if err != nil {
    return nil, err
  }
  if commitment.ID == uuid.Nil {
    return nil, nil
  }
  return &commitment, nil
}

func (r *commitmentRepo) GetByDedupKey(ctx context.Context, tx *gorm.DB, dedupKey string) (*types.Commitment, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if dedupKey == "" {
    return nil, nil
  }
  var commitment types.Commitment
  err := transaction.WithContext(ctx).
    Where("dedup_key = ?", dedupKey).
    Limit(1).
    Find(&commitment).Error
  if err != nil {
    return nil, err
  }
  if commitment.ID == uuid.Nil {
    return nil, nil
  }
  return &commitment, nil
}

// ListMatchCandidates returns active commitments eligible for scoring:
// same (or unset) type, date window overlapping the already margin-expanded
// [windowStart, windowEnd], plus dateless commitments which can still match
// on title/participants. A nil window skips the temporal filter entirely.
func (r *commitmentRepo) ListMatchCandidates(ctx context.Context, tx *gorm.DB, commitmentType string, windowStart, windowEnd *time.Time) ([]*types.Commitment, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  q := transaction.WithContext(ctx).
    Where("status = ?", types.StatusActive)
  if commitmentType != "" {
    q = q.Where("commitment_type = ? OR commitment_type = ''", commitmentType)
  }
  if windowStart != nil && windowEnd != nil {
    q = q.Where(
      "start_date IS NULL OR (start_date <= ? AND COALESCE(end_date, start_date) >= ?)",
      *windowEnd, *windowStart,
    )
  }
  var out []*types.Commitment
  if err := q.Order("updated_at DESC").Find(&out).Error; err != nil {
    return nil, err
  }
  return out, nil
}

func (r *commitmentRepo) ListByFilter(ctx context.Context, tx *gorm.DB, filter CommitmentFilter) ([]*types.Commitment, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  q := transaction.WithContext(ctx).Model(&types.Commitment{})
  if filter.CommitmentType != "" {
    q = q.Where("commitment_type = ?", filter.CommitmentType)
  }
  if filter.Status != "" {
    q = q.Where("status = ?", filter.Status)
  }
  if filter.From != nil && filter.To != nil {
    q = q.Where(
      "start_date IS NOT NULL AND start_date <= ? AND COALESCE(end_date, start_date) >= ?",
      *filter.To, *filter.From,
    )
  }
  var out []*types.Commitment
  if err := q.Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
    return nil, err
  }
  return out, nil
}

func (r *commitmentRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
    Model(&types.Commitment{}).
    Where("id = ?", id).
    Updates(updates).Error
}

// Delete is the administrative removal path. The core never calls it during
// resolution; links and audit rows go with the commitment.
func (r *commitmentRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil
  }
  return transaction.WithContext(ctx).
    Where("id = ?", id).
    Delete(&types.Commitment{}).Error
}
