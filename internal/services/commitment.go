package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/commitments-backend/internal/logger"
	"github.com/yungbote/commitments-backend/internal/repos"
	"github.com/yungbote/commitments-backend/internal/types"
)

// CommitmentService carries the explicit external commands on a commitment:
// status transitions and administrative deletion. Resolution never calls
// either; status is never inferred from refinement.
type CommitmentService interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, newStatus string) (*types.Commitment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type commitmentService struct {
	db          *gorm.DB
	log         *logger.Logger
	commitments repos.CommitmentRepo
	links       repos.LinkRepo
}

func NewCommitmentService(db *gorm.DB, baseLog *logger.Logger, commitments repos.CommitmentRepo, links repos.LinkRepo) CommitmentService {
	return &commitmentService{
		db:          db,
		log:         baseLog.With("service", "CommitmentService"),
		commitments: commitments,
		links:       links,
	}
}

// UpdateStatus moves active -> completed|cancelled. Terminal states accept
// no transition, including back to active: there is no reactivation path.
func (s *commitmentService) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus string) (*types.Commitment, error) {
	if newStatus != types.StatusCompleted && newStatus != types.StatusCancelled {
		return nil, fmt.Errorf("invalid target status %q", newStatus)
	}
	commitment, err := s.commitments.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("load commitment: %w", err)
	}
	if commitment == nil {
		return nil, ErrNotFound
	}
	if types.TerminalStatus(commitment.Status) {
		return nil, fmt.Errorf("transition from %s: %w", commitment.Status, ErrTerminalStatus)
	}
	now := time.Now().UTC()
	err = s.commitments.UpdateFields(ctx, nil, id, map[string]interface{}{
		"status":     newStatus,
		"updated_at": now,
	})
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	s.log.Info("Commitment status updated", "commitment_id", id, "status", newStatus)
	commitment.Status = newStatus
	commitment.UpdatedAt = now
	return commitment, nil
}

// Delete removes a commitment with its links and audit trail in one
// transaction. The FK cascade covers Postgres; the explicit deletes keep the
// sqlite test database consistent too.
func (s *commitmentService) Delete(ctx context.Context, id uuid.UUID) error {
	commitment, err := s.commitments.GetByID(ctx, nil, id)
	if err != nil {
		return fmt.Errorf("load commitment: %w", err)
	}
	if commitment == nil {
		return ErrNotFound
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.links.DeleteByCommitment(ctx, tx, id); err != nil {
			return fmt.Errorf("delete links: %w", err)
		}
		if err := tx.WithContext(ctx).
			Where("commitment_id = ?", id).
			Delete(&types.CommitmentDateAudit{}).Error; err != nil {
			return fmt.Errorf("delete audit entries: %w", err)
		}
		if err := s.commitments.Delete(ctx, tx, id); err != nil {
			return fmt.Errorf("delete commitment: %w", err)
		}
		return nil
	})
}
