package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/commitments-backend/internal/logger"
	"github.com/yungbote/commitments-backend/internal/repos"
	"github.com/yungbote/commitments-backend/internal/types"
)

// LinkRegistry owns the many-to-many association between commitments and
// source artifacts. At most one link exists per (commitment, artifact) pair;
// reprocessing refreshes provenance in place.
type LinkRegistry interface {
	UpsertLink(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID, sourceArtifactID, sourceType, linkedBy string, confidence float64, reason, threadID string) (*types.CommitmentArtifactLink, error)
	ListForCommitment(ctx context.Context, commitmentID uuid.UUID) ([]*types.CommitmentArtifactLink, error)
	ListForArtifact(ctx context.Context, sourceArtifactID string) ([]*types.CommitmentArtifactLink, error)
	CountByType(ctx context.Context, commitmentID uuid.UUID) (map[string]int64, error)
	DeleteForCommitment(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) error
}

type linkRegistry struct {
	db    *gorm.DB
	log   *logger.Logger
	links repos.LinkRepo
}

func NewLinkRegistry(db *gorm.DB, baseLog *logger.Logger, links repos.LinkRepo) LinkRegistry {
	return &linkRegistry{
		db:    db,
		log:   baseLog.With("service", "LinkRegistry"),
		links: links,
	}
}

func (s *linkRegistry) UpsertLink(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID, sourceArtifactID, sourceType, linkedBy string, confidence float64, reason, threadID string) (*types.CommitmentArtifactLink, error) {
	if commitmentID == uuid.Nil {
		return nil, fmt.Errorf("upsert link: commitment id required")
	}
	if sourceArtifactID == "" {
		return nil, fmt.Errorf("upsert link: source artifact id required")
	}
	if !types.ValidSourceType(sourceType) {
		return nil, fmt.Errorf("upsert link: invalid source type %q", sourceType)
	}
	if linkedBy != types.LinkedByAI && linkedBy != types.LinkedByManual {
		linkedBy = types.LinkedByAI
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	link := &types.CommitmentArtifactLink{
		CommitmentID:     commitmentID,
		SourceArtifactID: sourceArtifactID,
		SourceType:       sourceType,
		ThreadID:         threadID,
		LinkedBy:         linkedBy,
		ConfidenceScore:  confidence,
		LinkReason:       reason,
	}
	if err := s.links.Upsert(ctx, tx, link); err != nil {
		return nil, fmt.Errorf("upsert link: %w", err)
	}
	return link, nil
}

func (s *linkRegistry) ListForCommitment(ctx context.Context, commitmentID uuid.UUID) ([]*types.CommitmentArtifactLink, error) {
	return s.links.ListByCommitment(ctx, nil, commitmentID)
}

func (s *linkRegistry) ListForArtifact(ctx context.Context, sourceArtifactID string) ([]*types.CommitmentArtifactLink, error) {
	return s.links.ListByArtifact(ctx, nil, sourceArtifactID)
}

func (s *linkRegistry) CountByType(ctx context.Context, commitmentID uuid.UUID) (map[string]int64, error) {
	return s.links.CountByType(ctx, nil, commitmentID)
}

// DeleteForCommitment exists for the administrative deletion cascade only.
// Upstream deletion of a source artifact does not reach here: links outlive
// their artifact for traceability.
func (s *linkRegistry) DeleteForCommitment(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) error {
	return s.links.DeleteByCommitment(ctx, tx, commitmentID)
}
