package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/commitments-backend/internal/logger"
	"github.com/yungbote/commitments-backend/internal/normalization"
	"github.com/yungbote/commitments-backend/internal/repos"
	"github.com/yungbote/commitments-backend/internal/types"
)

// CommitmentView is a commitment plus its per-source link counts, derived
// from the link registry at query time rather than cached on the row.
type CommitmentView struct {
	types.Commitment
	EmailCount         int64 `json:"email_count"`
	CalendarEventCount int64 `json:"calendar_event_count"`
}

// QueryService is the read side. All listings have stable ordering; reads
// may observe a slightly stale snapshot while resolution writes.
type QueryService interface {
	Get(ctx context.Context, id uuid.UUID) (*CommitmentView, error)
	List(ctx context.Context, filter repos.CommitmentFilter) ([]*types.Commitment, error)
	ListByParticipant(ctx context.Context, identifier string, filter repos.CommitmentFilter) ([]*types.Commitment, error)
	ListLinks(ctx context.Context, commitmentID uuid.UUID) ([]*types.CommitmentArtifactLink, error)
	ListCommitmentsForArtifact(ctx context.Context, sourceArtifactID string) ([]*types.Commitment, error)
	ListAuditLog(ctx context.Context, commitmentID uuid.UUID) ([]*types.CommitmentDateAudit, error)
}

type queryService struct {
	db          *gorm.DB
	log         *logger.Logger
	commitments repos.CommitmentRepo
	links       repos.LinkRepo
	audits      repos.AuditRepo
}

func NewQueryService(db *gorm.DB, baseLog *logger.Logger, commitments repos.CommitmentRepo, links repos.LinkRepo, audits repos.AuditRepo) QueryService {
	return &queryService{
		db:          db,
		log:         baseLog.With("service", "QueryService"),
		commitments: commitments,
		links:       links,
		audits:      audits,
	}
}

func (s *queryService) Get(ctx context.Context, id uuid.UUID) (*CommitmentView, error) {
	commitment, err := s.commitments.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("load commitment: %w", err)
	}
	if commitment == nil {
		return nil, ErrNotFound
	}
	counts, err := s.links.CountByType(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("count links: %w", err)
	}
	return &CommitmentView{
		Commitment:         *commitment,
		EmailCount:         counts[types.SourceEmail],
		CalendarEventCount: counts[types.SourceCalendarEvent],
	}, nil
}

func (s *queryService) List(ctx context.Context, filter repos.CommitmentFilter) ([]*types.Commitment, error) {
	return s.commitments.ListByFilter(ctx, nil, filter)
}

// ListByParticipant filters membership in the service: the participant list
// is a small jsonb array and the containment predicate that could push this
// into SQL is Postgres-only, while this layer must also run against the
// sqlite test database.
func (s *queryService) ListByParticipant(ctx context.Context, identifier string, filter repos.CommitmentFilter) ([]*types.Commitment, error) {
	needle := normalization.NormalizeIdentifier(identifier)
	if needle == "" {
		return []*types.Commitment{}, nil
	}
	all, err := s.commitments.ListByFilter(ctx, nil, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Commitment, 0, len(all))
	for _, c := range all {
		for _, p := range c.ParticipantList() {
			if normalization.NormalizeIdentifier(p.Identifier) == needle {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (s *queryService) ListLinks(ctx context.Context, commitmentID uuid.UUID) ([]*types.CommitmentArtifactLink, error) {
	return s.links.ListByCommitment(ctx, nil, commitmentID)
}

// ListCommitmentsForArtifact is the reverse lookup used for debugging:
// which commitments reference this artifact, in link order.
func (s *queryService) ListCommitmentsForArtifact(ctx context.Context, sourceArtifactID string) ([]*types.Commitment, error) {
	links, err := s.links.ListByArtifact(ctx, nil, sourceArtifactID)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Commitment, 0, len(links))
	for _, link := range links {
		commitment, err := s.commitments.GetByID(ctx, nil, link.CommitmentID)
		if err != nil {
			return nil, err
		}
		if commitment != nil {
			out = append(out, commitment)
		}
	}
	return out, nil
}

func (s *queryService) ListAuditLog(ctx context.Context, commitmentID uuid.UUID) ([]*types.CommitmentDateAudit, error) {
	return s.audits.ListByCommitment(ctx, nil, commitmentID)
}
