package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/commitments-backend/internal/locking"
	"github.com/yungbote/commitments-backend/internal/logger"
	"github.com/yungbote/commitments-backend/internal/normalization"
	"github.com/yungbote/commitments-backend/internal/repos"
	"github.com/yungbote/commitments-backend/internal/scoring"
	"github.com/yungbote/commitments-backend/internal/types"
)

// ResolutionService decides, per candidate, whether it belongs to a tracked
// commitment or founds a new one, then merges temporal data and records the
// artifact link. Safe to call concurrently and re-entrant under redelivery:
// source_artifact_id is the idempotency key.
type ResolutionService interface {
	Resolve(ctx context.Context, candidate *types.EventCandidate) (*types.ResolutionOutcome, error)
}

type resolutionService struct {
	db          *gorm.DB
	log         *logger.Logger
	cfg         scoring.Config
	locker      locking.KeyedLocker
	lockWait    time.Duration
	commitments repos.CommitmentRepo
	links       repos.LinkRepo
	refiner     RefineService
	registry    LinkRegistry
}

func NewResolutionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg scoring.Config,
	locker locking.KeyedLocker,
	lockWait time.Duration,
	commitments repos.CommitmentRepo,
	links repos.LinkRepo,
	refiner RefineService,
	registry LinkRegistry,
) ResolutionService {
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	return &resolutionService{
		db:          db,
		log:         baseLog.With("service", "ResolutionService"),
		cfg:         cfg,
		locker:      locker,
		lockWait:    lockWait,
		commitments: commitments,
		links:       links,
		refiner:     refiner,
		registry:    registry,
	}
}

func (s *resolutionService) Resolve(ctx context.Context, candidate *types.EventCandidate) (*types.ResolutionOutcome, error) {
	if err := s.validate(candidate); err != nil {
		s.log.Warn("Rejected malformed candidate",
			"source_artifact_id", candidate.SourceArtifactID,
			"error", err,
		)
		return nil, err
	}

	signals := scoring.CandidateSignals(candidate)

	// Redelivery fast path: an already-linked artifact resolves to the same
	// commitment, only its link provenance may refresh. No refinement, no
	// audit growth.
	if outcome, err := s.replay(ctx, candidate, signals); err != nil || outcome != nil {
		return outcome, err
	}

	key := s.dedupKey(candidate, signals)
	release, err := s.locker.Acquire(ctx, key, s.lockWait)
	if err != nil {
		return nil, fmt.Errorf("acquire resolution lock %q: %w", key, err)
	}
	defer release()

	// Second look under the lock: a concurrent duplicate delivery may have
	// linked the artifact while we waited.
	if outcome, err := s.replay(ctx, candidate, signals); err != nil || outcome != nil {
		return outcome, err
	}

	windowStart, windowEnd := scoring.MatchWindow(signals, s.cfg)
	matchPool, err := s.commitments.ListMatchCandidates(ctx, nil, candidate.CommitmentType, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list match candidates: %w", err)
	}

	var best *types.Commitment
	bestScore := 0.0
	for _, existing := range matchPool {
		score := scoring.Score(signals, existing, s.cfg)
		// The pool is ordered by recency, so a strict comparison implements
		// the tie-break: equal scores keep the most recently updated.
		if best == nil || score > bestScore {
			best = existing
			bestScore = score
		}
	}

	if best != nil && bestScore >= s.cfg.AutoLinkThreshold {
		return s.linkExisting(ctx, candidate, best, bestScore)
	}
	return s.createNew(ctx, candidate, signals, key, bestScore)
}

func (s *resolutionService) validate(candidate *types.EventCandidate) error {
	if candidate == nil {
		return fmt.Errorf("nil candidate: %w", ErrMalformedCandidate)
	}
	if candidate.SourceArtifactID == "" {
		return fmt.Errorf("missing source_artifact_id: %w", ErrMalformedCandidate)
	}
	if !types.ValidSourceType(candidate.SourceType) {
		return fmt.Errorf("invalid source_type %q: %w", candidate.SourceType, ErrMalformedCandidate)
	}
	if candidate.Title == "" && !candidate.HasTemporalHint() {
		return fmt.Errorf("no title and no temporal hint: %w", ErrMalformedCandidate)
	}
	if candidate.StartEstimate != nil && candidate.EndEstimate != nil &&
		candidate.EndEstimate.Before(*candidate.StartEstimate) {
		return fmt.Errorf("end estimate before start estimate: %w", ErrMalformedCandidate)
	}
	return nil
}

// replay returns the prior outcome when this artifact was already resolved,
// nil when it is new. The earliest link wins when a manual link later added
// more commitments for the artifact.
func (s *resolutionService) replay(ctx context.Context, candidate *types.EventCandidate, signals scoring.Signals) (*types.ResolutionOutcome, error) {
	existing, err := s.links.ListByArtifact(ctx, nil, candidate.SourceArtifactID)
	if err != nil {
		return nil, fmt.Errorf("lookup artifact links: %w", err)
	}
	if len(existing) == 0 {
		return nil, nil
	}
	first := existing[0]
	commitment, err := s.commitments.GetByID(ctx, nil, first.CommitmentID)
	if err != nil {
		return nil, fmt.Errorf("load linked commitment: %w", err)
	}
	if commitment == nil {
		// Link outlived an administratively deleted commitment row without
		// FK enforcement (sqlite tests); treat the artifact as new.
		return nil, nil
	}
	score := scoring.Score(signals, commitment, s.cfg)
	_, err = s.registry.UpsertLink(ctx, nil, commitment.ID, candidate.SourceArtifactID,
		candidate.SourceType, first.LinkedBy, score,
		fmt.Sprintf("reprocessed: score %.2f against existing commitment", score),
		candidate.ThreadID,
	)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Replayed resolution for already-linked artifact",
		"source_artifact_id", candidate.SourceArtifactID,
		"commitment_id", commitment.ID,
	)
	return &types.ResolutionOutcome{
		CommitmentID: commitment.ID,
		Action:       types.ActionLinked,
		Score:        score,
	}, nil
}

func (s *resolutionService) linkExisting(ctx context.Context, candidate *types.EventCandidate, commitment *types.Commitment, score float64) (*types.ResolutionOutcome, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		accepted, err := s.refiner.Refine(ctx, tx, commitment, candidate.Estimate(), candidate.SourceArtifactID, false)
		if err != nil {
			return err
		}
		reason := fmt.Sprintf("auto-linked: score %.2f", score)
		if accepted {
			reason = fmt.Sprintf("auto-linked: score %.2f, dates refined to %s", score, commitment.DateCertainty)
		}
		_, err = s.registry.UpsertLink(ctx, tx, commitment.ID, candidate.SourceArtifactID,
			candidate.SourceType, types.LinkedByAI, score, reason, candidate.ThreadID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Candidate linked to existing commitment",
		"source_artifact_id", candidate.SourceArtifactID,
		"commitment_id", commitment.ID,
		"score", score,
	)
	return &types.ResolutionOutcome{
		CommitmentID: commitment.ID,
		Action:       types.ActionLinked,
		Score:        score,
	}, nil
}

func (s *resolutionService) createNew(ctx context.Context, candidate *types.EventCandidate, signals scoring.Signals, dedupKey string, bestScore float64) (*types.ResolutionOutcome, error) {
	commitment, err := s.seedCommitment(candidate, dedupKey, bestScore)
	if err != nil {
		return nil, err
	}

	var outcome *types.ResolutionOutcome
	err = s.db.Transaction(func(tx *gorm.DB) error {
		created, err := s.commitments.CreateIfAbsent(ctx, tx, commitment)
		if err != nil {
			return fmt.Errorf("create commitment: %w", err)
		}
		if created {
			// The initial date set runs through the refinement manager so the
			// audit trail starts at entry one: nothing-known -> first estimate.
			if _, err := s.refiner.Refine(ctx, tx, commitment, candidate.Estimate(), candidate.SourceArtifactID, false); err != nil {
				return err
			}
		}
		if !created {
			// A concurrent worker won the creation race; convert this
			// outcome to a link against the winner.
			winner, err := s.commitments.GetByDedupKey(ctx, tx, dedupKey)
			if err != nil {
				return fmt.Errorf("load winning commitment: %w", err)
			}
			if winner == nil {
				return fmt.Errorf("dedup conflict but winner not found for key %q", dedupKey)
			}
			score := scoring.Score(signals, winner, s.cfg)
			_, err = s.registry.UpsertLink(ctx, tx, winner.ID, candidate.SourceArtifactID,
				candidate.SourceType, types.LinkedByAI, score,
				"concurrent creation resolved to existing commitment", candidate.ThreadID)
			if err != nil {
				return err
			}
			outcome = &types.ResolutionOutcome{
				CommitmentID: winner.ID,
				Action:       types.ActionLinked,
				Score:        score,
			}
			return nil
		}
		_, err = s.registry.UpsertLink(ctx, tx, commitment.ID, candidate.SourceArtifactID,
			candidate.SourceType, types.LinkedByAI, bestScore,
			fmt.Sprintf("created new commitment, best existing score %.2f", bestScore),
			candidate.ThreadID)
		if err != nil {
			return err
		}
		outcome = &types.ResolutionOutcome{
			CommitmentID: commitment.ID,
			Action:       types.ActionCreated,
			Score:        bestScore,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome.Action == types.ActionCreated {
		s.log.Info("Created new commitment",
			"source_artifact_id", candidate.SourceArtifactID,
			"commitment_id", outcome.CommitmentID,
			"commitment_type", candidate.CommitmentType,
		)
	} else {
		s.log.Info("Creation race converted to link",
			"source_artifact_id", candidate.SourceArtifactID,
			"commitment_id", outcome.CommitmentID,
		)
	}
	return outcome, nil
}

func (s *resolutionService) seedCommitment(candidate *types.EventCandidate, dedupKey string, bestScore float64) (*types.Commitment, error) {
	commitmentType := candidate.CommitmentType
	if !types.ValidCommitmentType(commitmentType) {
		commitmentType = types.TypeOther
	}
	// Dates are deliberately left unset here: the creation path feeds the
	// estimate through the refinement manager so the first temporal fact
	// lands as audit entry one.
	commitment := &types.Commitment{
		Title:           candidate.Title,
		Description:     candidate.Description,
		CommitmentType:  commitmentType,
		Status:          types.StatusActive,
		DateCertainty:   types.CertaintyUnknown,
		Organizer:       candidate.Organizer,
		Location:        candidate.Location,
		AutoLinked:      true,
		ConfidenceScore: bestScore,
		ThreadID:        candidate.ThreadID,
		DedupKey:        dedupKey,
	}
	participants := make([]types.Participant, 0, len(candidate.Participants))
	seen := map[string]struct{}{}
	for _, p := range candidate.Participants {
		id := normalization.NormalizeIdentifier(p.Identifier)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		participants = append(participants, types.Participant{
			Identifier:  id,
			DisplayName: p.Name,
			Role:        p.Role,
		})
	}
	if len(participants) > 0 {
		if err := commitment.SetParticipants(participants); err != nil {
			return nil, fmt.Errorf("encode participants: %w", err)
		}
	}
	if len(candidate.MeetingLinks) > 0 {
		if err := commitment.SetMeetingLinks(candidate.MeetingLinks); err != nil {
			return nil, fmt.Errorf("encode meeting links: %w", err)
		}
	}
	return commitment, nil
}

// dedupKey is the natural key serializing check-then-act and backing the
// creation-race unique constraint: type, coarse month bucket, normalized
// title. Untitled candidates key on their artifact so unrelated untitled
// events never collide.
func (s *resolutionService) dedupKey(candidate *types.EventCandidate, signals scoring.Signals) string {
	commitmentType := candidate.CommitmentType
	if !types.ValidCommitmentType(commitmentType) {
		commitmentType = types.TypeOther
	}
	if commitmentType == "" {
		commitmentType = "untyped"
	}
	bucket := "nodate"
	if signals.Start != nil {
		bucket = signals.Start.UTC().Format("2006-01")
	}
	title := normalization.NormalizeTitle(candidate.Title)
	if title == "" {
		title = "artifact:" + candidate.SourceArtifactID
	}
	return commitmentType + "|" + bucket + "|" + title
}
