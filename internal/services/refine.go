package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/commitments-backend/internal/logger"
	"github.com/yungbote/commitments-backend/internal/repos"
	"github.com/yungbote/commitments-backend/internal/types"
)

// RefineService merges a candidate's temporal estimate into a commitment
// under the certainty ordering. Accepted changes overwrite the temporal
// fields and append exactly one audit entry; rejected ones touch nothing.
type RefineService interface {
	Refine(ctx context.Context, tx *gorm.DB, commitment *types.Commitment, estimate types.DateEstimate, sourceArtifactID string, manualOverride bool) (bool, error)
}

type refineService struct {
	db          *gorm.DB
	log         *logger.Logger
	commitments repos.CommitmentRepo
	audits      repos.AuditRepo
}

func NewRefineService(db *gorm.DB, baseLog *logger.Logger, commitments repos.CommitmentRepo, audits repos.AuditRepo) RefineService {
	return &refineService{
		db:          db,
		log:         baseLog.With("service", "RefineService"),
		commitments: commitments,
		audits:      audits,
	}
}

// Refine applies the precision policy:
//   - strictly higher certainty wins;
//   - equal certainty wins only by strictly tightening the range;
//   - manualOverride bypasses the ordering entirely.
//
// The decision runs inside the write transaction against a freshly loaded
// row (locked FOR UPDATE on Postgres), not against the caller's snapshot: a
// concurrent writer may have raised the certainty since the caller read the
// aggregate, and a stale estimate must lose to the stored state, never
// overwrite it.
//
// The bool reports acceptance. Rejection is not an error: the caller still
// records the accompanying link. The commitment pointer reflects the stored
// state after the call either way.
func (s *refineService) Refine(ctx context.Context, tx *gorm.DB, commitment *types.Commitment, estimate types.DateEstimate, sourceArtifactID string, manualOverride bool) (bool, error) {
	if commitment == nil {
		return false, fmt.Errorf("refine: %w", ErrNotFound)
	}
	if estimate.Start == nil && estimate.End == nil {
		return false, nil
	}
	if estimate.Start != nil && estimate.End != nil && estimate.End.Before(*estimate.Start) {
		return false, fmt.Errorf("estimate end before start: %w", ErrMalformedCandidate)
	}
	if !estimate.Certainty.Valid() {
		estimate.Certainty = types.CertaintyUnknown
	}

	now := time.Now().UTC()
	accepted := false
	run := func(txx *gorm.DB) error {
		current, err := s.commitments.GetByIDForUpdate(ctx, txx, commitment.ID)
		if err != nil {
			return fmt.Errorf("load commitment for refinement: %w", err)
		}
		if current == nil {
			return fmt.Errorf("refine %s: %w", commitment.ID, ErrNotFound)
		}
		*commitment = *current

		if !manualOverride && !s.accepts(current, estimate) {
			s.log.Debug("Refinement rejected by precision policy",
				"commitment_id", current.ID,
				"current_certainty", current.DateCertainty,
				"new_certainty", estimate.Certainty,
				"source_artifact_id", sourceArtifactID,
			)
			return nil
		}

		entry := &types.CommitmentDateAudit{
			CommitmentID:     current.ID,
			PrevStart:        current.StartDate,
			PrevEnd:          current.EndDate,
			PrevCertainty:    current.DateCertainty,
			PrevTimezone:     current.Timezone,
			NewStart:         estimate.Start,
			NewEnd:           estimate.End,
			NewCertainty:     estimate.Certainty,
			NewTimezone:      estimate.Timezone,
			SourceArtifactID: sourceArtifactID,
			ManualOverride:   manualOverride,
		}
		if entry.NewTimezone == "" {
			entry.NewTimezone = current.Timezone
		}

		updates := map[string]interface{}{
			"start_date":     estimate.Start,
			"end_date":       estimate.End,
			"date_certainty": estimate.Certainty,
			"updated_at":     now,
		}
		if estimate.Timezone != "" {
			updates["timezone"] = estimate.Timezone
		}

		if err := s.commitments.UpdateFields(ctx, txx, current.ID, updates); err != nil {
			return fmt.Errorf("update commitment dates: %w", err)
		}
		if err := s.audits.Append(ctx, txx, entry); err != nil {
			return fmt.Errorf("append date audit: %w", err)
		}
		accepted = true
		return nil
	}
	var err error
	if tx != nil {
		err = run(tx)
	} else {
		err = s.db.Transaction(run)
	}
	if err != nil {
		return false, err
	}
	if !accepted {
		return false, nil
	}

	commitment.StartDate = estimate.Start
	commitment.EndDate = estimate.End
	commitment.DateCertainty = estimate.Certainty
	if estimate.Timezone != "" {
		commitment.Timezone = estimate.Timezone
	}
	commitment.UpdatedAt = now
	return true, nil
}

func (s *refineService) accepts(commitment *types.Commitment, estimate types.DateEstimate) bool {
	currentRank := commitment.DateCertainty.Rank()
	newRank := estimate.Certainty.Rank()
	if newRank > currentRank {
		return true
	}
	if newRank < currentRank {
		return false
	}
	// Equal certainty: any dates beat none, otherwise the new range must be
	// a strict subset of the current one.
	if commitment.StartDate == nil {
		return estimate.Start != nil
	}
	if estimate.Start == nil {
		return false
	}
	curStart := *commitment.StartDate
	curEnd := curStart
	if commitment.EndDate != nil {
		curEnd = *commitment.EndDate
	}
	newStart := *estimate.Start
	newEnd := newStart
	if estimate.End != nil {
		newEnd = *estimate.End
	}
	inside := !newStart.Before(curStart) && !newEnd.After(curEnd)
	strict := newStart.After(curStart) || newEnd.Before(curEnd)
	return inside && strict
}
