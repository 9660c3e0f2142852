package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/commitments-backend/internal/types"
)

func TestRefine_HigherCertaintyWins(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	c := seedActiveCommitment(t, s, "Conference", time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), "refine-up")
	c.DateCertainty = types.CertaintyMonth
	if err := s.commitments.UpdateFields(ctx, nil, c.ID, map[string]interface{}{
		"date_certainty": types.CertaintyMonth,
	}); err != nil {
		t.Fatalf("prep: %v", err)
	}

	day := time.Date(2026, 11, 12, 0, 0, 0, 0, time.UTC)
	accepted, err := s.refiner.Refine(ctx, nil, c, types.DateEstimate{
		Start:     &day,
		Certainty: types.CertaintyDay,
		Timezone:  "Europe/Berlin",
	}, "email-1", false)
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if !accepted {
		t.Fatalf("higher certainty must be accepted")
	}
	if c.DateCertainty != types.CertaintyDay || c.Timezone != "Europe/Berlin" {
		t.Fatalf("in-memory commitment not updated: %+v", c)
	}

	stored, err := s.commitments.GetByID(ctx, nil, c.ID)
	if err != nil || stored == nil {
		t.Fatalf("load: %v, %v", stored, err)
	}
	if stored.DateCertainty != types.CertaintyDay {
		t.Fatalf("stored certainty: %s", stored.DateCertainty)
	}

	audit, err := s.audits.ListByCommitment(ctx, nil, c.ID)
	if err != nil || len(audit) != 1 {
		t.Fatalf("expected one audit entry, got %d (%v)", len(audit), err)
	}
	if audit[0].PrevCertainty != types.CertaintyMonth || audit[0].NewCertainty != types.CertaintyDay {
		t.Fatalf("audit entry: %+v", audit[0])
	}
}

func TestRefine_LowerCertaintyRejected(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	start := time.Date(2026, 11, 12, 9, 0, 0, 0, time.UTC)
	c := seedActiveCommitment(t, s, "Conference", start, "refine-down")

	month := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	accepted, err := s.refiner.Refine(ctx, nil, c, types.DateEstimate{
		Start:     &month,
		Certainty: types.CertaintyMonth,
	}, "email-1", false)
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if accepted {
		t.Fatalf("lower certainty must be rejected")
	}
	if c.StartDate == nil || !c.StartDate.Equal(start) {
		t.Fatalf("rejected refinement must not touch the commitment: %+v", c)
	}
	if count, err := s.audits.CountByCommitment(ctx, nil, c.ID); err != nil || count != 0 {
		t.Fatalf("rejected refinement must not write audit entries: %d (%v)", count, err)
	}
}

func TestRefine_EqualCertaintyStrictSubsetTightens(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	c := seedActiveCommitment(t, s, "Sprint", start, "refine-subset")
	c.EndDate = &end
	if err := s.commitments.UpdateFields(ctx, nil, c.ID, map[string]interface{}{"end_date": end}); err != nil {
		t.Fatalf("prep: %v", err)
	}

	// Strict subset of the same certainty: accepted.
	nStart := time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC)
	nEnd := time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC)
	accepted, err := s.refiner.Refine(ctx, nil, c, types.DateEstimate{
		Start:     &nStart,
		End:       &nEnd,
		Certainty: types.CertaintyDay,
	}, "email-1", false)
	if err != nil || !accepted {
		t.Fatalf("strict subset must be accepted: %v, %v", accepted, err)
	}

	// The identical range again: not strict, rejected. Replays cannot grow
	// the audit log through this path.
	accepted, err = s.refiner.Refine(ctx, nil, c, types.DateEstimate{
		Start:     &nStart,
		End:       &nEnd,
		Certainty: types.CertaintyDay,
	}, "email-1", false)
	if err != nil || accepted {
		t.Fatalf("identical range must be rejected: %v, %v", accepted, err)
	}

	// Overlapping but not contained: rejected.
	oStart := time.Date(2026, 6, 4, 0, 0, 0, 0, time.UTC)
	oEnd := time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC)
	accepted, err = s.refiner.Refine(ctx, nil, c, types.DateEstimate{
		Start:     &oStart,
		End:       &oEnd,
		Certainty: types.CertaintyDay,
	}, "email-2", false)
	if err != nil || accepted {
		t.Fatalf("non-subset range must be rejected: %v, %v", accepted, err)
	}

	if count, err := s.audits.CountByCommitment(ctx, nil, c.ID); err != nil || count != 1 {
		t.Fatalf("expected a single audit entry, got %d (%v)", count, err)
	}
}

func TestRefine_ManualOverrideBypassesOrdering(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	start := time.Date(2026, 2, 10, 14, 0, 0, 0, time.UTC)
	c := seedActiveCommitment(t, s, "Review", start, "refine-manual")
	if err := s.commitments.UpdateFields(ctx, nil, c.ID, map[string]interface{}{
		"date_certainty": types.CertaintyTimeConfirmed,
	}); err != nil {
		t.Fatalf("prep: %v", err)
	}
	c.DateCertainty = types.CertaintyTimeConfirmed

	month := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	accepted, err := s.refiner.Refine(ctx, nil, c, types.DateEstimate{
		Start:     &month,
		Certainty: types.CertaintyMonth,
	}, "manual-fix", true)
	if err != nil || !accepted {
		t.Fatalf("manual override must be accepted: %v, %v", accepted, err)
	}
	if c.DateCertainty != types.CertaintyMonth {
		t.Fatalf("override not applied: %s", c.DateCertainty)
	}

	audit, err := s.audits.ListByCommitment(ctx, nil, c.ID)
	if err != nil || len(audit) != 1 {
		t.Fatalf("expected one audit entry, got %d (%v)", len(audit), err)
	}
	if !audit[0].ManualOverride {
		t.Fatalf("audit entry must record the manual override")
	}
}

func TestRefine_StaleSnapshotCannotLowerCertainty(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	c := seedActiveCommitment(t, s, "Annual Conference", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), "refine-stale")
	if err := s.commitments.UpdateFields(ctx, nil, c.ID, map[string]interface{}{
		"date_certainty": types.CertaintyMonth,
	}); err != nil {
		t.Fatalf("prep: %v", err)
	}

	// Two workers load the aggregate before either writes.
	snapshotA, err := s.commitments.GetByID(ctx, nil, c.ID)
	if err != nil || snapshotA == nil {
		t.Fatalf("load snapshot A: %v, %v", snapshotA, err)
	}
	snapshotB, err := s.commitments.GetByID(ctx, nil, c.ID)
	if err != nil || snapshotB == nil {
		t.Fatalf("load snapshot B: %v, %v", snapshotB, err)
	}

	exact := time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)
	accepted, err := s.refiner.Refine(ctx, nil, snapshotA, types.DateEstimate{
		Start:     &exact,
		Certainty: types.CertaintyExact,
	}, "email-exact", false)
	if err != nil || !accepted {
		t.Fatalf("first refinement: accepted=%v err=%v", accepted, err)
	}

	// The second worker still believes the aggregate is at month certainty.
	// Its day-level estimate would pass against the snapshot but must lose
	// against the stored state.
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	accepted, err = s.refiner.Refine(ctx, nil, snapshotB, types.DateEstimate{
		Start:     &day,
		Certainty: types.CertaintyDay,
	}, "email-day", false)
	if err != nil {
		t.Fatalf("second refinement: %v", err)
	}
	if accepted {
		t.Fatalf("stale lower-certainty estimate must be rejected")
	}
	if snapshotB.DateCertainty != types.CertaintyExact {
		t.Fatalf("rejected caller must see the stored state, got %s", snapshotB.DateCertainty)
	}

	stored, err := s.commitments.GetByID(ctx, nil, c.ID)
	if err != nil || stored == nil {
		t.Fatalf("load stored: %v, %v", stored, err)
	}
	if stored.DateCertainty != types.CertaintyExact {
		t.Fatalf("certainty decreased: exact -> %s", stored.DateCertainty)
	}
	if count, err := s.audits.CountByCommitment(ctx, nil, c.ID); err != nil || count != 1 {
		t.Fatalf("only the accepted refinement may audit: %d (%v)", count, err)
	}
}

func TestRefine_DatelessEstimateIsNoOp(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	c := seedActiveCommitment(t, s, "Noop", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "refine-noop")
	accepted, err := s.refiner.Refine(ctx, nil, c, types.DateEstimate{Certainty: types.CertaintyExact}, "email-1", false)
	if err != nil || accepted {
		t.Fatalf("dateless estimate must be a no-op: %v, %v", accepted, err)
	}
}

func TestRefine_EndBeforeStartIsMalformed(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	c := seedActiveCommitment(t, s, "Broken", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "refine-broken")
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err := s.refiner.Refine(ctx, nil, c, types.DateEstimate{
		Start:     &start,
		End:       &end,
		Certainty: types.CertaintyExact,
	}, "email-1", false)
	if !errors.Is(err, ErrMalformedCandidate) {
		t.Fatalf("expected ErrMalformedCandidate, got %v", err)
	}
}
