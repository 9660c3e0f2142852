package repos

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/commitments-backend/internal/repos/testutil"
	"github.com/yungbote/commitments-backend/internal/types"
)

func TestLinkRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewLinkRepo(db, testutil.Logger(t))

	commitment := testutil.SeedCommitment(t, ctx, tx, "Offsite", nil)
	other := testutil.SeedCommitment(t, ctx, tx, "Other", nil)

	link := &types.CommitmentArtifactLink{
		CommitmentID:     commitment.ID,
		SourceArtifactID: "email-1",
		SourceType:       types.SourceEmail,
		LinkedBy:         types.LinkedByAI,
		ConfidenceScore:  0.81,
		LinkReason:       "auto-linked: score 0.81",
	}
	if err := repo.Upsert(ctx, tx, link); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Same pair again: the row is refreshed, not duplicated.
	again := &types.CommitmentArtifactLink{
		CommitmentID:     commitment.ID,
		SourceArtifactID: "email-1",
		SourceType:       types.SourceEmail,
		LinkedBy:         types.LinkedByManual,
		ConfidenceScore:  0.95,
		LinkReason:       "manual relink",
	}
	if err := repo.Upsert(ctx, tx, again); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}

	rows, err := repo.ListByCommitment(ctx, tx, commitment.ID)
	if err != nil {
		t.Fatalf("ListByCommitment: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 link after re-upsert, got %d", len(rows))
	}
	if rows[0].ConfidenceScore != 0.95 || rows[0].LinkedBy != types.LinkedByManual {
		t.Fatalf("re-upsert did not refresh provenance: %+v", rows[0])
	}

	pair, err := repo.GetByPair(ctx, tx, commitment.ID, "email-1")
	if err != nil || pair == nil {
		t.Fatalf("GetByPair: %v, %v", pair, err)
	}
	if missing, err := repo.GetByPair(ctx, tx, commitment.ID, "email-404"); err != nil || missing != nil {
		t.Fatalf("GetByPair missing: expected nil,nil got %v,%v", missing, err)
	}

	// One artifact may link to multiple commitments.
	cross := &types.CommitmentArtifactLink{
		CommitmentID:     other.ID,
		SourceArtifactID: "email-1",
		SourceType:       types.SourceEmail,
		LinkedBy:         types.LinkedByAI,
		ConfidenceScore:  0.7,
	}
	if err := repo.Upsert(ctx, tx, cross); err != nil {
		t.Fatalf("Upsert cross: %v", err)
	}
	byArtifact, err := repo.ListByArtifact(ctx, tx, "email-1")
	if err != nil {
		t.Fatalf("ListByArtifact: %v", err)
	}
	if len(byArtifact) != 2 {
		t.Fatalf("expected 2 links for the artifact, got %d", len(byArtifact))
	}

	// Ordering by linked_at, oldest first.
	older := &types.CommitmentArtifactLink{
		CommitmentID:     commitment.ID,
		SourceArtifactID: "cal-1",
		SourceType:       types.SourceCalendarEvent,
		LinkedBy:         types.LinkedByAI,
		LinkedAt:         time.Now().UTC().Add(-time.Hour),
	}
	if err := repo.Upsert(ctx, tx, older); err != nil {
		t.Fatalf("Upsert older: %v", err)
	}
	rows, err = repo.ListByCommitment(ctx, tx, commitment.ID)
	if err != nil {
		t.Fatalf("ListByCommitment: %v", err)
	}
	if len(rows) != 2 || rows[0].SourceArtifactID != "cal-1" {
		t.Fatalf("expected linked_at ordering, got %+v", rows)
	}

	counts, err := repo.CountByType(ctx, tx, commitment.ID)
	if err != nil {
		t.Fatalf("CountByType: %v", err)
	}
	if counts[types.SourceEmail] != 1 || counts[types.SourceCalendarEvent] != 1 {
		t.Fatalf("CountByType: got %v", counts)
	}

	if err := repo.DeleteByCommitment(ctx, tx, commitment.ID); err != nil {
		t.Fatalf("DeleteByCommitment: %v", err)
	}
	rows, err = repo.ListByCommitment(ctx, tx, commitment.ID)
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected no links after delete, got %d (%v)", len(rows), err)
	}
	// The other commitment's link survives.
	if remaining, err := repo.ListByCommitment(ctx, tx, other.ID); err != nil || len(remaining) != 1 {
		t.Fatalf("unrelated links must survive: %d (%v)", len(remaining), err)
	}
}
