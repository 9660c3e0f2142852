package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/commitments-backend/internal/types"
)

// Reset empties every table. Service tests run against the shared handle
// rather than a rollback tx, so each one starts from a clean slate.
func Reset(tb testing.TB, db *gorm.DB) {
	tb.Helper()
	for _, table := range []string{
		"commitment_date_audit",
		"commitment_artifact_link",
		"ingest_task",
		"commitment",
	} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			tb.Fatalf("reset %s: %v", table, err)
		}
	}
}

func SeedCommitment(tb testing.TB, ctx context.Context, tx *gorm.DB, title string, mutate func(*types.Commitment)) *types.Commitment {
	tb.Helper()
	c := &types.Commitment{
		ID:            uuid.New(),
		Title:         title,
		Status:        types.StatusActive,
		DateCertainty: types.CertaintyUnknown,
		DedupKey:      "seed:" + uuid.NewString(),
	}
	if mutate != nil {
		mutate(c)
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed commitment: %v", err)
	}
	return c
}

func SeedLink(tb testing.TB, ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID, artifactID, sourceType string) *types.CommitmentArtifactLink {
	tb.Helper()
	l := &types.CommitmentArtifactLink{
		ID:               uuid.New(),
		CommitmentID:     commitmentID,
		SourceArtifactID: artifactID,
		SourceType:       sourceType,
		LinkedAt:         time.Now().UTC(),
		LinkedBy:         types.LinkedByAI,
		ConfidenceScore:  0.9,
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed link: %v", err)
	}
	return l
}

func SeedAudit(tb testing.TB, ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID, seq int) *types.CommitmentDateAudit {
	tb.Helper()
	a := &types.CommitmentDateAudit{
		ID:               uuid.New(),
		CommitmentID:     commitmentID,
		Seq:              seq,
		PrevCertainty:    types.CertaintyUnknown,
		NewCertainty:     types.CertaintyDay,
		SourceArtifactID: "audit-artifact",
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed audit: %v", err)
	}
	return a
}

func PtrTime(v time.Time) *time.Time { return &v }
