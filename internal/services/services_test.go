package services

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/commitments-backend/internal/locking"
	"github.com/yungbote/commitments-backend/internal/repos"
	"github.com/yungbote/commitments-backend/internal/repos/testutil"
	"github.com/yungbote/commitments-backend/internal/scoring"
	"github.com/yungbote/commitments-backend/internal/types"
)

// testServices wires the full resolution stack against the shared test
// database. Each test calls newTestServices, which also wipes the tables.
type testServices struct {
	db          *gorm.DB
	commitments repos.CommitmentRepo
	links       repos.LinkRepo
	audits      repos.AuditRepo
	refiner     RefineService
	registry    LinkRegistry
	resolver    ResolutionService
	lifecycle   CommitmentService
	query       QueryService
}

func listAllFilter() repos.CommitmentFilter { return repos.CommitmentFilter{} }

// seedActiveCommitment inserts a dated active commitment directly, bypassing
// the resolution path.
func seedActiveCommitment(t *testing.T, s *testServices, title string, start time.Time, dedupSuffix string) *types.Commitment {
	t.Helper()
	c := &types.Commitment{
		Title:         title,
		Status:        types.StatusActive,
		StartDate:     &start,
		DateCertainty: types.CertaintyDay,
		DedupKey:      "seed|" + dedupSuffix,
	}
	if err := s.commitments.Create(context.Background(), nil, c); err != nil {
		t.Fatalf("seed commitment: %v", err)
	}
	return c
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	db := testutil.DB(t)
	testutil.Reset(t, db)
	log := testutil.Logger(t)

	commitments := repos.NewCommitmentRepo(db, log)
	links := repos.NewLinkRepo(db, log)
	audits := repos.NewAuditRepo(db, log)

	refiner := NewRefineService(db, log, commitments, audits)
	registry := NewLinkRegistry(db, log, links)
	resolver := NewResolutionService(
		db, log, scoring.DefaultConfig(),
		locking.NewKeyedMutex(), 5*time.Second,
		commitments, links, refiner, registry,
	)

	return &testServices{
		db:          db,
		commitments: commitments,
		links:       links,
		audits:      audits,
		refiner:     refiner,
		registry:    registry,
		resolver:    resolver,
		lifecycle:   NewCommitmentService(db, log, commitments, links),
		query:       NewQueryService(db, log, commitments, links, audits),
	}
}
