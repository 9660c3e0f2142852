package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/commitments-backend/internal/locking"
	"github.com/yungbote/commitments-backend/internal/repos"
	"github.com/yungbote/commitments-backend/internal/repos/testutil"
	"github.com/yungbote/commitments-backend/internal/scoring"
	"github.com/yungbote/commitments-backend/internal/services"
	"github.com/yungbote/commitments-backend/internal/types"
)

type ingestHarness struct {
	db     *gorm.DB
	tasks  repos.IngestTaskRepo
	intake Intake
	worker *Worker
}

func newIngestHarness(t *testing.T, resolver services.ResolutionService, cfg WorkerConfig) *ingestHarness {
	t.Helper()
	db := testutil.DB(t)
	testutil.Reset(t, db)
	log := testutil.Logger(t)

	tasks := repos.NewIngestTaskRepo(db, log)
	if resolver == nil {
		commitments := repos.NewCommitmentRepo(db, log)
		links := repos.NewLinkRepo(db, log)
		audits := repos.NewAuditRepo(db, log)
		refiner := services.NewRefineService(db, log, commitments, audits)
		registry := services.NewLinkRegistry(db, log, links)
		resolver = services.NewResolutionService(
			db, log, scoring.DefaultConfig(),
			locking.NewKeyedMutex(), 5*time.Second,
			commitments, links, refiner, registry,
		)
	}
	return &ingestHarness{
		db:     db,
		tasks:  tasks,
		intake: NewIntake(db, log, tasks),
		worker: NewWorker(db, log, tasks, resolver, cfg),
	}
}

// stubResolver lets the worker tests force resolution outcomes.
type stubResolver struct {
	outcome *types.ResolutionOutcome
	err     error
	calls   int
}

func (s *stubResolver) Resolve(ctx context.Context, candidate *types.EventCandidate) (*types.ResolutionOutcome, error) {
	s.calls++
	return s.outcome, s.err
}

func TestWorker_ResolvesEnqueuedCandidate(t *testing.T) {
	h := newIngestHarness(t, nil, DefaultWorkerConfig())
	ctx := context.Background()

	at := time.Date(2026, 12, 15, 19, 0, 0, 0, time.UTC)
	task, err := h.intake.Enqueue(ctx, &types.EventCandidate{
		SourceArtifactID: "email-1",
		SourceType:       types.SourceEmail,
		Title:            "Dinner with Sam",
		StartEstimate:    &at,
		CertaintyHint:    types.CertaintyExact,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := h.worker.RunOnce(ctx)
	if err != nil || !claimed {
		t.Fatalf("RunOnce: claimed=%v err=%v", claimed, err)
	}

	done, err := h.tasks.GetBySourceArtifactID(ctx, nil, "email-1")
	if err != nil || done == nil {
		t.Fatalf("load task: %v, %v", done, err)
	}
	if done.ID != task.ID || done.Status != types.TaskDone {
		t.Fatalf("expected done task, got %+v", done)
	}
	if done.CommitmentID == nil || done.Action != types.ActionCreated {
		t.Fatalf("outcome not recorded: %+v", done)
	}

	// Nothing left to claim.
	if again, err := h.worker.RunOnce(ctx); err != nil || again {
		t.Fatalf("expected empty queue, got claimed=%v err=%v", again, err)
	}
}

func TestWorker_EnqueueIsIdempotentAcrossRedelivery(t *testing.T) {
	h := newIngestHarness(t, nil, DefaultWorkerConfig())
	ctx := context.Background()

	at := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	candidate := &types.EventCandidate{
		SourceArtifactID: "email-dup",
		SourceType:       types.SourceEmail,
		Title:            "Kickoff",
		StartEstimate:    &at,
		CertaintyHint:    types.CertaintyExact,
	}

	first, err := h.intake.Enqueue(ctx, candidate)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	second, err := h.intake.Enqueue(ctx, candidate)
	if err != nil {
		t.Fatalf("Enqueue redelivery: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("redelivery must reuse the task row")
	}

	queued, err := h.tasks.ListByStatus(ctx, nil, types.TaskQueued, 10)
	if err != nil || len(queued) != 1 {
		t.Fatalf("expected one queued task, got %d (%v)", len(queued), err)
	}
}

func TestWorker_RejectsMalformedCandidate(t *testing.T) {
	h := newIngestHarness(t, nil, DefaultWorkerConfig())
	ctx := context.Background()

	if _, err := h.intake.Enqueue(ctx, &types.EventCandidate{
		SourceArtifactID: "email-bad",
		SourceType:       "sms",
		Title:            "x",
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if claimed, err := h.worker.RunOnce(ctx); err != nil || !claimed {
		t.Fatalf("RunOnce: claimed=%v err=%v", claimed, err)
	}

	task, err := h.tasks.GetBySourceArtifactID(ctx, nil, "email-bad")
	if err != nil || task == nil {
		t.Fatalf("load task: %v, %v", task, err)
	}
	if task.Status != types.TaskRejected {
		t.Fatalf("malformed candidate must be rejected, got %s", task.Status)
	}
	if task.LastError == "" {
		t.Fatalf("rejection must record the reason")
	}
}

func TestWorker_RejectsUndecodablePayload(t *testing.T) {
	h := newIngestHarness(t, nil, DefaultWorkerConfig())
	ctx := context.Background()

	if _, _, err := h.tasks.Enqueue(ctx, nil, "email-garbage", datatypes.JSON([]byte("not json"))); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if claimed, err := h.worker.RunOnce(ctx); err != nil || !claimed {
		t.Fatalf("RunOnce: claimed=%v err=%v", claimed, err)
	}
	task, err := h.tasks.GetBySourceArtifactID(ctx, nil, "email-garbage")
	if err != nil || task == nil || task.Status != types.TaskRejected {
		t.Fatalf("expected rejected task, got %+v (%v)", task, err)
	}
}

func TestWorker_TransientFailureRetriesThenDeadLetters(t *testing.T) {
	stub := &stubResolver{err: errors.New("storage flake")}
	cfg := DefaultWorkerConfig()
	cfg.MaxAttempts = 2
	cfg.MinBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	h := newIngestHarness(t, stub, cfg)
	ctx := context.Background()

	if _, _, err := h.tasks.Enqueue(ctx, nil, "email-flaky", datatypes.JSON([]byte(`{"source_artifact_id":"email-flaky","source_type":"email","title":"x"}`))); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Attempt 1 fails and requeues.
	if claimed, err := h.worker.RunOnce(ctx); err != nil || !claimed {
		t.Fatalf("RunOnce #1: claimed=%v err=%v", claimed, err)
	}
	task, err := h.tasks.GetBySourceArtifactID(ctx, nil, "email-flaky")
	if err != nil || task == nil {
		t.Fatalf("load task: %v, %v", task, err)
	}
	if task.Status != types.TaskFailed || task.NextRetryAt == nil {
		t.Fatalf("expected failed task with retry time, got %+v", task)
	}

	// Wait out the backoff, then the final attempt dead-letters.
	time.Sleep(10 * time.Millisecond)
	if claimed, err := h.worker.RunOnce(ctx); err != nil || !claimed {
		t.Fatalf("RunOnce #2: claimed=%v err=%v", claimed, err)
	}
	task, err = h.tasks.GetBySourceArtifactID(ctx, nil, "email-flaky")
	if err != nil || task == nil {
		t.Fatalf("load task: %v, %v", task, err)
	}
	if task.Status != types.TaskDead {
		t.Fatalf("expected dead-lettered task, got %s", task.Status)
	}
	if task.Attempts != 2 || stub.calls != 2 {
		t.Fatalf("expected 2 attempts, got attempts=%d calls=%d", task.Attempts, stub.calls)
	}

	// Dead tasks are never claimed again.
	if claimed, err := h.worker.RunOnce(ctx); err != nil || claimed {
		t.Fatalf("dead task must stay dead, claimed=%v err=%v", claimed, err)
	}
}

func TestWorker_BackoffGrowsAndCaps(t *testing.T) {
	cfg := DefaultWorkerConfig()
	cfg.MinBackoff = time.Second
	cfg.MaxBackoff = 8 * time.Second
	cfg.JitterFrac = 0.20
	w := NewWorker(nil, testutil.Logger(t), nil, &stubResolver{}, cfg)

	for attempts := 1; attempts <= 6; attempts++ {
		d := w.backoff(attempts)
		base := time.Second << uint(attempts-1)
		if base > cfg.MaxBackoff {
			base = cfg.MaxBackoff
		}
		lo := time.Duration(float64(base) * 0.8)
		hi := time.Duration(float64(base) * 1.2)
		if d < lo || d > hi {
			t.Fatalf("attempt %d: backoff %v outside [%v, %v]", attempts, d, lo, hi)
		}
	}
}
