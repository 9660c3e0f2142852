package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/commitments-backend/internal/logger"
	"github.com/yungbote/commitments-backend/internal/repos"
	"github.com/yungbote/commitments-backend/internal/services"
	"github.com/yungbote/commitments-backend/internal/types"
)

type WorkerConfig struct {
	Concurrency  int
	MaxAttempts  int
	PollInterval time.Duration
	StaleRunning time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	JitterFrac   float64
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:  4,
		MaxAttempts:  5,
		PollInterval: 1 * time.Second,
		StaleRunning: 2 * time.Minute,
		MinBackoff:   1 * time.Second,
		MaxBackoff:   30 * time.Second,
		JitterFrac:   0.20,
	}
}

// Worker drains the ingest task table: claim, resolve, finalize. Every task
// ends in exactly one terminal status (done, rejected, dead); transient
// failures requeue with backoff until attempts run out.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	tasks    repos.IngestTaskRepo
	resolver services.ResolutionService
	cfg      WorkerConfig
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, tasks repos.IngestTaskRepo, resolver services.ResolutionService, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.StaleRunning <= 0 {
		cfg.StaleRunning = 2 * time.Minute
	}
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "IngestWorker"),
		tasks:    tasks,
		resolver: resolver,
		cfg:      cfg,
	}
}

// Start runs the claim loops until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for n := 0; n < w.cfg.Concurrency; n++ {
		g.Go(func() error {
			ticker := time.NewTicker(w.cfg.PollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					for {
						claimed, err := w.RunOnce(gctx)
						if err != nil {
							w.log.Warn("Ingest claim cycle failed", "error", err)
							break
						}
						if !claimed {
							break
						}
					}
				}
			}
		})
	}
	go func() {
		_ = g.Wait()
	}()
}

// RunOnce claims and processes at most one task. Returns whether a task was
// claimed. Used directly by tests and by the Start loops.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	task, err := w.tasks.ClaimNextRunnable(ctx, nil, w.cfg.MaxAttempts, w.cfg.StaleRunning)
	if err != nil {
		return false, fmt.Errorf("claim next runnable: %w", err)
	}
	if task == nil {
		return false, nil
	}
	w.process(ctx, task)
	return true, nil
}

func (w *Worker) process(ctx context.Context, task *types.IngestTask) {
	var candidate types.EventCandidate
	if err := json.Unmarshal(task.Payload, &candidate); err != nil {
		w.reject(ctx, task, fmt.Sprintf("undecodable payload: %v", err))
		return
	}

	outcome, err := w.resolver.Resolve(ctx, &candidate)
	if err == nil {
		w.complete(ctx, task, outcome)
		return
	}
	if !services.Retryable(err) {
		w.reject(ctx, task, err.Error())
		return
	}
	w.requeueOrDeadLetter(ctx, task, err)
}

func (w *Worker) complete(ctx context.Context, task *types.IngestTask, outcome *types.ResolutionOutcome) {
	err := w.tasks.UpdateFields(ctx, nil, task.ID, map[string]interface{}{
		"status":        types.TaskDone,
		"commitment_id": outcome.CommitmentID,
		"action":        outcome.Action,
		"score":         outcome.Score,
		"last_error":    "",
	})
	if err != nil {
		w.log.Error("Failed to mark task done", "task_id", task.ID, "error", err)
		return
	}
	w.log.Info("Candidate resolved",
		"task_id", task.ID,
		"source_artifact_id", task.SourceArtifactID,
		"commitment_id", outcome.CommitmentID,
		"action", outcome.Action,
	)
}

func (w *Worker) reject(ctx context.Context, task *types.IngestTask, reason string) {
	now := time.Now().UTC()
	err := w.tasks.UpdateFields(ctx, nil, task.ID, map[string]interface{}{
		"status":        types.TaskRejected,
		"last_error":    reason,
		"last_error_at": now,
	})
	if err != nil {
		w.log.Error("Failed to mark task rejected", "task_id", task.ID, "error", err)
		return
	}
	w.log.Warn("Candidate rejected as malformed",
		"task_id", task.ID,
		"source_artifact_id", task.SourceArtifactID,
		"reason", reason,
	)
}

func (w *Worker) requeueOrDeadLetter(ctx context.Context, task *types.IngestTask, cause error) {
	now := time.Now().UTC()
	if task.Attempts >= w.cfg.MaxAttempts {
		err := w.tasks.UpdateFields(ctx, nil, task.ID, map[string]interface{}{
			"status":        types.TaskDead,
			"last_error":    cause.Error(),
			"last_error_at": now,
		})
		if err != nil {
			w.log.Error("Failed to dead-letter task", "task_id", task.ID, "error", err)
			return
		}
		w.log.Error("Candidate dead-lettered after exhausting retries",
			"task_id", task.ID,
			"source_artifact_id", task.SourceArtifactID,
			"attempts", task.Attempts,
			"error", cause,
		)
		return
	}
	retryAt := now.Add(w.backoff(task.Attempts))
	err := w.tasks.UpdateFields(ctx, nil, task.ID, map[string]interface{}{
		"status":        types.TaskFailed,
		"last_error":    cause.Error(),
		"last_error_at": now,
		"next_retry_at": retryAt,
	})
	if err != nil {
		w.log.Error("Failed to requeue task", "task_id", task.ID, "error", err)
		return
	}
	w.log.Warn("Candidate requeued after transient failure",
		"task_id", task.ID,
		"source_artifact_id", task.SourceArtifactID,
		"attempts", task.Attempts,
		"retry_at", retryAt,
		"error", cause,
	)
}

func (w *Worker) backoff(attempts int) time.Duration {
	minB := w.cfg.MinBackoff
	maxB := w.cfg.MaxBackoff
	j := w.cfg.JitterFrac
	if minB <= 0 {
		minB = 1 * time.Second
	}
	if maxB <= 0 {
		maxB = 30 * time.Second
	}
	if j <= 0 {
		j = 0.20
	}
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(float64(minB) * math.Pow(2, float64(attempts-1)))
	if d > maxB {
		d = maxB
	}
	delta := float64(d) * j
	low := float64(d) - delta
	high := float64(d) + delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}
