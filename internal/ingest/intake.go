package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/commitments-backend/internal/logger"
	"github.com/yungbote/commitments-backend/internal/repos"
	"github.com/yungbote/commitments-backend/internal/types"
)

// Intake is the boundary the upstream delivery system calls, once or more,
// per extracted candidate. Enqueue is idempotent by source_artifact_id.
type Intake interface {
	Enqueue(ctx context.Context, candidate *types.EventCandidate) (*types.IngestTask, error)
}

type intake struct {
	db    *gorm.DB
	log   *logger.Logger
	tasks repos.IngestTaskRepo
}

func NewIntake(db *gorm.DB, baseLog *logger.Logger, tasks repos.IngestTaskRepo) Intake {
	return &intake{
		db:    db,
		log:   baseLog.With("service", "Intake"),
		tasks: tasks,
	}
}

func (i *intake) Enqueue(ctx context.Context, candidate *types.EventCandidate) (*types.IngestTask, error) {
	if candidate == nil || candidate.SourceArtifactID == "" {
		return nil, fmt.Errorf("enqueue: source_artifact_id required")
	}
	payload, err := json.Marshal(candidate)
	if err != nil {
		return nil, fmt.Errorf("encode candidate: %w", err)
	}
	task, pending, err := i.tasks.Enqueue(ctx, nil, candidate.SourceArtifactID, datatypes.JSON(payload))
	if err != nil {
		return nil, fmt.Errorf("enqueue candidate: %w", err)
	}
	i.log.Debug("Candidate enqueued",
		"source_artifact_id", candidate.SourceArtifactID,
		"task_id", task.ID,
		"pending", pending,
	)
	return task, nil
}
