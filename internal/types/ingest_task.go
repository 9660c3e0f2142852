package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ingest task lifecycle. done, rejected and dead are terminal; every
// enqueued candidate ends in exactly one of them.
const (
	TaskQueued   = "queued"
	TaskRunning  = "running"
	TaskDone     = "done"
	TaskFailed   = "failed"
	TaskRejected = "rejected"
	TaskDead     = "dead"
)

// IngestTask is one delivered candidate waiting for (or finished with)
// resolution. The delivery system upstream may redeliver; SourceArtifactID
// is unique so redelivery lands on the same row.
type IngestTask struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SourceArtifactID string         `gorm:"column:source_artifact_id;size:255;not null;uniqueIndex" json:"source_artifact_id"`
	Payload          datatypes.JSON `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	Status           string         `gorm:"column:status;size:50;not null;default:'queued';index" json:"status"`
	Attempts         int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError        string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	LastErrorAt      *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	NextRetryAt      *time.Time     `gorm:"column:next_retry_at;index" json:"next_retry_at,omitempty"`
	LockedAt         *time.Time     `gorm:"column:locked_at" json:"locked_at,omitempty"`
	HeartbeatAt      *time.Time     `gorm:"column:heartbeat_at" json:"heartbeat_at,omitempty"`
	CommitmentID     *uuid.UUID     `gorm:"type:uuid;column:commitment_id;index" json:"commitment_id,omitempty"`
	Action           string         `gorm:"column:action;size:50" json:"action,omitempty"`
	Score            float64        `gorm:"column:score" json:"score"`
	CreatedAt        time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (IngestTask) TableName() string { return "ingest_task" }

func (t *IngestTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func TerminalTaskStatus(status string) bool {
	return status == TaskDone || status == TaskRejected || status == TaskDead
}
