package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommitmentArtifactLink associates a commitment with one source artifact
// (email or calendar event). The artifact is owned upstream; this row keeps
// only its identifier and link provenance. One generalized relation covers
// both source kinds, discriminated by SourceType.
type CommitmentArtifactLink struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CommitmentID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_commitment_artifact,priority:1" json:"commitment_id"`
	SourceArtifactID string    `gorm:"column:source_artifact_id;size:255;not null;index;uniqueIndex:uq_commitment_artifact,priority:2" json:"source_artifact_id"`
	SourceType       string    `gorm:"column:source_type;size:50;not null;index" json:"source_type"`
	ThreadID         string    `gorm:"column:thread_id;size:500" json:"thread_id,omitempty"`
	LinkedAt         time.Time `gorm:"column:linked_at;not null;index" json:"linked_at"`
	LinkedBy         string    `gorm:"column:linked_by;size:50;not null;default:'ai'" json:"linked_by"`
	ConfidenceScore  float64   `gorm:"column:confidence_score" json:"confidence_score"`
	LinkReason       string    `gorm:"column:link_reason;type:text" json:"link_reason,omitempty"`
	CreatedAt        time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (CommitmentArtifactLink) TableName() string { return "commitment_artifact_link" }

func (l *CommitmentArtifactLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.LinkedAt.IsZero() {
		l.LinkedAt = time.Now().UTC()
	}
	return nil
}
