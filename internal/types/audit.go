package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditEntryVersion is bumped if the audit row shape ever changes; readers
// can branch on it instead of guessing from an untyped payload.
const AuditEntryVersion = 1

// CommitmentDateAudit is one append-only record of an accepted temporal
// refinement. Entries are never updated or deleted; Seq is dense and 1-based
// per commitment.
type CommitmentDateAudit struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	CommitmentID     uuid.UUID     `gorm:"type:uuid;not null;index;uniqueIndex:uq_commitment_audit_seq,priority:1" json:"commitment_id"`
	Seq              int           `gorm:"column:seq;not null;uniqueIndex:uq_commitment_audit_seq,priority:2" json:"seq"`
	EntryVersion     int           `gorm:"column:entry_version;not null;default:1" json:"entry_version"`
	PrevStart        *time.Time    `gorm:"column:prev_start" json:"prev_start,omitempty"`
	PrevEnd          *time.Time    `gorm:"column:prev_end" json:"prev_end,omitempty"`
	PrevCertainty    DateCertainty `gorm:"column:prev_certainty;size:50" json:"prev_certainty"`
	PrevTimezone     string        `gorm:"column:prev_timezone;size:100" json:"prev_timezone,omitempty"`
	NewStart         *time.Time    `gorm:"column:new_start" json:"new_start,omitempty"`
	NewEnd           *time.Time    `gorm:"column:new_end" json:"new_end,omitempty"`
	NewCertainty     DateCertainty `gorm:"column:new_certainty;size:50" json:"new_certainty"`
	NewTimezone      string        `gorm:"column:new_timezone;size:100" json:"new_timezone,omitempty"`
	SourceArtifactID string        `gorm:"column:source_artifact_id;size:255;not null" json:"source_artifact_id"`
	ManualOverride   bool          `gorm:"column:manual_override;not null;default:false" json:"manual_override"`
	CreatedAt        time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (CommitmentDateAudit) TableName() string { return "commitment_date_audit" }

func (a *CommitmentDateAudit) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.EntryVersion == 0 {
		a.EntryVersion = AuditEntryVersion
	}
	return nil
}
