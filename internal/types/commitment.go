package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Participant is one entry of a commitment's participant list. Identifier is
// a normalized mailbox address (or other stable id) and is unique within the
// list.
type Participant struct {
	Identifier  string `json:"identifier"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
}

type Commitment struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Title          string         `gorm:"column:title;size:500;not null" json:"title"`
	Description    string         `gorm:"column:description;type:text" json:"description,omitempty"`
	CommitmentType string         `gorm:"column:commitment_type;size:100;index" json:"commitment_type,omitempty"`
	Status         string         `gorm:"column:status;size:50;not null;default:'active';index" json:"status"`
	StartDate      *time.Time     `gorm:"column:start_date;index" json:"start_date,omitempty"`
	EndDate        *time.Time     `gorm:"column:end_date" json:"end_date,omitempty"`
	Timezone       string         `gorm:"column:timezone;size:100" json:"timezone,omitempty"`
	DateCertainty  DateCertainty  `gorm:"column:date_certainty;size:50;not null;default:'unknown';index" json:"date_certainty"`
	Participants   datatypes.JSON `gorm:"column:participants;type:jsonb" json:"participants,omitempty"`
	Organizer      string         `gorm:"column:organizer;size:500" json:"organizer,omitempty"`
	Location       string         `gorm:"column:location;type:text" json:"location,omitempty"`
	MeetingLinks   datatypes.JSON `gorm:"column:meeting_links;type:jsonb" json:"meeting_links,omitempty"`
	AutoLinked     bool           `gorm:"column:auto_linked;not null;default:false" json:"auto_linked"`
	ConfidenceScore float64       `gorm:"column:confidence_score" json:"confidence_score"`
	ThreadID       string         `gorm:"column:thread_id;size:500;index" json:"thread_id,omitempty"`
	DedupKey       string         `gorm:"column:dedup_key;size:700;uniqueIndex" json:"-"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Commitment) TableName() string { return "commitment" }

func (c *Commitment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ParticipantList decodes the jsonb participants column. A broken column
// decodes as empty rather than failing the read path.
func (c *Commitment) ParticipantList() []Participant {
	if len(c.Participants) == 0 {
		return nil
	}
	var out []Participant
	if err := json.Unmarshal(c.Participants, &out); err != nil {
		return nil
	}
	return out
}

func (c *Commitment) SetParticipants(list []Participant) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	c.Participants = datatypes.JSON(raw)
	return nil
}

func (c *Commitment) MeetingLinkList() []string {
	if len(c.MeetingLinks) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(c.MeetingLinks, &out); err != nil {
		return nil
	}
	return out
}

func (c *Commitment) SetMeetingLinks(links []string) error {
	raw, err := json.Marshal(links)
	if err != nil {
		return err
	}
	c.MeetingLinks = datatypes.JSON(raw)
	return nil
}
