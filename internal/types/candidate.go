package types

import (
	"time"
)

// CandidateParticipant mirrors Participant on the intake side.
type CandidateParticipant struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
	Role       string `json:"role,omitempty"`
}

// EventCandidate is one extracted signal about a possible real-world
// commitment, produced by the upstream extraction pipeline and delivered at
// least once. SourceArtifactID doubles as the idempotency key.
type EventCandidate struct {
	SourceArtifactID string                 `json:"source_artifact_id"`
	SourceType       string                 `json:"source_type"`
	Title            string                 `json:"title,omitempty"`
	Description      string                 `json:"description,omitempty"`
	CommitmentType   string                 `json:"commitment_type,omitempty"`
	StartEstimate    *time.Time             `json:"start_estimate,omitempty"`
	EndEstimate      *time.Time             `json:"end_estimate,omitempty"`
	CertaintyHint    DateCertainty          `json:"certainty_hint,omitempty"`
	Timezone         string                 `json:"timezone,omitempty"`
	Participants     []CandidateParticipant `json:"participants,omitempty"`
	Organizer        string                 `json:"organizer,omitempty"`
	Location         string                 `json:"location,omitempty"`
	MeetingLinks     []string               `json:"meeting_links,omitempty"`
	ThreadID         string                 `json:"thread_id,omitempty"`
}

// HasTemporalHint reports whether the candidate carries any usable date
// signal. A candidate with neither a title nor a temporal hint is malformed.
func (c *EventCandidate) HasTemporalHint() bool {
	return c.StartEstimate != nil || c.EndEstimate != nil
}

// DateEstimate is the temporal slice of a candidate handed to the refinement
// manager.
type DateEstimate struct {
	Start     *time.Time
	End       *time.Time
	Certainty DateCertainty
	Timezone  string
}

// Estimate extracts the candidate's temporal information.
func (c *EventCandidate) Estimate() DateEstimate {
	certainty := c.CertaintyHint
	if !certainty.Valid() {
		certainty = CertaintyUnknown
	}
	start := c.StartEstimate
	if start == nil && c.EndEstimate != nil {
		// a lone end bound still anchors the range
		start = c.EndEstimate
	}
	return DateEstimate{
		Start:     start,
		End:       c.EndEstimate,
		Certainty: certainty,
		Timezone:  c.Timezone,
	}
}
