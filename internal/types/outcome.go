package types

import (
	"github.com/google/uuid"
)

const (
	ActionCreated = "created"
	ActionLinked  = "linked"
)

// ResolutionOutcome is the single terminal result of resolving one candidate.
type ResolutionOutcome struct {
	CommitmentID uuid.UUID `json:"commitment_id"`
	Action       string    `json:"action"`
	Score        float64   `json:"score"`
}
