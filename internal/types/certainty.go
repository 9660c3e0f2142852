package types

// DateCertainty is the ordered precision level of what we know about a
// commitment's dates. Refinements may only move up the ladder unless
// explicitly overridden.
type DateCertainty string

const (
	CertaintyUnknown       DateCertainty = "unknown"
	CertaintyMonth         DateCertainty = "month"
	CertaintyWeek          DateCertainty = "week"
	CertaintyDay           DateCertainty = "day"
	CertaintyExact         DateCertainty = "exact"
	CertaintyTimeConfirmed DateCertainty = "time_confirmed"
)

var certaintyRank = map[DateCertainty]int{
	CertaintyUnknown:       0,
	CertaintyMonth:         1,
	CertaintyWeek:          2,
	CertaintyDay:           3,
	CertaintyExact:         4,
	CertaintyTimeConfirmed: 5,
}

// Rank returns the position of c on the certainty ladder. Unrecognized
// values rank as unknown.
func (c DateCertainty) Rank() int {
	return certaintyRank[c]
}

func (c DateCertainty) Valid() bool {
	_, ok := certaintyRank[c]
	return ok
}

// Commitment lifecycle status. Transitions out of a terminal status are
// rejected; there is no reactivation path.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

func TerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

const (
	TypeMeeting  = "meeting"
	TypeEvent    = "event"
	TypeProject  = "project"
	TypeTrip     = "trip"
	TypeDeadline = "deadline"
	TypeOther    = "other"
)

var commitmentTypes = map[string]struct{}{
	TypeMeeting:  {},
	TypeEvent:    {},
	TypeProject:  {},
	TypeTrip:     {},
	TypeDeadline: {},
	TypeOther:    {},
}

func ValidCommitmentType(t string) bool {
	if t == "" {
		return true
	}
	_, ok := commitmentTypes[t]
	return ok
}

// Source artifact kinds. The artifact itself is owned upstream; this core
// only keeps its identifier.
const (
	SourceEmail         = "email"
	SourceCalendarEvent = "calendar_event"
)

func ValidSourceType(t string) bool {
	return t == SourceEmail || t == SourceCalendarEvent
}

// How a link or refinement came to be.
const (
	LinkedByAI     = "ai"
	LinkedByManual = "manual"
)
