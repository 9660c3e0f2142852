package scoring

import (
	"time"

	"github.com/yungbote/commitments-backend/internal/normalization"
	"github.com/yungbote/commitments-backend/internal/types"
)

// Signals is the scoring-relevant slice of one candidate. Extracting it once
// keeps Score a pure function of plain values.
type Signals struct {
	Title          string
	Start          *time.Time
	End            *time.Time
	Certainty      types.DateCertainty
	ParticipantIDs []string
	ThreadID       string
}

// CandidateSignals extracts and normalizes the scoring inputs of a candidate.
func CandidateSignals(c *types.EventCandidate) Signals {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		id := normalization.NormalizeIdentifier(p.Identifier)
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	certainty := c.CertaintyHint
	if !certainty.Valid() {
		certainty = types.CertaintyUnknown
	}
	start := c.StartEstimate
	if start == nil && c.EndEstimate != nil {
		start = c.EndEstimate
	}
	return Signals{
		Title:          c.Title,
		Start:          start,
		End:            c.EndEstimate,
		Certainty:      certainty,
		ParticipantIDs: ids,
		ThreadID:       c.ThreadID,
	}
}

// Score rates how likely the candidate and the commitment describe the same
// real-world event. Deterministic: identical inputs always yield the same
// value in [0,1]. A shared conversation thread is the strongest possible
// signal and short-circuits to 1.
func Score(s Signals, commitment *types.Commitment, cfg Config) float64 {
	if s.ThreadID != "" && commitment.ThreadID != "" && s.ThreadID == commitment.ThreadID {
		return 1.0
	}
	title := TitleSimilarity(s.Title, commitment.Title)
	temporal := temporalOverlap(s, commitment, cfg)
	participants := participantOverlap(s.ParticipantIDs, commitment.ParticipantList())

	total := cfg.TitleWeight*title + cfg.TemporalWeight*temporal + cfg.ParticipantWeight*participants
	if total < 0 {
		return 0
	}
	if total > 1 {
		return 1
	}
	return total
}

// TitleSimilarity is the Jaccard similarity of the normalized token sets.
func TitleSimilarity(a, b string) float64 {
	setA := normalization.TokenSet(a)
	setB := normalization.TokenSet(b)
	return jaccard(setA, setB)
}

func participantOverlap(candidateIDs []string, participants []types.Participant) float64 {
	setA := make(map[string]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		setA[id] = struct{}{}
	}
	setB := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		id := normalization.NormalizeIdentifier(p.Identifier)
		if id == "" {
			continue
		}
		setB[id] = struct{}{}
	}
	return jaccard(setA, setB)
}

// jaccard of two sets. Two empty sets score 0, not 1: absence of a signal is
// not a match signal.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// temporalOverlap compares the two date ranges coarsened to the coarser of
// the two certainty levels: a "December" estimate and a "Dec 15-17" estimate
// overlap at month granularity. Ranges that miss each other decay linearly
// with the gap over the configured margin.
func temporalOverlap(s Signals, commitment *types.Commitment, cfg Config) float64 {
	if s.Start == nil || commitment.StartDate == nil {
		return 0
	}
	granularity := s.Certainty
	if commitment.DateCertainty.Rank() < granularity.Rank() {
		granularity = commitment.DateCertainty
	}
	candStart, candEnd := CoarsenRange(*s.Start, s.End, granularity)
	commStart, commEnd := CoarsenRange(*commitment.StartDate, commitment.EndDate, granularity)

	if !candStart.After(commEnd) && !commStart.After(candEnd) {
		return 1.0
	}
	var gap time.Duration
	if candStart.After(commEnd) {
		gap = candStart.Sub(commEnd)
	} else {
		gap = commStart.Sub(candEnd)
	}
	margin := time.Duration(cfg.TemporalMarginDays) * 24 * time.Hour
	if gap >= margin {
		return 0
	}
	return 1.0 - float64(gap)/float64(margin)
}

// CoarsenRange widens [start, end] to whole calendar units matching the
// certainty level. Unknown certainty coarsens to month, the most forgiving
// comparison for a vague signal.
func CoarsenRange(start time.Time, end *time.Time, certainty types.DateCertainty) (time.Time, time.Time) {
	e := start
	if end != nil && end.After(start) {
		e = *end
	}
	switch certainty {
	case types.CertaintyExact, types.CertaintyTimeConfirmed:
		return start, e
	case types.CertaintyDay:
		return dayStart(start), dayEnd(e)
	case types.CertaintyWeek:
		return weekStart(start), weekEnd(e)
	default: // month, unknown
		return monthStart(start), monthEnd(e)
	}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayEnd(t time.Time) time.Time {
	return dayStart(t).Add(24*time.Hour - time.Nanosecond)
}

func weekStart(t time.Time) time.Time {
	d := dayStart(t)
	weekday := int(d.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday, ISO weeks start Monday
	}
	return d.AddDate(0, 0, -(weekday - 1))
}

func weekEnd(t time.Time) time.Time {
	return weekStart(t).AddDate(0, 0, 7).Add(-time.Nanosecond)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func monthEnd(t time.Time) time.Time {
	return monthStart(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// MatchWindow returns the margin-expanded window used to pre-filter match
// candidates in storage. Nil when the candidate carries no dates or its
// certainty is unknown, meaning no temporal restriction applies.
func MatchWindow(s Signals, cfg Config) (*time.Time, *time.Time) {
	if s.Start == nil || s.Certainty == types.CertaintyUnknown {
		return nil, nil
	}
	start, end := CoarsenRange(*s.Start, s.End, s.Certainty)
	margin := time.Duration(cfg.TemporalMarginDays) * 24 * time.Hour
	ws := start.Add(-margin)
	we := end.Add(margin)
	return &ws, &we
}
