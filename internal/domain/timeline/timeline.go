// Package timeline evaluates review cycle timelines: structural validation,
// current phase resolution and completion progress. Every function is pure
// and safe for concurrent use.
package timeline

import "time"

type Phase string

const (
	PhaseNotStarted     Phase = "NotStarted"
	PhaseSelfAssessment Phase = "SelfAssessment"
	PhasePeerReview     Phase = "PeerReview"
	PhaseManagerReview  Phase = "ManagerReview"
	PhaseCompleted      Phase = "Completed"
)

// Field names used in FieldError and in the JSON form of a timeline.
const (
	FieldReviewPeriod   = "reviewPeriod"
	FieldSelfAssessment = "selfAssessment"
	FieldPeerReview     = "peerReview"
	FieldManagerReview  = "managerReview"
)

// ReviewPhases lists the review phases in the order they must occur.
var ReviewPhases = []Phase{PhaseSelfAssessment, PhasePeerReview, PhaseManagerReview}

// FieldName returns the timeline field holding the phase's range, or "" for
// phases that have no range.
func (p Phase) FieldName() string {
	switch p {
	case PhaseSelfAssessment:
		return FieldSelfAssessment
	case PhasePeerReview:
		return FieldPeerReview
	case PhaseManagerReview:
		return FieldManagerReview
	}
	return ""
}

// IsReview reports whether p is one of the three review phases.
func (p Phase) IsReview() bool {
	return p.FieldName() != ""
}

// ParsePhase accepts the phase name or its field name.
func ParsePhase(value string) (Phase, bool) {
	for _, p := range ReviewPhases {
		if value == string(p) || value == p.FieldName() {
			return p, true
		}
	}
	switch Phase(value) {
	case PhaseNotStarted, PhaseCompleted:
		return Phase(value), true
	}
	return "", false
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange truncates both bounds to their calendar date.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: DateOf(start), End: DateOf(end)}
}

// Contains reports whether day falls inside the range, bounds included.
func (r DateRange) Contains(day time.Time) bool {
	day = DateOf(day)
	return !day.Before(r.Start) && !day.After(r.End)
}

func (r DateRange) Within(outer DateRange) bool {
	return !r.Start.Before(outer.Start) && !r.End.After(outer.End)
}

type Timeline struct {
	ReviewPeriod   DateRange `json:"reviewPeriod"`
	SelfAssessment DateRange `json:"selfAssessment"`
	PeerReview     DateRange `json:"peerReview"`
	ManagerReview  DateRange `json:"managerReview"`
}

type PhaseRange struct {
	Phase Phase
	Range DateRange
}

// Phases returns the review phases with their ranges in chronological order.
func (t Timeline) Phases() []PhaseRange {
	return []PhaseRange{
		{Phase: PhaseSelfAssessment, Range: t.SelfAssessment},
		{Phase: PhasePeerReview, Range: t.PeerReview},
		{Phase: PhaseManagerReview, Range: t.ManagerReview},
	}
}

// Range returns the range of a review phase.
func (t Timeline) Range(p Phase) (DateRange, bool) {
	switch p {
	case PhaseSelfAssessment:
		return t.SelfAssessment, true
	case PhasePeerReview:
		return t.PeerReview, true
	case PhaseManagerReview:
		return t.ManagerReview, true
	}
	return DateRange{}, false
}

// Normalized returns a copy with every bound truncated to its calendar date.
func (t Timeline) Normalized() Timeline {
	return Timeline{
		ReviewPeriod:   NewDateRange(t.ReviewPeriod.Start, t.ReviewPeriod.End),
		SelfAssessment: NewDateRange(t.SelfAssessment.Start, t.SelfAssessment.End),
		PeerReview:     NewDateRange(t.PeerReview.Start, t.PeerReview.End),
		ManagerReview:  NewDateRange(t.ManagerReview.Start, t.ManagerReview.End),
	}
}

// DateOf drops the time of day, keeping the calendar date as seen in t's
// own location, and returns it as midnight UTC.
func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const secondsPerDay = 24 * 60 * 60

// DaysBetween returns the signed number of calendar days from one date to another.
// Both sides are UTC midnights, so the difference in Unix seconds is an exact
// multiple of a day for any year ParseDate accepts.
func DaysBetween(from, to time.Time) int {
	return int((DateOf(to).Unix() - DateOf(from).Unix()) / secondsPerDay)
}
