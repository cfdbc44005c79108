package timeline

import "time"

type PhaseStatus struct {
	CurrentPhase Phase `json:"currentPhase"`
	// DaysRemaining counts calendar days to the current phase's end, or to
	// the next phase's start while waiting. Negative means overdue.
	DaysRemaining int `json:"daysRemaining"`
}

// ResolvePhase reports which phase is current on the calendar date of now.
// Phase bounds are inclusive. A date in the gap between two phases resolves
// to the upcoming phase with the days counted to its start.
//
// The timeline must have passed Validate; the result is unspecified otherwise.
func ResolvePhase(t Timeline, now time.Time) PhaseStatus {
	t = t.Normalized()
	today := DateOf(now)

	if today.Before(t.SelfAssessment.Start) {
		return PhaseStatus{
			CurrentPhase:  PhaseNotStarted,
			DaysRemaining: DaysBetween(today, t.SelfAssessment.Start),
		}
	}

	for _, pr := range t.Phases() {
		if pr.Range.Contains(today) {
			return PhaseStatus{CurrentPhase: pr.Phase, DaysRemaining: DaysBetween(today, pr.Range.End)}
		}
		if today.Before(pr.Range.Start) {
			return PhaseStatus{CurrentPhase: pr.Phase, DaysRemaining: DaysBetween(today, pr.Range.Start)}
		}
	}

	return PhaseStatus{CurrentPhase: PhaseCompleted, DaysRemaining: 0}
}

// IsOpen reports whether the window of phase p has started by now's date.
// Late submissions after the window ends are still accepted.
func IsOpen(t Timeline, p Phase, now time.Time) bool {
	r, ok := t.Normalized().Range(p)
	if !ok {
		return false
	}
	return !DateOf(now).Before(r.Start)
}
