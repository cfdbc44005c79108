package timeline

import "math"

type PhaseCount struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type Counts struct {
	Self    PhaseCount `json:"self"`
	Peer    PhaseCount `json:"peer"`
	Manager PhaseCount `json:"manager"`
}

// Add records one expected submission for phase p, completed or not.
func (c *Counts) Add(p Phase, completed bool) {
	var pc *PhaseCount
	switch p {
	case PhaseSelfAssessment:
		pc = &c.Self
	case PhasePeerReview:
		pc = &c.Peer
	case PhaseManagerReview:
		pc = &c.Manager
	default:
		return
	}
	pc.Total++
	if completed {
		pc.Completed++
	}
}

type PhaseProgress struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

type ProgressSnapshot struct {
	Self              PhaseProgress `json:"self"`
	Peer              PhaseProgress `json:"peer"`
	Manager           PhaseProgress `json:"manager"`
	OverallPercentage int           `json:"overallPercentage"`
}

// Percentage is completed/total as a whole percentage, rounded half up.
// It is 0 when total is 0. completed <= total is not checked.
func Percentage(completed, total int) int {
	if total == 0 {
		return 0
	}
	return roundHalfUp(float64(completed) * 100 / float64(total))
}

// Aggregate computes per-phase percentages and their unweighted mean. The
// mean is taken over the already rounded phase percentages.
func Aggregate(c Counts) ProgressSnapshot {
	self := phaseProgress(c.Self)
	peer := phaseProgress(c.Peer)
	manager := phaseProgress(c.Manager)
	mean := float64(self.Percentage+peer.Percentage+manager.Percentage) / 3
	return ProgressSnapshot{
		Self:              self,
		Peer:              peer,
		Manager:           manager,
		OverallPercentage: roundHalfUp(mean),
	}
}

func phaseProgress(pc PhaseCount) PhaseProgress {
	return PhaseProgress{Completed: pc.Completed, Total: pc.Total, Percentage: Percentage(pc.Completed, pc.Total)}
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
