package cycles

import (
	"context"
	"fmt"
	"time"

	"perfreview/internal/domain/auth"
	"perfreview/internal/domain/timeline"
)

// Dashboard summarises open cycles for one user. HR sees every open cycle
// with its progress; managers and employees see the cycles they take part
// in along with their own pending assignments.
func (s *Service) Dashboard(ctx context.Context, tenantID, role, userID string, now time.Time) (Dashboard, error) {
	out := Dashboard{Role: role, AsOf: timeline.FormatDate(now), Cycles: []DashboardCycle{}}

	filter := ListFilter{}
	if role != auth.RoleHR {
		filter.ReviewerID = userID
	}
	cycles, err := s.store.ListCycles(ctx, tenantID, filter)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list dashboard cycles: %w", err)
	}

	pendingByCycle := map[string]int{}
	if role != auth.RoleHR {
		pending, err := s.store.ListAssignments(ctx, tenantID, AssignmentFilter{ReviewerID: userID, Pending: true})
		if err != nil {
			return Dashboard{}, fmt.Errorf("list pending assignments: %w", err)
		}
		for _, a := range pending {
			pendingByCycle[a.CycleID]++
		}
	}

	for _, cycle := range cycles {
		if cycle.Status == StatusClosed {
			continue
		}
		entry := DashboardCycle{
			Cycle: cycle,
			Phase: timeline.ResolvePhase(cycle.Timeline, now),
		}
		if role == auth.RoleHR {
			counts, err := s.store.PhaseCounts(ctx, tenantID, cycle.ID)
			if err != nil {
				return Dashboard{}, fmt.Errorf("load phase counts for %s: %w", cycle.ID, err)
			}
			snapshot := timeline.Aggregate(counts)
			entry.Progress = &snapshot
		} else {
			entry.PendingAssignments = pendingByCycle[cycle.ID]
			out.PendingAssignments += entry.PendingAssignments
		}
		out.Cycles = append(out.Cycles, entry)
	}
	return out, nil
}
