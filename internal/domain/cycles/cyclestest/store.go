// Package cyclestest provides an in-memory cycles.StoreAPI for tests.
package cyclestest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"perfreview/internal/domain/cycles"
	"perfreview/internal/domain/timeline"
)

type Store struct {
	mu          sync.Mutex
	seq         int
	clock       time.Time
	cycles      map[string]cycles.ReviewCycle
	history     map[string][]cycles.TimelineVersion
	assignments map[string]assignmentRow
	order       []string

	// Err, when set, is returned by every method.
	Err error
}

type assignmentRow struct {
	tenantID string
	cycles.Assignment
}

func NewStore() *Store {
	return &Store{
		clock:       time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		cycles:      map[string]cycles.ReviewCycle{},
		history:     map[string][]cycles.TimelineVersion{},
		assignments: map[string]assignmentRow{},
	}
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// tick returns a strictly increasing timestamp so list ordering is stable.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Minute)
	return s.clock
}

func (s *Store) CreateCycle(_ context.Context, cycle cycles.ReviewCycle) (cycles.ReviewCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return cycles.ReviewCycle{}, s.Err
	}
	now := s.tick()
	cycle.ID = s.nextID("cycle")
	cycle.TimelineVersion = 1
	cycle.CreatedAt = now
	cycle.UpdatedAt = now
	s.cycles[cycle.ID] = cycle
	s.order = append(s.order, cycle.ID)
	s.history[cycle.ID] = []cycles.TimelineVersion{{Version: 1, Timeline: cycle.Timeline, CreatedBy: cycle.CreatedBy, CreatedAt: now}}
	return cycle, nil
}

func (s *Store) GetCycle(_ context.Context, tenantID, cycleID string) (cycles.ReviewCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return cycles.ReviewCycle{}, s.Err
	}
	return s.getLocked(tenantID, cycleID)
}

func (s *Store) getLocked(tenantID, cycleID string) (cycles.ReviewCycle, error) {
	cycle, ok := s.cycles[cycleID]
	if !ok || cycle.TenantID != tenantID {
		return cycles.ReviewCycle{}, cycles.ErrNotFound
	}
	return cycle, nil
}

func (s *Store) ListCycles(_ context.Context, tenantID string, filter cycles.ListFilter) ([]cycles.ReviewCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []cycles.ReviewCycle
	for i := len(s.order) - 1; i >= 0; i-- {
		cycle := s.cycles[s.order[i]]
		if cycle.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && cycle.Status != filter.Status {
			continue
		}
		if filter.ReviewerID != "" && !s.participatesLocked(cycle.ID, filter.ReviewerID) {
			continue
		}
		out = append(out, cycle)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) participatesLocked(cycleID, userID string) bool {
	for _, row := range s.assignments {
		if row.CycleID == cycleID && (row.ReviewerID == userID || row.SubjectID == userID) {
			return true
		}
	}
	return false
}

func (s *Store) AppendTimeline(_ context.Context, tenantID, cycleID, actorID string, t timeline.Timeline) (cycles.ReviewCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return cycles.ReviewCycle{}, s.Err
	}
	cycle, err := s.getLocked(tenantID, cycleID)
	if err != nil {
		return cycles.ReviewCycle{}, err
	}
	now := s.tick()
	cycle.TimelineVersion++
	cycle.Timeline = t
	cycle.UpdatedAt = now
	s.cycles[cycleID] = cycle
	s.history[cycleID] = append(s.history[cycleID], cycles.TimelineVersion{Version: cycle.TimelineVersion, Timeline: t, CreatedBy: actorID, CreatedAt: now})
	return cycle, nil
}

func (s *Store) TimelineHistory(_ context.Context, tenantID, cycleID string) ([]cycles.TimelineVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if _, err := s.getLocked(tenantID, cycleID); err != nil {
		return nil, err
	}
	return append([]cycles.TimelineVersion(nil), s.history[cycleID]...), nil
}

func (s *Store) UpdateCycleStatus(_ context.Context, tenantID, cycleID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	cycle, err := s.getLocked(tenantID, cycleID)
	if err != nil {
		return err
	}
	cycle.Status = status
	cycle.UpdatedAt = s.tick()
	s.cycles[cycleID] = cycle
	return nil
}

func (s *Store) CreateAssignment(_ context.Context, tenantID string, a cycles.Assignment) (cycles.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return cycles.Assignment{}, s.Err
	}
	for _, row := range s.assignments {
		if row.CycleID == a.CycleID && row.Phase == a.Phase && row.ReviewerID == a.ReviewerID && row.SubjectID == a.SubjectID {
			return cycles.Assignment{}, cycles.ErrDuplicateAssignment
		}
	}
	a.ID = s.nextID("assignment")
	a.CreatedAt = s.tick()
	s.assignments[a.ID] = assignmentRow{tenantID: tenantID, Assignment: a}
	return a, nil
}

func (s *Store) GetAssignment(_ context.Context, tenantID, assignmentID string) (cycles.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return cycles.Assignment{}, s.Err
	}
	row, ok := s.assignments[assignmentID]
	if !ok || row.tenantID != tenantID {
		return cycles.Assignment{}, cycles.ErrNotFound
	}
	return row.Assignment, nil
}

func (s *Store) MarkSubmitted(_ context.Context, tenantID, assignmentID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	row, ok := s.assignments[assignmentID]
	if !ok || row.tenantID != tenantID {
		return false, cycles.ErrNotFound
	}
	if row.SubmittedAt != nil {
		return false, nil
	}
	row.SubmittedAt = &at
	s.assignments[assignmentID] = row
	return true, nil
}

func (s *Store) ListAssignments(_ context.Context, tenantID string, filter cycles.AssignmentFilter) ([]cycles.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []cycles.Assignment
	for _, row := range s.assignments {
		if row.tenantID != tenantID {
			continue
		}
		if filter.CycleID != "" && row.CycleID != filter.CycleID {
			continue
		}
		if filter.ReviewerID != "" && row.ReviewerID != filter.ReviewerID {
			continue
		}
		if filter.Phase != "" && row.Phase != filter.Phase {
			continue
		}
		if filter.Pending && row.SubmittedAt != nil {
			continue
		}
		out = append(out, row.Assignment)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) PhaseCounts(_ context.Context, tenantID, cycleID string) (timeline.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return timeline.Counts{}, s.Err
	}
	var counts timeline.Counts
	for _, row := range s.assignments {
		if row.tenantID == tenantID && row.CycleID == cycleID {
			counts.Add(row.Phase, row.SubmittedAt != nil)
		}
	}
	return counts, nil
}

func (s *Store) ListOpenCycleTenants(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, id := range s.order {
		cycle := s.cycles[id]
		if cycle.Status == cycles.StatusClosed {
			continue
		}
		if _, ok := seen[cycle.TenantID]; ok {
			continue
		}
		seen[cycle.TenantID] = struct{}{}
		out = append(out, cycle.TenantID)
	}
	return out, nil
}

var _ cycles.StoreAPI = (*Store)(nil)
