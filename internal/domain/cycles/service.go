package cycles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"perfreview/internal/domain/notifications"
	"perfreview/internal/domain/timeline"
)

// Notifier delivers in-app notifications. *notifications.Service satisfies it.
type Notifier interface {
	Create(ctx context.Context, tenantID, userID, ntype, title, body, entityID string) error
}

type Service struct {
	store  StoreAPI
	notify Notifier
}

func NewService(store StoreAPI) *Service {
	return &Service{store: store}
}

// SetNotifier enables activation notices for cycles opened manually or by
// the status sweep.
func (s *Service) SetNotifier(n Notifier) {
	s.notify = n
}

// CreateCycle validates the timeline and stores it as version 1 of a new
// draft cycle. The returned ValidationResult carries any warnings.
func (s *Service) CreateCycle(ctx context.Context, tenantID, actorID, name string, t timeline.Timeline) (ReviewCycle, timeline.ValidationResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ReviewCycle{}, timeline.ValidationResult{}, invalid("name", "Required", "is required")
	}
	if len(name) > maxNameLength {
		return ReviewCycle{}, timeline.ValidationResult{}, invalid("name", "TooLong", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}

	t = t.Normalized()
	result := timeline.Validate(t)
	if !result.Valid {
		return ReviewCycle{}, result, &ValidationError{Fields: result.Errors}
	}

	cycle, err := s.store.CreateCycle(ctx, ReviewCycle{
		TenantID:  tenantID,
		Name:      name,
		Status:    StatusDraft,
		Timeline:  t,
		CreatedBy: actorID,
	})
	if err != nil {
		return ReviewCycle{}, result, fmt.Errorf("create review cycle: %w", err)
	}
	return cycle, result, nil
}

// ReviseTimeline replaces the timeline of an open cycle with a new version.
// Earlier versions stay readable through TimelineHistory.
func (s *Service) ReviseTimeline(ctx context.Context, tenantID, actorID, cycleID string, t timeline.Timeline) (ReviewCycle, timeline.ValidationResult, error) {
	current, err := s.store.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return ReviewCycle{}, timeline.ValidationResult{}, err
	}
	if current.Status == StatusClosed {
		return ReviewCycle{}, timeline.ValidationResult{}, ErrCycleClosed
	}

	t = t.Normalized()
	result := timeline.Validate(t)
	if !result.Valid {
		return ReviewCycle{}, result, &ValidationError{Fields: result.Errors}
	}

	cycle, err := s.store.AppendTimeline(ctx, tenantID, cycleID, actorID, t)
	if err != nil {
		return ReviewCycle{}, result, fmt.Errorf("revise timeline: %w", err)
	}
	return cycle, result, nil
}

func (s *Service) GetCycle(ctx context.Context, tenantID, cycleID string) (ReviewCycle, error) {
	return s.store.GetCycle(ctx, tenantID, cycleID)
}

func (s *Service) ListCycles(ctx context.Context, tenantID string, filter ListFilter) ([]ReviewCycle, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	return s.store.ListCycles(ctx, tenantID, filter)
}

func (s *Service) TimelineHistory(ctx context.Context, tenantID, cycleID string) ([]TimelineVersion, error) {
	return s.store.TimelineHistory(ctx, tenantID, cycleID)
}

// ActivateCycle moves a draft cycle to active.
func (s *Service) ActivateCycle(ctx context.Context, tenantID, cycleID string) (ReviewCycle, error) {
	cycle, err := s.store.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return ReviewCycle{}, err
	}
	switch cycle.Status {
	case StatusClosed:
		return ReviewCycle{}, ErrCycleClosed
	case StatusActive:
		return ReviewCycle{}, ErrInvalidStatus
	}
	if err := s.store.UpdateCycleStatus(ctx, tenantID, cycleID, StatusActive); err != nil {
		return ReviewCycle{}, fmt.Errorf("activate review cycle: %w", err)
	}
	cycle.Status = StatusActive
	s.notifyActivated(ctx, tenantID, cycle)
	return cycle, nil
}

// CloseCycle closes a draft or active cycle. Closed cycles accept no
// further timeline revisions or submissions.
func (s *Service) CloseCycle(ctx context.Context, tenantID, cycleID string) (ReviewCycle, error) {
	cycle, err := s.store.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return ReviewCycle{}, err
	}
	if cycle.Status == StatusClosed {
		return ReviewCycle{}, ErrCycleClosed
	}
	if err := s.store.UpdateCycleStatus(ctx, tenantID, cycleID, StatusClosed); err != nil {
		return ReviewCycle{}, fmt.Errorf("close review cycle: %w", err)
	}
	cycle.Status = StatusClosed
	return cycle, nil
}

func (s *Service) Status(ctx context.Context, tenantID, cycleID string, now time.Time) (CycleStatus, error) {
	cycle, err := s.store.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return CycleStatus{}, err
	}
	return CycleStatus{
		Cycle:    cycle,
		Phase:    timeline.ResolvePhase(cycle.Timeline, now),
		AsOf:     timeline.FormatDate(now),
		Warnings: timeline.Validate(cycle.Timeline).Warnings,
	}, nil
}

func (s *Service) Progress(ctx context.Context, tenantID, cycleID string) (CycleProgress, error) {
	if _, err := s.store.GetCycle(ctx, tenantID, cycleID); err != nil {
		return CycleProgress{}, err
	}
	counts, err := s.store.PhaseCounts(ctx, tenantID, cycleID)
	if err != nil {
		return CycleProgress{}, fmt.Errorf("load phase counts: %w", err)
	}
	return CycleProgress{CycleID: cycleID, Progress: timeline.Aggregate(counts)}, nil
}

// CreateAssignment registers an expected submission. Self assessments are
// written by their subject; peer and manager reviews by someone else.
func (s *Service) CreateAssignment(ctx context.Context, tenantID, cycleID string, phase timeline.Phase, reviewerID, subjectID string) (Assignment, error) {
	cycle, err := s.store.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return Assignment{}, err
	}
	if cycle.Status == StatusClosed {
		return Assignment{}, ErrCycleClosed
	}
	if !phase.IsReview() {
		return Assignment{}, fmt.Errorf("%w: unknown phase %q", ErrInvalidAssignment, phase)
	}
	reviewerID = strings.TrimSpace(reviewerID)
	subjectID = strings.TrimSpace(subjectID)
	if reviewerID == "" || subjectID == "" {
		return Assignment{}, fmt.Errorf("%w: reviewer and subject are required", ErrInvalidAssignment)
	}
	if phase == timeline.PhaseSelfAssessment && reviewerID != subjectID {
		return Assignment{}, fmt.Errorf("%w: self assessment reviewer must be the subject", ErrInvalidAssignment)
	}
	if phase != timeline.PhaseSelfAssessment && reviewerID == subjectID {
		return Assignment{}, fmt.Errorf("%w: reviewer cannot review themselves in %s", ErrInvalidAssignment, phase)
	}

	return s.store.CreateAssignment(ctx, tenantID, Assignment{
		CycleID:    cycleID,
		Phase:      phase,
		ReviewerID: reviewerID,
		SubjectID:  subjectID,
	})
}

// SubmitAssignment marks the actor's assignment as submitted. The cycle must
// be active and the assignment's phase window must have opened; late
// submissions are accepted.
func (s *Service) SubmitAssignment(ctx context.Context, tenantID, actorID, assignmentID string, now time.Time) (Assignment, error) {
	assignment, err := s.store.GetAssignment(ctx, tenantID, assignmentID)
	if err != nil {
		return Assignment{}, err
	}
	if assignment.ReviewerID != actorID {
		return Assignment{}, ErrNotReviewer
	}
	if assignment.Submitted() {
		return Assignment{}, ErrAlreadySubmitted
	}

	cycle, err := s.store.GetCycle(ctx, tenantID, assignment.CycleID)
	if err != nil {
		return Assignment{}, err
	}
	switch cycle.Status {
	case StatusClosed:
		return Assignment{}, ErrCycleClosed
	case StatusDraft:
		return Assignment{}, ErrCycleNotActive
	}
	if !timeline.IsOpen(cycle.Timeline, assignment.Phase, now) {
		return Assignment{}, ErrPhaseNotOpen
	}

	updated, err := s.store.MarkSubmitted(ctx, tenantID, assignmentID, now)
	if err != nil {
		return Assignment{}, fmt.Errorf("submit assignment: %w", err)
	}
	if !updated {
		return Assignment{}, ErrAlreadySubmitted
	}
	submittedAt := now
	assignment.SubmittedAt = &submittedAt
	return assignment, nil
}

func (s *Service) ListAssignments(ctx context.Context, tenantID string, filter AssignmentFilter) ([]Assignment, error) {
	if filter.CycleID != "" {
		if _, err := s.store.GetCycle(ctx, tenantID, filter.CycleID); err != nil {
			return nil, err
		}
	}
	return s.store.ListAssignments(ctx, tenantID, filter)
}

// SweepStatuses activates draft cycles whose self assessment has opened and
// closes active cycles whose manager review has ended.
func (s *Service) SweepStatuses(ctx context.Context, tenantID string, now time.Time) (SweepResult, error) {
	var result SweepResult
	for _, status := range []string{StatusDraft, StatusActive} {
		cycles, err := s.store.ListCycles(ctx, tenantID, ListFilter{Status: status})
		if err != nil {
			return result, fmt.Errorf("list %s cycles: %w", status, err)
		}
		for _, cycle := range cycles {
			phase := timeline.ResolvePhase(cycle.Timeline, now).CurrentPhase
			switch {
			case cycle.Status == StatusDraft && phase != timeline.PhaseNotStarted && phase != timeline.PhaseCompleted:
				if err := s.store.UpdateCycleStatus(ctx, tenantID, cycle.ID, StatusActive); err != nil {
					return result, fmt.Errorf("activate cycle %s: %w", cycle.ID, err)
				}
				cycle.Status = StatusActive
				s.notifyActivated(ctx, tenantID, cycle)
				result.Activated++
			case cycle.Status == StatusActive && phase == timeline.PhaseCompleted:
				if err := s.store.UpdateCycleStatus(ctx, tenantID, cycle.ID, StatusClosed); err != nil {
					return result, fmt.Errorf("close cycle %s: %w", cycle.ID, err)
				}
				result.Closed++
			}
		}
	}
	return result, nil
}

func (s *Service) ListOpenCycleTenants(ctx context.Context) ([]string, error) {
	return s.store.ListOpenCycleTenants(ctx)
}

// notifyActivated tells every reviewer with a pending assignment that the
// cycle is open, once per reviewer. Failures are logged only.
func (s *Service) notifyActivated(ctx context.Context, tenantID string, cycle ReviewCycle) {
	if s.notify == nil {
		return
	}
	pending, err := s.store.ListAssignments(ctx, tenantID, AssignmentFilter{CycleID: cycle.ID, Pending: true})
	if err != nil {
		slog.Warn("activation notification lookup failed", "err", err, "cycleId", cycle.ID)
		return
	}
	seen := map[string]struct{}{}
	for _, a := range pending {
		if _, ok := seen[a.ReviewerID]; ok {
			continue
		}
		seen[a.ReviewerID] = struct{}{}
		if err := s.notify.Create(ctx, tenantID, a.ReviewerID, notifications.TypeCycleActivated, cycle.Name+" is open", "You have pending reviews in "+cycle.Name, cycle.ID); err != nil {
			slog.Warn("activation notification failed", "err", err, "cycleId", cycle.ID)
		}
	}
}
