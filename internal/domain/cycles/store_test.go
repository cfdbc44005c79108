package cycles_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"perfreview/internal/domain/cycles"
	"perfreview/internal/domain/timeline"
	"perfreview/internal/platform/db/dbtest"
)

func newPGStore(t *testing.T) (*cycles.Store, string) {
	t.Helper()
	return cycles.NewStore(dbtest.Open(t)), dbtest.TenantID()
}

func storeCycle(t *testing.T, store *cycles.Store, tenantID, name string) cycles.ReviewCycle {
	t.Helper()
	cycle, err := store.CreateCycle(context.Background(), cycles.ReviewCycle{
		TenantID:  tenantID,
		Name:      name,
		Status:    cycles.StatusDraft,
		Timeline:  octoberTimeline(),
		CreatedBy: "hr-1",
	})
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	return cycle
}

func TestStoreTimelineVersions(t *testing.T) {
	store, tenantID := newPGStore(t)
	ctx := context.Background()

	created := storeCycle(t, store, tenantID, "H2 2024")
	if created.TimelineVersion != 1 || created.Status != cycles.StatusDraft || created.TenantID != tenantID {
		t.Fatalf("unexpected cycle: %+v", created)
	}
	if created.Timeline.Raw() != octoberTimeline().Raw() {
		t.Fatalf("timeline did not round trip: %+v", created.Timeline.Raw())
	}

	revised := octoberTimeline()
	revised.ManagerReview = rng("2024-10-15", "2024-10-25")
	updated, err := store.AppendTimeline(ctx, tenantID, created.ID, "hr-2", revised)
	if err != nil {
		t.Fatalf("append timeline: %v", err)
	}
	if updated.TimelineVersion != 2 || timeline.FormatDate(updated.Timeline.ManagerReview.End) != "2024-10-25" {
		t.Fatalf("expected version 2 with new manager end, got %+v", updated)
	}

	history, err := store.TimelineHistory(ctx, tenantID, created.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Version != 1 || history[1].Version != 2 {
		t.Fatalf("unexpected history: %+v", history)
	}
	if history[0].CreatedBy != "hr-1" || history[1].CreatedBy != "hr-2" {
		t.Fatalf("unexpected history authors: %+v", history)
	}
	if history[0].Timeline.Raw() != octoberTimeline().Raw() || history[1].Timeline.Raw() != revised.Raw() {
		t.Fatalf("history lost a version: %+v", history)
	}
}

func TestStoreNotFound(t *testing.T) {
	store, tenantID := newPGStore(t)
	ctx := context.Background()
	created := storeCycle(t, store, tenantID, "H2 2024")

	if _, err := store.GetCycle(ctx, tenantID, "not-a-uuid"); !errors.Is(err, cycles.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
	if _, err := store.GetCycle(ctx, dbtest.TenantID(), created.ID); !errors.Is(err, cycles.ErrNotFound) {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
	if _, err := store.TimelineHistory(ctx, tenantID, uuid.NewString()); !errors.Is(err, cycles.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing history, got %v", err)
	}
	if _, err := store.AppendTimeline(ctx, tenantID, uuid.NewString(), "hr-1", octoberTimeline()); !errors.Is(err, cycles.ErrNotFound) {
		t.Fatalf("expected ErrNotFound when revising a missing cycle, got %v", err)
	}
	if err := store.UpdateCycleStatus(ctx, tenantID, uuid.NewString(), cycles.StatusActive); !errors.Is(err, cycles.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for status update, got %v", err)
	}
	if _, err := store.GetAssignment(ctx, tenantID, "not-a-uuid"); !errors.Is(err, cycles.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed assignment id, got %v", err)
	}
}

func TestStoreFiltersAndCounts(t *testing.T) {
	store, tenantID := newPGStore(t)
	ctx := context.Background()

	draft := storeCycle(t, store, tenantID, "Draft")
	active := storeCycle(t, store, tenantID, "Active")
	if err := store.UpdateCycleStatus(ctx, tenantID, active.ID, cycles.StatusActive); err != nil {
		t.Fatalf("activate: %v", err)
	}

	assign := func(phase timeline.Phase, reviewer, subject string) cycles.Assignment {
		t.Helper()
		a, err := store.CreateAssignment(ctx, tenantID, cycles.Assignment{CycleID: active.ID, Phase: phase, ReviewerID: reviewer, SubjectID: subject})
		if err != nil {
			t.Fatalf("assign %s: %v", phase, err)
		}
		return a
	}
	self := assign(timeline.PhaseSelfAssessment, "emp-1", "emp-1")
	peer := assign(timeline.PhasePeerReview, "emp-2", "emp-1")
	assign(timeline.PhasePeerReview, "emp-3", "emp-1")
	assign(timeline.PhaseManagerReview, "mgr-1", "emp-1")

	_, err := store.CreateAssignment(ctx, tenantID, cycles.Assignment{CycleID: active.ID, Phase: timeline.PhasePeerReview, ReviewerID: "emp-2", SubjectID: "emp-1"})
	if !errors.Is(err, cycles.ErrDuplicateAssignment) {
		t.Fatalf("expected ErrDuplicateAssignment, got %v", err)
	}

	at := day("2024-10-09")
	for _, id := range []string{self.ID, peer.ID} {
		ok, err := store.MarkSubmitted(ctx, tenantID, id, at)
		if err != nil || !ok {
			t.Fatalf("mark submitted %s: %v %v", id, ok, err)
		}
	}
	if ok, err := store.MarkSubmitted(ctx, tenantID, self.ID, at); err != nil || ok {
		t.Fatalf("expected second submit to be a no-op, got %v %v", ok, err)
	}
	got, err := store.GetAssignment(ctx, tenantID, peer.ID)
	if err != nil || got.SubmittedAt == nil || !got.SubmittedAt.Equal(at) {
		t.Fatalf("unexpected submitted assignment: %+v %v", got, err)
	}

	counts, err := store.PhaseCounts(ctx, tenantID, active.ID)
	if err != nil {
		t.Fatalf("phase counts: %v", err)
	}
	want := timeline.Counts{
		Self:    timeline.PhaseCount{Completed: 1, Total: 1},
		Peer:    timeline.PhaseCount{Completed: 1, Total: 2},
		Manager: timeline.PhaseCount{Completed: 0, Total: 1},
	}
	if counts != want {
		t.Fatalf("expected %+v, got %+v", want, counts)
	}
	if empty, err := store.PhaseCounts(ctx, tenantID, draft.ID); err != nil || empty != (timeline.Counts{}) {
		t.Fatalf("expected zero counts for draft, got %+v %v", empty, err)
	}

	listIDs := func(filter cycles.ListFilter) []string {
		t.Helper()
		list, err := store.ListCycles(ctx, tenantID, filter)
		if err != nil {
			t.Fatalf("list cycles %+v: %v", filter, err)
		}
		ids := make([]string, 0, len(list))
		for _, c := range list {
			ids = append(ids, c.ID)
		}
		return ids
	}
	if ids := listIDs(cycles.ListFilter{}); len(ids) != 2 || ids[0] != active.ID || ids[1] != draft.ID {
		t.Fatalf("expected newest first, got %v", ids)
	}
	if ids := listIDs(cycles.ListFilter{Status: cycles.StatusActive}); len(ids) != 1 || ids[0] != active.ID {
		t.Fatalf("unexpected status filter result: %v", ids)
	}
	if ids := listIDs(cycles.ListFilter{Status: cycles.StatusActive, ReviewerID: "emp-3", Limit: 10}); len(ids) != 1 || ids[0] != active.ID {
		t.Fatalf("unexpected reviewer filter result: %v", ids)
	}
	if ids := listIDs(cycles.ListFilter{ReviewerID: "emp-1"}); len(ids) != 1 {
		t.Fatalf("expected subject to see the active cycle, got %v", ids)
	}
	if ids := listIDs(cycles.ListFilter{ReviewerID: "nobody"}); len(ids) != 0 {
		t.Fatalf("expected no cycles for outsider, got %v", ids)
	}
	if ids := listIDs(cycles.ListFilter{Limit: 1, Offset: 1}); len(ids) != 1 || ids[0] != draft.ID {
		t.Fatalf("unexpected page: %v", ids)
	}

	pending, err := store.ListAssignments(ctx, tenantID, cycles.AssignmentFilter{CycleID: active.ID, Phase: timeline.PhasePeerReview, Pending: true})
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(pending) != 1 || pending[0].ReviewerID != "emp-3" {
		t.Fatalf("expected emp-3's pending peer review, got %+v", pending)
	}
	byReviewer, err := store.ListAssignments(ctx, tenantID, cycles.AssignmentFilter{ReviewerID: "mgr-1"})
	if err != nil || len(byReviewer) != 1 || byReviewer[0].Phase != timeline.PhaseManagerReview {
		t.Fatalf("unexpected reviewer assignments: %+v %v", byReviewer, err)
	}

	tenants, err := store.ListOpenCycleTenants(ctx)
	if err != nil {
		t.Fatalf("open tenants: %v", err)
	}
	found := false
	for _, id := range tenants {
		found = found || id == tenantID
	}
	if !found {
		t.Fatalf("expected %s among open tenants", tenantID)
	}
}
