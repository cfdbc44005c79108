package cycles

import (
	"context"
	"time"

	"perfreview/internal/domain/timeline"
)

type StoreAPI interface {
	CreateCycle(ctx context.Context, cycle ReviewCycle) (ReviewCycle, error)
	GetCycle(ctx context.Context, tenantID, cycleID string) (ReviewCycle, error)
	ListCycles(ctx context.Context, tenantID string, filter ListFilter) ([]ReviewCycle, error)
	AppendTimeline(ctx context.Context, tenantID, cycleID, actorID string, t timeline.Timeline) (ReviewCycle, error)
	TimelineHistory(ctx context.Context, tenantID, cycleID string) ([]TimelineVersion, error)
	UpdateCycleStatus(ctx context.Context, tenantID, cycleID, status string) error
	CreateAssignment(ctx context.Context, tenantID string, assignment Assignment) (Assignment, error)
	GetAssignment(ctx context.Context, tenantID, assignmentID string) (Assignment, error)
	MarkSubmitted(ctx context.Context, tenantID, assignmentID string, at time.Time) (bool, error)
	ListAssignments(ctx context.Context, tenantID string, filter AssignmentFilter) ([]Assignment, error)
	PhaseCounts(ctx context.Context, tenantID, cycleID string) (timeline.Counts, error)
	ListOpenCycleTenants(ctx context.Context) ([]string, error)
}
