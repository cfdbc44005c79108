package cycles

import (
	"time"

	"perfreview/internal/domain/timeline"
)

type ReviewCycle struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"-"`
	Name            string            `json:"name"`
	Status          string            `json:"status"`
	Timeline        timeline.Timeline `json:"timeline"`
	TimelineVersion int               `json:"timelineVersion"`
	CreatedBy       string            `json:"createdBy"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

type TimelineVersion struct {
	Version   int               `json:"version"`
	Timeline  timeline.Timeline `json:"timeline"`
	CreatedBy string            `json:"createdBy"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Assignment is one expected submission: a reviewer reviewing a subject
// during one review phase. Self assessments have reviewer == subject.
type Assignment struct {
	ID          string         `json:"id"`
	CycleID     string         `json:"cycleId"`
	Phase       timeline.Phase `json:"phase"`
	ReviewerID  string         `json:"reviewerId"`
	SubjectID   string         `json:"subjectId"`
	SubmittedAt *time.Time     `json:"submittedAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func (a Assignment) Submitted() bool {
	return a.SubmittedAt != nil
}

type CycleStatus struct {
	Cycle    ReviewCycle           `json:"cycle"`
	Phase    timeline.PhaseStatus  `json:"phase"`
	AsOf     string                `json:"asOf"`
	Warnings []timeline.FieldError `json:"warnings,omitempty"`
}

type CycleProgress struct {
	CycleID  string                    `json:"cycleId"`
	Progress timeline.ProgressSnapshot `json:"progress"`
}

type ListFilter struct {
	Status     string
	ReviewerID string
	Limit      int
	Offset     int
}

type AssignmentFilter struct {
	CycleID    string
	ReviewerID string
	Phase      timeline.Phase
	Pending    bool
}

type DashboardCycle struct {
	Cycle              ReviewCycle                `json:"cycle"`
	Phase              timeline.PhaseStatus       `json:"phase"`
	Progress           *timeline.ProgressSnapshot `json:"progress,omitempty"`
	PendingAssignments int                        `json:"pendingAssignments,omitempty"`
}

type Dashboard struct {
	Role               string           `json:"role"`
	AsOf               string           `json:"asOf"`
	Cycles             []DashboardCycle `json:"cycles"`
	PendingAssignments int              `json:"pendingAssignments"`
}

type SweepResult struct {
	Activated int `json:"activated"`
	Closed    int `json:"closed"`
}
