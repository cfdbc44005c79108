package report

import (
	"bytes"
	"testing"
	"time"

	"perfreview/internal/domain/cycles"
	"perfreview/internal/domain/timeline"
)

func TestWriteCyclePDF(t *testing.T) {
	day := func(v string) time.Time {
		parsed, _ := time.Parse(timeline.DateLayout, v)
		return parsed
	}
	status := cycles.CycleStatus{
		Cycle: cycles.ReviewCycle{
			Name:   "H2 2024",
			Status: cycles.StatusActive,
			Timeline: timeline.Timeline{
				ReviewPeriod:   timeline.DateRange{Start: day("2024-07-01"), End: day("2024-12-31")},
				SelfAssessment: timeline.DateRange{Start: day("2024-10-01"), End: day("2024-10-07")},
				PeerReview:     timeline.DateRange{Start: day("2024-10-08"), End: day("2024-10-14")},
				ManagerReview:  timeline.DateRange{Start: day("2024-10-15"), End: day("2024-10-21")},
			},
		},
		Phase:    timeline.PhaseStatus{CurrentPhase: timeline.PhasePeerReview, DaysRemaining: 4},
		AsOf:     "2024-10-10",
		Warnings: []timeline.FieldError{{Field: "peerReview", Code: timeline.CodeOutsideReviewPeriod, Message: "falls outside the review period"}},
	}
	progress := timeline.Aggregate(timeline.Counts{Self: timeline.PhaseCount{Completed: 8, Total: 10}})

	var buf bytes.Buffer
	if err := WriteCyclePDF(&buf, status, progress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected pdf header, got %q", buf.Bytes()[:min(8, buf.Len())])
	}
}

func TestDaysLabel(t *testing.T) {
	tests := []struct {
		status timeline.PhaseStatus
		want   string
	}{
		{timeline.PhaseStatus{CurrentPhase: timeline.PhaseCompleted}, "done"},
		{timeline.PhaseStatus{CurrentPhase: timeline.PhasePeerReview, DaysRemaining: 1}, "1 day remaining"},
		{timeline.PhaseStatus{CurrentPhase: timeline.PhasePeerReview, DaysRemaining: 0}, "0 days remaining"},
		{timeline.PhaseStatus{CurrentPhase: timeline.PhaseManagerReview, DaysRemaining: -3}, "3 days overdue"},
	}
	for _, tc := range tests {
		if got := daysLabel(tc.status); got != tc.want {
			t.Fatalf("daysLabel(%+v) = %q, want %q", tc.status, got, tc.want)
		}
	}
}
