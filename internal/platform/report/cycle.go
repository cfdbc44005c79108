package report

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"perfreview/internal/domain/cycles"
	"perfreview/internal/domain/timeline"
)

// WriteCyclePDF renders a one page status report for a review cycle.
func WriteCyclePDF(w io.Writer, status cycles.CycleStatus, progress timeline.ProgressSnapshot) error {
	cycle := status.Cycle
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Review cycle "+cycle.Name, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, cycle.Name)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Status: %s    As of: %s", cycle.Status, status.AsOf))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Current phase: %s (%s)", status.Phase.CurrentPhase, daysLabel(status.Phase)))
	pdf.Ln(11)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Timeline")
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 11)
	rows := []struct {
		label string
		r     timeline.DateRange
	}{
		{"Review period", cycle.Timeline.ReviewPeriod},
		{"Self assessment", cycle.Timeline.SelfAssessment},
		{"Peer review", cycle.Timeline.PeerReview},
		{"Manager review", cycle.Timeline.ManagerReview},
	}
	for _, row := range rows {
		pdf.CellFormat(50, 7, row.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 7, timeline.FormatDate(row.r.Start)+" to "+timeline.FormatDate(row.r.End), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Completion")
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 11)
	phases := []struct {
		label string
		p     timeline.PhaseProgress
	}{
		{"Self assessment", progress.Self},
		{"Peer review", progress.Peer},
		{"Manager review", progress.Manager},
	}
	for _, row := range phases {
		pdf.CellFormat(50, 7, row.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, fmt.Sprintf("%d / %d", row.p.Completed, row.p.Total), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, fmt.Sprintf("%d%%", row.p.Percentage), "1", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(90, 7, "Overall", "1", 0, "L", false, 0, "")
	pdf.CellFormat(30, 7, fmt.Sprintf("%d%%", progress.OverallPercentage), "1", 1, "R", false, 0, "")

	if len(status.Warnings) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 10)
		for _, warn := range status.Warnings {
			pdf.Cell(0, 6, "Warning: "+warn.Error())
			pdf.Ln(6)
		}
	}

	return pdf.Output(w)
}

func daysLabel(ps timeline.PhaseStatus) string {
	switch {
	case ps.CurrentPhase == timeline.PhaseCompleted:
		return "done"
	case ps.DaysRemaining < 0:
		return fmt.Sprintf("%d days overdue", -ps.DaysRemaining)
	case ps.DaysRemaining == 1:
		return "1 day remaining"
	}
	return fmt.Sprintf("%d days remaining", ps.DaysRemaining)
}
