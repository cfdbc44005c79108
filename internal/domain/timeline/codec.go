package timeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// RawRange is the wire form of a DateRange.
type RawRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RawTimeline is the wire form of a Timeline, as submitted by the cycle
// creation wizard or read back from storage.
type RawTimeline struct {
	ReviewPeriod   RawRange `json:"reviewPeriod"`
	SelfAssessment RawRange `json:"selfAssessment"`
	PeerReview     RawRange `json:"peerReview"`
	ManagerReview  RawRange `json:"managerReview"`
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and keeps only the calendar date.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if parsed, err := time.Parse(DateLayout, value); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(parsed), nil
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return DateOf(t).Format(DateLayout)
}

// ParseTimeline converts the wire form into a Timeline. Every unparseable
// bound is reported as an InvalidDate error; the returned Timeline is only
// meaningful when no errors are returned.
func ParseTimeline(raw RawTimeline) (Timeline, []FieldError) {
	var errs []FieldError
	parseRange := func(field string, rr RawRange) DateRange {
		start := parseBound(field+".start", rr.Start, &errs)
		end := parseBound(field+".end", rr.End, &errs)
		return DateRange{Start: start, End: end}
	}
	t := Timeline{
		ReviewPeriod:   parseRange(FieldReviewPeriod, raw.ReviewPeriod),
		SelfAssessment: parseRange(FieldSelfAssessment, raw.SelfAssessment),
		PeerReview:     parseRange(FieldPeerReview, raw.PeerReview),
		ManagerReview:  parseRange(FieldManagerReview, raw.ManagerReview),
	}
	return t, errs
}

func parseBound(field, value string, errs *[]FieldError) time.Time {
	if strings.TrimSpace(value) == "" {
		*errs = append(*errs, FieldError{Field: field, Code: CodeInvalidDate, Message: "is required"})
		return time.Time{}
	}
	parsed, err := ParseDate(value)
	if err != nil {
		*errs = append(*errs, FieldError{Field: field, Code: CodeInvalidDate, Message: "must be a valid date in YYYY-MM-DD format"})
		return time.Time{}
	}
	return parsed
}

// Raw formats the timeline as YYYY-MM-DD strings. ParseTimeline(t.Raw())
// yields t.Normalized().
func (t Timeline) Raw() RawTimeline {
	format := func(r DateRange) RawRange {
		return RawRange{Start: FormatDate(r.Start), End: FormatDate(r.End)}
	}
	return RawTimeline{
		ReviewPeriod:   format(t.ReviewPeriod),
		SelfAssessment: format(t.SelfAssessment),
		PeerReview:     format(t.PeerReview),
		ManagerReview:  format(t.ManagerReview),
	}
}

// MarshalJSON writes the range in its wire form.
func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(RawRange{Start: FormatDate(r.Start), End: FormatDate(r.End)})
}

func (r *DateRange) UnmarshalJSON(data []byte) error {
	var raw RawRange
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := ParseDate(raw.Start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := ParseDate(raw.End)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	*r = DateRange{Start: start, End: end}
	return nil
}
