package timeline

import "fmt"

type ErrorCode string

const (
	CodeInvalidRange        ErrorCode = "InvalidRange"
	CodeOutOfOrder          ErrorCode = "OutOfOrder"
	CodeOutsideReviewPeriod ErrorCode = "OutsideReviewPeriod"
	CodeInvalidDate         ErrorCode = "InvalidDate"
)

type FieldError struct {
	Field   string    `json:"field"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationResult carries blocking errors and non-blocking warnings.
// Valid is true exactly when Errors is empty.
type ValidationResult struct {
	Valid    bool         `json:"valid"`
	Errors   []FieldError `json:"errors,omitempty"`
	Warnings []FieldError `json:"warnings,omitempty"`
}

// HasCode reports whether any error carries code for the given field.
func (r ValidationResult) HasCode(field string, code ErrorCode) bool {
	for _, e := range r.Errors {
		if e.Field == field && e.Code == code {
			return true
		}
	}
	return false
}

// Validate checks that every range ends after it starts and that the review
// phases run in order without overlap. Phases falling outside the review
// period are reported as warnings only.
func Validate(t Timeline) ValidationResult {
	t = t.Normalized()
	var errs, warnings []FieldError

	ranges := append([]namedRange{{FieldReviewPeriod, t.ReviewPeriod}}, phaseRanges(t)...)
	for _, nr := range ranges {
		if !nr.r.Start.Before(nr.r.End) {
			errs = append(errs, FieldError{
				Field:   nr.field,
				Code:    CodeInvalidRange,
				Message: "end date must be after start date",
			})
		}
	}

	phases := phaseRanges(t)
	for i := 1; i < len(phases); i++ {
		prev, cur := phases[i-1], phases[i]
		if cur.r.Start.Before(prev.r.End) {
			errs = append(errs, FieldError{
				Field:   cur.field,
				Code:    CodeOutOfOrder,
				Message: fmt.Sprintf("must start on or after %s ends", prev.field),
			})
		}
	}

	for _, nr := range phases {
		if !nr.r.Within(t.ReviewPeriod) {
			warnings = append(warnings, FieldError{
				Field:   nr.field,
				Code:    CodeOutsideReviewPeriod,
				Message: "falls outside the review period",
			})
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}

type namedRange struct {
	field string
	r     DateRange
}

func phaseRanges(t Timeline) []namedRange {
	out := make([]namedRange, 0, 3)
	for _, pr := range t.Phases() {
		out = append(out, namedRange{field: pr.Phase.FieldName(), r: pr.Range})
	}
	return out
}
