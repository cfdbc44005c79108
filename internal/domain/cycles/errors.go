package cycles

import (
	"errors"
	"strings"

	"perfreview/internal/domain/timeline"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrCycleClosed       = errors.New("review cycle is closed")
	ErrInvalidStatus     = errors.New("invalid review cycle status transition")
	ErrCycleNotActive    = errors.New("review cycle is not active")
	ErrAlreadySubmitted  = errors.New("assignment already submitted")
	ErrPhaseNotOpen      = errors.New("review phase has not opened")
	ErrNotReviewer       = errors.New("assignment belongs to another reviewer")
	ErrInvalidAssignment = errors.New("invalid assignment")

	ErrDuplicateAssignment = errors.New("assignment already exists")
)

// ValidationError carries the field errors of a rejected timeline or payload.
type ValidationError struct {
	Fields []timeline.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field string, code timeline.ErrorCode, message string) *ValidationError {
	return &ValidationError{Fields: []timeline.FieldError{{Field: field, Code: code, Message: message}}}
}
